package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/autotiss/internal/cycle"
)

// Reporter writes cycle reports to an output.
type Reporter interface {
	Write(r Report) error
	// Close finalizes the report and closes any underlying file handle.
	Close() error
}

// Counts mirrors the summary counters.
type Counts struct {
	Applied   int `json:"applied"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped_inactive"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
	Recovered int `json:"recovered"`
}

// OutcomeRecord is the serialized form of one entity's final outcome.
type OutcomeRecord struct {
	Entity         string          `json:"entity"`
	Kind           cycle.Kind      `json:"kind"`
	Classification string          `json:"classification,omitempty"`
	Error          string          `json:"error,omitempty"`
	Changed        []string        `json:"changed,omitempty"`
	Observed       map[string]bool `json:"observed,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Requeued       bool            `json:"requeued,omitempty"`
}

// Report is one cycle as written to disk.
type Report struct {
	ID          string          `json:"id"`
	Mode        string          `json:"mode"`
	Label       string          `json:"label"`
	Container   string          `json:"container,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Interrupted bool            `json:"interrupted,omitempty"`
	Counts      Counts          `json:"counts"`
	Outcomes    []OutcomeRecord `json:"outcomes"`
}

// FromSummary converts a cycle summary.
func FromSummary(sum cycle.Summary, mode, container string) Report {
	r := Report{
		ID:          sum.ID,
		Mode:        mode,
		Label:       sum.Label,
		Container:   container,
		StartedAt:   sum.StartedAt,
		FinishedAt:  sum.FinishedAt,
		Interrupted: sum.Interrupted,
		Counts: Counts{
			Applied:   sum.Applied,
			Unchanged: sum.Unchanged,
			Skipped:   sum.Skipped,
			Failed:    sum.Failed,
			Requeued:  sum.Requeued,
			Recovered: sum.Recovered,
		},
		Outcomes: make([]OutcomeRecord, 0, len(sum.Outcomes)),
	}
	for _, o := range sum.Outcomes {
		rec := OutcomeRecord{
			Entity:   o.Entity.String(),
			Kind:     o.Kind,
			Changed:  o.Changed,
			Observed: o.Observed,
			Warnings: o.Warnings,
			Requeued: o.Requeued,
		}
		if o.Err != nil {
			rec.Classification = o.Classification().String()
			rec.Error = o.Err.Error()
		}
		r.Outcomes = append(r.Outcomes, rec)
	}
	return r
}

type jsonReporter struct {
	writer io.WriteCloser
	enc    *json.Encoder
}

func (r *jsonReporter) Write(rep Report) error {
	if err := r.enc.Encode(rep); err != nil {
		return fmt.Errorf("encoding report %s: %w", rep.ID, err)
	}
	return nil
}

func (r *jsonReporter) Close() error {
	return r.writer.Close()
}

// New creates a reporter for format that writes to the file at outputPath.
func New(format, outputPath string) (Reporter, error) {
	if format != "json" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if outputPath == "" {
		return nil, errors.New("report output path is required")
	}

	writer, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}

	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return &jsonReporter{writer: writer, enc: enc}, nil
}

// WriteToDir writes r as its own JSON file under dir and returns the path.
func WriteToDir(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s-%s", r.StartedAt.Format("20060102-150405"), slug(r.Mode))
	if r.Container != "" {
		name += "-" + slug(r.Container)
	}
	if len(r.ID) >= 8 {
		name += "-" + r.ID[:8]
	}
	path := filepath.Join(dir, name+".json")

	rep, err := New("json", path)
	if err != nil {
		return "", err
	}
	if err := rep.Write(r); err != nil {
		_ = rep.Close()
		return "", err
	}
	return path, rep.Close()
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
}
