// Package input reads the operator's input list: the desired associations,
// the provider names and the container names. The file is re-read at the
// start of every cycle so edits between cycles take effect.
package input

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/interaction"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInput marks an unusable input file. It is a configuration error: the
// engine carries on with empty lists.
var ErrInput = fmt.Errorf("input list unusable: %w", interaction.ErrConfiguration)

// Lists is one snapshot of the input file.
type Lists struct {
	Associations []string
	Providers    []string
	Containers   []string
	Warnings     []string
}

// Source loads Lists from a YAML or JSON mapping file.
type Source struct {
	path   string
	fields config.InputConfig
	logger *zap.Logger

	mu      sync.Mutex
	lastErr string
}

func NewSource(cfg config.InputConfig, logger *zap.Logger) *Source {
	return &Source{path: cfg.Path, fields: cfg, logger: logger.Named("input")}
}

// Path is the file being read.
func (s *Source) Path() string { return s.path }

// Load reads the file. On error the returned Lists are empty and the error
// wraps ErrInput; the same error is only logged once in a row.
func (s *Source) Load() (Lists, error) {
	lists, err := s.load()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if msg := err.Error(); msg != s.lastErr {
			s.lastErr = msg
			s.logger.Error("Input list could not be used, continuing with empty lists.", zap.Error(err))
		}
		return Lists{}, err
	}
	s.lastErr = ""
	for _, w := range lists.Warnings {
		s.logger.Warn(w, zap.String("path", s.path))
	}
	return lists, nil
}

func (s *Source) load() (Lists, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Lists{}, fmt.Errorf("%w: %s does not exist", ErrInput, s.path)
		}
		return Lists{}, fmt.Errorf("%w: %v", ErrInput, err)
	}

	// YAML is a superset of JSON, so the legacy dados.json decodes as is.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Lists{}, fmt.Errorf("%w: parsing %s: %v", ErrInput, s.path, err)
	}

	var lists Lists
	fields := []struct {
		name string
		dst  *[]string
	}{
		{s.fields.AssociationsField, &lists.Associations},
		{s.fields.ProvidersField, &lists.Providers},
		{s.fields.ContainersField, &lists.Containers},
	}
	for _, f := range fields {
		raw, err := stringList(doc, f.name)
		if err != nil {
			return Lists{}, fmt.Errorf("%w: %s: %v", ErrInput, s.path, err)
		}
		var warnings []string
		*f.dst, warnings = Normalize(f.name, raw)
		lists.Warnings = append(lists.Warnings, warnings...)
	}
	return lists, nil
}

// stringList extracts a sequence of scalars. A missing field is an empty list.
func stringList(doc map[string]any, field string) ([]string, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q must be a list, got %T", field, v)
	}
	out := make([]string, 0, len(seq))
	for i, item := range seq {
		switch x := item.(type) {
		case nil:
			out = append(out, "")
		case string:
			out = append(out, x)
		case int, int64, uint64, float64, bool:
			out = append(out, fmt.Sprint(x))
		default:
			return nil, fmt.Errorf("field %q item %d must be a string, got %T", field, i, item)
		}
	}
	return out, nil
}

// Normalize trims values, drops blanks and drops later duplicates, keeping
// the first occurrence's position. Each dropped duplicate yields a warning.
func Normalize(field string, values []string) ([]string, []string) {
	var (
		out      = make([]string, 0, len(values))
		warnings []string
		seen     = make(map[string]struct{}, len(values))
	)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			warnings = append(warnings, fmt.Sprintf("Duplicate %q in %s dropped.", v, field))
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, warnings
}
