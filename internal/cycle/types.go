// Package cycle runs one pass of the engine over an ordered entity list, with
// a cooperative pause point before every entity and a single requeue pass for
// the entities that failed.
package cycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xkilldash9x/autotiss/internal/interaction"
)

// Entity is one unit of work: a row ordinal in the current listing, a provider
// name, or both.
type Entity struct {
	Index int
	Name  string
}

// Key identifies the entity within a cycle.
func (e Entity) Key() string {
	if e.Name != "" {
		return "name:" + e.Name
	}
	return "row:" + strconv.Itoa(e.Index)
}

func (e Entity) String() string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("row %d", e.Index+1)
}

// Rows returns entities for the first n listing rows.
func Rows(n int) []Entity {
	out := make([]Entity, n)
	for i := range out {
		out[i] = Entity{Index: i}
	}
	return out
}

// Named returns one entity per name, preserving order.
func Named(names []string) []Entity {
	out := make([]Entity, len(names))
	for i, n := range names {
		out[i] = Entity{Index: i, Name: n}
	}
	return out
}

// Kind is the terminal state of one entity.
type Kind int

const (
	Applied Kind = iota + 1
	Unchanged
	SkippedInactive
	Failed
)

func (k Kind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Unchanged:
		return "unchanged"
	case SkippedInactive:
		return "skipped_inactive"
	case Failed:
		return "failed"
	default:
		return "invalid"
	}
}

// MarshalText lets reports carry the readable name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Outcome is what processing one entity produced.
type Outcome struct {
	Entity   Entity
	Kind     Kind
	Err      error
	Changed  []string
	Observed map[string]bool
	Warnings []string
	// Requeued marks outcomes produced by the requeue pass.
	Requeued bool
}

// Classification is the error kind of a failed outcome.
func (o Outcome) Classification() interaction.Kind {
	return interaction.Classify(o.Err)
}

// Fail builds a Failed outcome.
func Fail(e Entity, err error) Outcome {
	return Outcome{Entity: e, Kind: Failed, Err: err}
}

// Processor handles a single entity and always reaches a terminal outcome.
// Implementations must leave the UI navigable before returning.
type Processor interface {
	Process(ctx context.Context, e Entity) Outcome
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, e Entity) Outcome

func (f ProcessorFunc) Process(ctx context.Context, e Entity) Outcome { return f(ctx, e) }

// Summary aggregates one cycle. Counts reflect each entity's final outcome, so
// an entity that failed and then succeeded on requeue counts once, as success.
type Summary struct {
	ID         string
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time

	Applied   int
	Unchanged int
	Skipped   int
	Failed    int
	Requeued  int
	Recovered int

	// Outcomes holds the final outcome per entity in input order.
	Outcomes []Outcome
	// Interrupted is set when the cycle stopped before reaching every entity.
	Interrupted bool
}

// Total is the number of entities that reached a final outcome.
func (s Summary) Total() int {
	return s.Applied + s.Unchanged + s.Skipped + s.Failed
}

// Failures lists the outcomes still failed at the end of the cycle.
func (s Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Kind == Failed {
			out = append(out, o)
		}
	}
	return out
}

func (s *Summary) count(o Outcome) {
	switch o.Kind {
	case Applied:
		s.Applied++
	case Unchanged:
		s.Unchanged++
	case SkippedInactive:
		s.Skipped++
	default:
		s.Failed++
	}
}
