package interaction

import (
	"testing"
	"time"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver/uidrivertest"
)

// testConfig returns the default configuration with every delay removed.
func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Engine.Timings = config.TimingsConfig{PollInterval: time.Millisecond}
	return cfg
}

// listing builds a listing with one row per name, each row holding an edit
// affordance named "edit<N>".
func listing(t *testing.T, f *uidrivertest.Fake, cfg *config.Config, names ...string) []*uidrivertest.Element {
	t.Helper()
	rows := make([]*uidrivertest.Element, 0, len(names))
	for i, name := range names {
		row := f.Add(nil, name, cfg.Selectors.Row)
		f.Add(row, editName(i), cfg.Selectors.EditAffordance)
		rows = append(rows, row)
	}
	return rows
}

func editName(i int) string {
	return "edit" + string(rune('1'+i))
}
