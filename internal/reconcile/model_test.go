package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver/uidrivertest"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Engine.Timings = config.TimingsConfig{PollInterval: time.Millisecond}
	return cfg
}

func testDeps(t *testing.T, f *uidrivertest.Fake, cfg *config.Config) Deps {
	t.Helper()
	deps, err := NewDeps(f, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDeps: %v", err)
	}
	return deps
}

// listingModel is a small behavioural model of the personnel listing and its
// association dialog: rows with edit icons, a detail dialog holding a
// checkbox-menu picker, and Save/Cancel buttons that commit or discard.
type listingModel struct {
	f   *uidrivertest.Fake
	cfg *config.Config

	rows  []*uidrivertest.Element
	edits []*uidrivertest.Element
	assoc []map[string]bool

	dialog  *uidrivertest.Element
	trigger *uidrivertest.Element
	label   *uidrivertest.Element
	filter  *uidrivertest.Element
	header  *uidrivertest.Element
	closeEl *uidrivertest.Element
	save    *uidrivertest.Element
	cancel  *uidrivertest.Element
	items   []*uidrivertest.Element
	toggles []*uidrivertest.Element
	options []string

	current   int
	pending   map[string]bool
	panelOpen bool
	saves     int
	cancels   int
}

// newListing renders one row per entry in rows; each entry lists the
// associations that row already has.
func newListing(cfg *config.Config, options []string, rows ...[]string) *listingModel {
	f := uidrivertest.New()
	s := cfg.Selectors
	m := &listingModel{f: f, cfg: cfg, options: options, current: -1}

	for i, has := range rows {
		row := f.Add(nil, "row"+itoa(i+1), s.Row)
		edit := f.Add(row, "edit"+itoa(i+1), s.EditAffordance)
		edit.OnClick = func() error { m.openDetail(i); return nil }
		set := map[string]bool{}
		for _, h := range has {
			set[h] = true
		}
		m.rows = append(m.rows, row)
		m.edits = append(m.edits, edit)
		m.assoc = append(m.assoc, set)
	}

	m.dialog = f.Add(nil, "picker", s.Picker)
	m.dialog.Visible = false
	m.trigger = f.Add(m.dialog, "trigger", s.PickerTrigger)
	m.trigger.OnClick = func() error { m.openPanel(); return nil }
	m.label = f.Add(m.dialog, "label", s.PickerLabel)
	m.label.OnClick = func() error { m.openPanel(); return nil }
	m.dialog.OnClick = func() error { m.openPanel(); return nil }

	m.filter = f.Add(nil, "filter", s.PickerFilter)
	m.filter.OnInput = func(string) { m.refresh() }
	m.header = f.Add(nil, "header", s.PickerHeaderToggle)
	m.header.OnClick = func() error {
		for i, it := range m.items {
			if it.Visible {
				m.pending[m.options[i]] = true
			}
		}
		m.refresh()
		return nil
	}
	for _, opt := range options {
		it := f.Add(nil, "item:"+opt, s.PickerItem)
		it.Text = opt
		tg := f.Add(it, "toggle:"+opt, s.PickerItemToggle)
		tg.OnClick = func() error {
			m.pending[opt] = !m.pending[opt]
			m.refresh()
			return nil
		}
		m.items = append(m.items, it)
		m.toggles = append(m.toggles, tg)
	}

	m.closeEl = f.Add(nil, "close", s.PickerClose)
	m.closeEl.OnClick = func() error { m.panelOpen = false; m.refresh(); return nil }
	m.save = f.Add(nil, "save", s.SaveButton)
	m.save.OnClick = func() error {
		m.saves++
		m.assoc[m.current] = m.pending
		m.closeDialog()
		return nil
	}
	m.cancel = f.Add(nil, "cancel", s.CancelButton)
	m.cancel.OnClick = func() error {
		m.cancels++
		m.closeDialog()
		return nil
	}
	f.OnEscape = func() {
		if m.panelOpen {
			m.panelOpen = false
		} else {
			m.dialog.Visible = false
		}
		m.refresh()
	}
	m.refresh()
	return m
}

func (m *listingModel) openDetail(i int) {
	m.current = i
	m.pending = map[string]bool{}
	for k, v := range m.assoc[i] {
		m.pending[k] = v
	}
	m.dialog.Visible = true
	m.refresh()
}

func (m *listingModel) openPanel() {
	if m.dialog.Visible {
		m.panelOpen = true
	}
	m.filter.Value = ""
	m.refresh()
}

func (m *listingModel) closeDialog() {
	m.panelOpen = false
	m.dialog.Visible = false
	m.refresh()
}

// refresh recomputes visibility and checkbox classes from the model state.
func (m *listingModel) refresh() {
	m.filter.Visible = m.panelOpen
	m.header.Visible = m.panelOpen
	m.closeEl.Visible = m.panelOpen
	needle := strings.ToLower(m.filter.Value)
	shown, allSelected := 0, true
	for i, opt := range m.options {
		visible := m.panelOpen && strings.Contains(strings.ToLower(opt), needle)
		m.items[i].Visible = visible
		m.toggles[i].Visible = visible
		m.toggles[i].SetClass(m.cfg.Selectors.ActiveClass, m.pending[opt])
		if visible {
			shown++
			allSelected = allSelected && m.pending[opt]
		}
	}
	m.header.SetClass(m.cfg.Selectors.ActiveClass, shown > 0 && allSelected)
}

func itoa(i int) string {
	return string(rune('0' + i))
}
