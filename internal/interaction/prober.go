package interaction

import (
	"context"
	"strings"
	"unicode"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
	"go.uber.org/zap"
)

// Status is the activation state of one listed entity.
type Status int

const (
	StatusUnknown Status = iota
	StatusActive
	StatusInactive
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Evidence records which rule decided a probe.
type Evidence string

const (
	EvidenceDeactivate  Evidence = "deactivate_affordance"
	EvidenceActivate    Evidence = "activate_affordance"
	EvidenceAffirmative Evidence = "affirmative_marker"
	EvidenceNegative    Evidence = "negative_marker"
	EvidenceDefault     Evidence = "default"
)

// Prober classifies a row as active or inactive from what is rendered in it.
// Visible affordances win over text, and anything undecidable is treated as
// active so that ambiguous entities still get processed.
type Prober struct {
	driver      uidriver.Driver
	deactivate  uidriver.Selector
	activate    uidriver.Selector
	affirmative []string
	negative    []string
	logger      *zap.Logger
}

func NewProber(d uidriver.Driver, cfg *config.Config, logger *zap.Logger) *Prober {
	return &Prober{
		driver:      d,
		deactivate:  uidriver.Parse(cfg.Selectors.DeactivateAffordance),
		activate:    uidriver.Parse(cfg.Selectors.ActivateAffordance),
		affirmative: cfg.Selectors.AffirmativeMarkers,
		negative:    cfg.Selectors.NegativeMarkers,
		logger:      logger.Named("prober"),
	}
}

// Probe returns the row's status and the rule that produced it.
func (p *Prober) Probe(ctx context.Context, row uidriver.Handle) (Status, Evidence) {
	if p.visibleWithin(ctx, row, p.deactivate) {
		return StatusActive, EvidenceDeactivate
	}
	if p.visibleWithin(ctx, row, p.activate) {
		return StatusInactive, EvidenceActivate
	}

	text, err := p.driver.Text(ctx, row)
	if err != nil {
		p.logger.Debug("Row text unavailable, defaulting to active.", zap.String("row", row.Ref()), zap.Error(err))
		return StatusActive, EvidenceDefault
	}
	tokens := markerTokens(text)
	if containsAny(tokens, p.affirmative) {
		return StatusActive, EvidenceAffirmative
	}
	if containsAny(tokens, p.negative) {
		return StatusInactive, EvidenceNegative
	}
	return StatusActive, EvidenceDefault
}

func (p *Prober) visibleWithin(ctx context.Context, row uidriver.Handle, sel uidriver.Selector) bool {
	found, err := p.driver.FindWithin(ctx, row, sel)
	if err != nil {
		p.logger.Debug("Affordance lookup failed.", zap.String("selector", sel.String()), zap.Error(err))
		return false
	}
	return AnyVisible(ctx, p.driver, found)
}

// markerTokens splits rendered text into words so a marker like "Sim" does not
// match inside a name like "Simone".
func markerTokens(text string) map[string]struct{} {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[strings.ToLower(w)] = struct{}{}
	}
	return out
}

func containsAny(tokens map[string]struct{}, markers []string) bool {
	for _, m := range markers {
		if _, ok := tokens[strings.ToLower(strings.TrimSpace(m))]; ok {
			return true
		}
	}
	return false
}
