package interaction

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

// SelfRowPolicy turns the number of rendered rows into the number to process.
type SelfRowPolicy func(rows int) int

// ExcludeLastRow assumes the last row of a multi-row listing is the operator's
// own account and leaves it alone. A single row is always processed.
func ExcludeLastRow(rows int) int {
	if rows > 1 {
		return rows - 1
	}
	return rows
}

// IncludeAllRows processes every rendered row.
func IncludeAllRows(rows int) int { return rows }

// PolicyByName resolves the engine.self_row_policy setting.
func PolicyByName(name string) (SelfRowPolicy, error) {
	switch name {
	case "", config.SelfRowLast:
		return ExcludeLastRow, nil
	case config.SelfRowNone:
		return IncludeAllRows, nil
	default:
		return nil, fmt.Errorf("unknown self row policy %q: %w", name, ErrConfiguration)
	}
}

// RowLocator finds listing rows through their edit affordances. Nothing is
// cached; every call reads the live document.
type RowLocator struct {
	driver     uidriver.Driver
	affordance uidriver.Selector
	row        uidriver.Selector
	policy     SelfRowPolicy
}

func NewRowLocator(d uidriver.Driver, cfg *config.Config, policy SelfRowPolicy) *RowLocator {
	if policy == nil {
		policy = ExcludeLastRow
	}
	return &RowLocator{
		driver:     d,
		affordance: uidriver.Parse(cfg.Selectors.EditAffordance),
		row:        uidriver.Parse(cfg.Selectors.Row),
		policy:     policy,
	}
}

// Rows returns the edit affordance of every rendered row, in document order.
func (l *RowLocator) Rows(ctx context.Context) ([]uidriver.Handle, error) {
	return l.driver.FindAll(ctx, l.affordance)
}

// Total is the number of rows to process after the self-row policy.
func (l *RowLocator) Total(ctx context.Context) (int, error) {
	rows, err := l.Rows(ctx)
	if err != nil {
		return 0, err
	}
	return l.policy(len(rows)), nil
}

// Row returns the row container of the index-th entity.
func (l *RowLocator) Row(ctx context.Context, index int) (uidriver.Handle, error) {
	aff, err := Nth(l.driver, l.affordance, index).Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return l.driver.Closest(ctx, aff, l.row)
}

// EditTarget is the index-th edit affordance as an executor target.
func (l *RowLocator) EditTarget(index int) Target {
	return Nth(l.driver, l.affordance, index)
}

// Affordance targets the first edit affordance on the page.
func (l *RowLocator) Affordance() Target {
	return Select(l.driver, l.affordance)
}
