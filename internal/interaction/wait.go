package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

// Pause sleeps for d or until ctx is done. Non-positive durations return at once.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitVisible polls until an element matching sel is visible. It always makes
// at least one attempt, so a zero timeout is a single check.
func WaitVisible(ctx context.Context, d uidriver.Driver, sel uidriver.Selector, timeout, interval time.Duration) (uidriver.Handle, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		h, err := d.Find(ctx, sel)
		if err == nil {
			visible, verr := d.IsVisible(ctx, h)
			if verr == nil && visible {
				return h, nil
			}
			err = verr
			if err == nil {
				err = fmt.Errorf("%s is present but hidden: %w", sel, uidriver.ErrNotFound)
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := Pause(ctx, interval); err != nil {
			return nil, err
		}
	}
	if errors.Is(lastErr, uidriver.ErrNotFound) || errors.Is(lastErr, uidriver.ErrStale) {
		return nil, fmt.Errorf("waiting %s for %s: %w", timeout, sel, uidriver.ErrTimeout)
	}
	return nil, fmt.Errorf("waiting for %s: %w", sel, lastErr)
}

// AnyVisible reports whether at least one of the handles is visible. Handles
// that went stale count as invisible.
func AnyVisible(ctx context.Context, d uidriver.Driver, handles []uidriver.Handle) bool {
	for _, h := range handles {
		if ok, err := d.IsVisible(ctx, h); err == nil && ok {
			return true
		}
	}
	return false
}

// HasClass reports whether the element's class attribute contains class as a
// whole token.
func HasClass(ctx context.Context, d uidriver.Driver, h uidriver.Handle, class string) (bool, error) {
	v, ok, err := d.Attribute(ctx, h, "class")
	if err != nil || !ok {
		return false, err
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true, nil
		}
	}
	return false, nil
}

// VisibleMatches returns the visible elements matching sel, in document order.
func VisibleMatches(ctx context.Context, d uidriver.Driver, sel uidriver.Selector) ([]uidriver.Handle, error) {
	all, err := d.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, h := range all {
		if ok, err := d.IsVisible(ctx, h); err == nil && ok {
			out = append(out, h)
		}
	}
	return out, nil
}
