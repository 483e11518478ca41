// Package interaction holds the low-level building blocks of the engine: the
// overlay wait, the resilient action executor, the status prober and the row
// locator. None of them keeps state between calls; every element is resolved
// fresh from the live document.
package interaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

var (
	// ErrModalStuck means a dialog or overlay stayed open after the step that
	// should have closed it.
	ErrModalStuck = errors.New("modal did not close")
	// ErrConfiguration marks missing or malformed operator-supplied input.
	ErrConfiguration = errors.New("configuration error")
)

// Kind is the classification attached to every failure the engine reports.
type Kind int

const (
	KindNone Kind = iota
	KindTransient
	KindNotFound
	KindModalStuck
	KindConfiguration
	KindCanceled
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindModalStuck:
		return "modal_stuck"
	case KindConfiguration:
		return "configuration"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps an error chain to its Kind. Cancellation wins over everything
// else so an interrupted entity is never reported as a UI fault.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrModalStuck):
		return KindModalStuck
	case errors.Is(err, uidriver.ErrStale):
		return KindTransient
	case errors.Is(err, uidriver.ErrNotFound), errors.Is(err, uidriver.ErrTimeout):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// IsTransient reports whether err is worth another attempt after a short
// backoff: the node was replaced, or it has not been rendered yet.
func IsTransient(err error) bool {
	return errors.Is(err, uidriver.ErrStale) || errors.Is(err, uidriver.ErrNotFound)
}

// ActionFailedError is returned by the executor once every attempt at an
// action has been used up.
type ActionFailedError struct {
	Target   string
	Action   string
	Attempts int
	Err      error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("%s on %s failed after %d attempt(s): %v", e.Action, e.Target, e.Attempts, e.Err)
}

func (e *ActionFailedError) Unwrap() error { return e.Err }
