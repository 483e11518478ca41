// internal/uidriver/driver.go
// Package uidriver defines the boundary between the reconciliation engine and
// whatever is actually driving the remote UI. The engine only ever talks to a
// Driver; the chromedp implementation lives in internal/browser and a scripted
// in-memory implementation lives in uidrivertest.
package uidriver

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a selector matches no live element.
	ErrNotFound = errors.New("element not found")
	// ErrStale indicates the handle no longer refers to a node in the document.
	// The UI re-renders rows and dialogs freely, so this is an expected condition.
	ErrStale = errors.New("element reference is stale")
	// ErrTimeout is returned by bounded waits that ran out of time.
	ErrTimeout = errors.New("timed out waiting for element state")
)

// Handle is an opaque reference to a live element. It is only valid until the
// next re-render of the part of the page that contains it.
type Handle interface {
	// Ref returns a short description suitable for logs.
	Ref() string
}

// Selector locates elements. Query is CSS unless XPath is set.
type Selector struct {
	Query string
	XPath bool
}

// CSS builds a CSS selector.
func CSS(q string) Selector { return Selector{Query: q} }

// XPath builds an XPath selector.
func XPath(q string) Selector { return Selector{Query: q, XPath: true} }

// Parse turns a configured locator string into a Selector. Strings with an
// "xpath:" prefix, or starting with "/" or "(", are XPath; anything else is CSS.
func Parse(s string) Selector {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "xpath:"); ok {
		return XPath(strings.TrimSpace(rest))
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return XPath(s)
	}
	return CSS(s)
}

// IsZero reports whether the selector is unset.
func (s Selector) IsZero() bool { return s.Query == "" }

func (s Selector) String() string {
	if s.XPath {
		return "xpath:" + s.Query
	}
	return s.Query
}

// Driver is everything the engine needs from a UI session. Implementations
// must not retry or wait implicitly beyond what each method documents; the
// engine owns all retry and wait policy.
type Driver interface {
	// Find returns the first element matching sel, or ErrNotFound.
	Find(ctx context.Context, sel Selector) (Handle, error)
	// FindAll returns every element matching sel in document order. An empty
	// result is not an error.
	FindAll(ctx context.Context, sel Selector) ([]Handle, error)
	// FindWithin is FindAll scoped to the descendants of parent.
	FindWithin(ctx context.Context, parent Handle, sel Selector) ([]Handle, error)
	// Closest returns the nearest ancestor of h (or h itself) matching sel.
	Closest(ctx context.Context, h Handle, sel Selector) (Handle, error)

	IsVisible(ctx context.Context, h Handle) (bool, error)
	// Attribute returns the attribute value and whether it was present.
	Attribute(ctx context.Context, h Handle, name string) (string, bool, error)
	// Text returns the rendered text of the element.
	Text(ctx context.Context, h Handle) (string, error)

	ScrollIntoView(ctx context.Context, h Handle) error
	// Click simulates a real pointer click and fails when the element is not
	// interactable.
	Click(ctx context.Context, h Handle) error
	// ForceClick invokes the element's click directly, bypassing
	// visibility and hit-testing.
	ForceClick(ctx context.Context, h Handle) error
	TypeText(ctx context.Context, h Handle, text string) error
	Clear(ctx context.Context, h Handle) error
	// SendEscape dispatches an Escape key press to the focused document.
	SendEscape(ctx context.Context) error

	// WaitUntilInvisible blocks until no visible element matches sel, or
	// returns ErrTimeout once timeout elapses.
	WaitUntilInvisible(ctx context.Context, sel Selector, timeout time.Duration) error
	Navigate(ctx context.Context, url string) error
}
