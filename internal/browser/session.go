package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

// objectGroup holds every remote object the session creates. It is released
// on navigation, which invalidates the objects anyway.
const objectGroup = "autotiss"

// ErrNotInteractable means a pointer click would not reach the element.
var ErrNotInteractable = errors.New("element is not interactable")

// element is a handle backed by a CDP remote object.
type element struct {
	id   runtime.RemoteObjectID
	desc string
}

func (e element) Ref() string { return e.desc }

// Session is one browser tab implementing uidriver.Driver. Each method is a
// single bounded CDP round trip; retries and waits belong to the caller.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	actionTimeout     time.Duration
	navigationTimeout time.Duration
	pollInterval      time.Duration

	closeOnce sync.Once
	onClose   func()
}

var _ uidriver.Driver = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	return &Session{
		ctx:               ctx,
		cancel:            cancel,
		logger:            logger.Named("session"),
		actionTimeout:     cfg.ActionTimeout,
		navigationTimeout: cfg.NavigationTimeout,
		pollInterval:      100 * time.Millisecond,
	}
}

// Close closes the tab.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}

// run executes fn against the tab, bounded by both the session lifetime and
// ctx, plus timeout when positive.
func (s *Session) run(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}

	err := chromedp.Run(runCtx, chromedp.ActionFunc(fn))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return classify(err)
}

// classify maps CDP failures onto the uidriver sentinels.
func classify(err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, uidriver.ErrStale), errors.Is(err, uidriver.ErrNotFound), errors.Is(err, uidriver.ErrTimeout):
		return err
	case strings.Contains(msg, "Could not find object with given id"),
		strings.Contains(msg, "Could not find node with given id"),
		strings.Contains(msg, "Cannot find context with specified id"),
		strings.Contains(msg, "Execution context was destroyed"):
		return fmt.Errorf("%v: %w", err, uidriver.ErrStale)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%v: %w", err, uidriver.ErrTimeout)
	default:
		return err
	}
}

func scriptError(exc *runtime.ExceptionDetails) error {
	if exc.Exception != nil && exc.Exception.Description != "" {
		return fmt.Errorf("script exception: %s", exc.Exception.Description)
	}
	return fmt.Errorf("script exception: %s", exc.Text)
}

// evalValue evaluates expr in the page and decodes its JSON value into out.
func evalValue(ctx context.Context, expr string, out any) error {
	res, exc, err := runtime.Evaluate(expr).WithReturnByValue(true).Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return scriptError(exc)
	}
	if len(res.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(res.Value), out)
}

// evalObject evaluates expr and returns the resulting node, or ErrNotFound
// when it is null or undefined.
func evalObject(ctx context.Context, expr string) (runtime.RemoteObjectID, error) {
	res, exc, err := runtime.Evaluate(expr).WithObjectGroup(objectGroup).Do(ctx)
	if err != nil {
		return "", err
	}
	if exc != nil {
		return "", scriptError(exc)
	}
	if res.ObjectID == "" {
		return "", uidriver.ErrNotFound
	}
	return res.ObjectID, nil
}

// callValue runs fn with the element as this and decodes the result into out.
// A detached element yields ErrStale.
func callValue(ctx context.Context, h uidriver.Handle, fn string, out any) error {
	el, ok := h.(element)
	if !ok {
		return fmt.Errorf("foreign handle %T", h)
	}
	res, exc, err := runtime.CallFunctionOn(connected(fn)).
		WithObjectID(el.id).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return scriptError(exc)
	}
	var env struct {
		Stale bool            `json:"stale"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal([]byte(res.Value), &env); err != nil {
		return fmt.Errorf("decoding script result: %w", err)
	}
	if env.Stale {
		return fmt.Errorf("%s: %w", el.desc, uidriver.ErrStale)
	}
	if out == nil || len(env.Value) == 0 {
		return nil
	}
	return json.Unmarshal(env.Value, out)
}

// callObject runs fn with the element as this and returns the node it yields.
func callObject(ctx context.Context, h uidriver.Handle, fn string) (runtime.RemoteObjectID, error) {
	el, ok := h.(element)
	if !ok {
		return "", fmt.Errorf("foreign handle %T", h)
	}
	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(el.id).
		WithObjectGroup(objectGroup).
		Do(ctx)
	if err != nil {
		return "", err
	}
	if exc != nil {
		return "", scriptError(exc)
	}
	if res.ObjectID == "" {
		return "", uidriver.ErrNotFound
	}
	return res.ObjectID, nil
}

func (s *Session) Find(ctx context.Context, sel uidriver.Selector) (uidriver.Handle, error) {
	var h uidriver.Handle
	err := s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		id, err := evalObject(ctx, queryExpr(sel, "[0]"))
		if err != nil {
			return err
		}
		h = element{id: id, desc: sel.String()}
		return nil
	})
	if errors.Is(err, uidriver.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", sel, uidriver.ErrNotFound)
	}
	return h, err
}

func (s *Session) FindAll(ctx context.Context, sel uidriver.Selector) ([]uidriver.Handle, error) {
	var out []uidriver.Handle
	err := s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		var n int
		if err := evalValue(ctx, queryExpr(sel, ".length"), &n); err != nil {
			return err
		}
		out = make([]uidriver.Handle, 0, n)
		for i := 0; i < n; i++ {
			id, err := evalObject(ctx, queryExpr(sel, fmt.Sprintf("[%d]", i)))
			if errors.Is(err, uidriver.ErrNotFound) {
				// The list shrank while we were reading it.
				break
			}
			if err != nil {
				return err
			}
			out = append(out, element{id: id, desc: fmt.Sprintf("%s[%d]", sel, i)})
		}
		return nil
	})
	return out, err
}

func (s *Session) FindWithin(ctx context.Context, parent uidriver.Handle, sel uidriver.Selector) ([]uidriver.Handle, error) {
	var out []uidriver.Handle
	err := s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		var n int
		if err := callValue(ctx, parent, queryWithinFn(sel, ".length"), &n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			id, err := callObject(ctx, parent, queryWithinFn(sel, fmt.Sprintf("[%d]", i)))
			if errors.Is(err, uidriver.ErrNotFound) {
				break
			}
			if err != nil {
				return err
			}
			out = append(out, element{id: id, desc: fmt.Sprintf("%s > %s[%d]", parent.Ref(), sel, i)})
		}
		return nil
	})
	return out, err
}

func (s *Session) Closest(ctx context.Context, h uidriver.Handle, sel uidriver.Selector) (uidriver.Handle, error) {
	var out uidriver.Handle
	err := s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		if err := callValue(ctx, h, `function() { return true; }`, nil); err != nil {
			return err
		}
		id, err := callObject(ctx, h, closestFn(sel))
		if err != nil {
			return err
		}
		out = element{id: id, desc: fmt.Sprintf("%s < %s", h.Ref(), sel)}
		return nil
	})
	if errors.Is(err, uidriver.ErrNotFound) {
		return nil, fmt.Errorf("no %s around %s: %w", sel, h.Ref(), uidriver.ErrNotFound)
	}
	return out, err
}

func (s *Session) IsVisible(ctx context.Context, h uidriver.Handle) (bool, error) {
	var visible bool
	err := s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		return callValue(ctx, h, visibleJS, &visible)
	})
	return visible, err
}

func (s *Session) Attribute(ctx context.Context, h uidriver.Handle, name string) (string, bool, error) {
	var attr struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	err := s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		return callValue(ctx, h, attributeFn(name), &attr)
	})
	return attr.Value, attr.Present, err
}

func (s *Session) Text(ctx context.Context, h uidriver.Handle) (string, error) {
	var text string
	err := s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		return callValue(ctx, h, textJS, &text)
	})
	return text, err
}

func (s *Session) ScrollIntoView(ctx context.Context, h uidriver.Handle) error {
	return s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		return callValue(ctx, h, scrollJS, nil)
	})
}

// Click dispatches a real mouse click at the element's centre. It refuses
// when another element would receive the click, which is how a covering
// overlay or a not-yet-opened panel shows up.
func (s *Session) Click(ctx context.Context, h uidriver.Handle) error {
	return s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		var point *struct {
			X   float64 `json:"x"`
			Y   float64 `json:"y"`
			Hit bool    `json:"hit"`
		}
		if err := callValue(ctx, h, clickPointJS, &point); err != nil {
			return err
		}
		if point == nil {
			return fmt.Errorf("%s has no box: %w", h.Ref(), ErrNotInteractable)
		}
		if !point.Hit {
			return fmt.Errorf("%s is covered at (%.0f, %.0f): %w", h.Ref(), point.X, point.Y, ErrNotInteractable)
		}
		return chromedp.MouseClickXY(point.X, point.Y).Do(ctx)
	})
}

// ForceClick calls the element's click() directly.
func (s *Session) ForceClick(ctx context.Context, h uidriver.Handle) error {
	return s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		return callValue(ctx, h, clickJS, nil)
	})
}

// TypeText focuses the element and sends key events, so widgets that filter
// on keyup see every character.
func (s *Session) TypeText(ctx context.Context, h uidriver.Handle, text string) error {
	return s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		if err := callValue(ctx, h, focusJS, nil); err != nil {
			return err
		}
		return chromedp.KeyEvent(text).Do(ctx)
	})
}

func (s *Session) Clear(ctx context.Context, h uidriver.Handle) error {
	return s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		return callValue(ctx, h, clearJS, nil)
	})
}

func (s *Session) SendEscape(ctx context.Context) error {
	return s.run(ctx, s.actionTimeout, func(ctx context.Context) error {
		return chromedp.KeyEvent(kb.Escape).Do(ctx)
	})
}

func (s *Session) WaitUntilInvisible(ctx context.Context, sel uidriver.Selector, timeout time.Duration) error {
	var hidden bool
	err := s.run(ctx, timeout+s.actionTimeout, func(ctx context.Context) error {
		return chromedp.Poll(allHiddenExpr(sel), &hidden,
			chromedp.WithPollingTimeout(timeout),
			chromedp.WithPollingInterval(s.pollInterval),
		).Do(ctx)
	})
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%s still visible after %s: %w", sel, timeout, uidriver.ErrTimeout)
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating session.", zap.String("url", url))
	err := s.run(ctx, s.navigationTimeout, func(ctx context.Context) error {
		if err := runtime.ReleaseObjectGroup(objectGroup).Do(ctx); err != nil {
			s.logger.Debug("Could not release remote objects.", zap.Error(err))
		}
		return chromedp.Navigate(url).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}
