// Package uidrivertest provides a scriptable in-memory uidriver.Driver.
//
// Tests build a small element tree, attach behaviour to clicks and typing, and
// inject faults (stale references, failed clicks) per operation and target.
// Every call is recorded so tests can assert on the exact interaction sequence.
// A Fake is not safe for concurrent use; neither is the engine that drives it.
package uidrivertest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

// Operation names used in recorded calls and fault injection.
const (
	OpFind       = "find"
	OpFindAll    = "find_all"
	OpScroll     = "scroll"
	OpClick      = "click"
	OpForceClick = "force_click"
	OpType       = "type"
	OpClear      = "clear"
	OpEscape     = "escape"
	OpWaitHidden = "wait_invisible"
	OpNavigate   = "navigate"
	OpVisible    = "visible"
	OpText       = "text"
	OpAttribute  = "attribute"
	OpFindWithin = "find_within"
	OpClosest    = "closest"
)

// ErrNotInteractable is returned by Click on hidden elements.
var ErrNotInteractable = errors.New("element is not interactable")

// Element is a node in the fake document.
type Element struct {
	Name    string
	Attrs   map[string]string
	Text    string
	Value   string
	Visible bool

	// OnClick runs after a successful Click or ForceClick.
	OnClick func() error
	// OnInput runs after TypeText or Clear with the new value.
	OnInput func(value string)

	matches  map[string]bool
	parent   *Element
	children []*Element
	detached bool
}

// Call is one recorded driver invocation.
type Call struct {
	Op     string
	Target string
	Arg    string
	Err    bool
}

type fault struct {
	op, target string
	err        error
	remaining  int
}

// Fake implements uidriver.Driver over an Element tree.
type Fake struct {
	root   *Element
	calls  []Call
	faults []*fault

	// OnEscape runs after SendEscape.
	OnEscape func()
	// OnNavigate runs on Navigate; a nil hook accepts every URL.
	OnNavigate func(url string) error
}

var _ uidriver.Driver = (*Fake)(nil)

type handle struct{ el *Element }

func (h handle) Ref() string { return h.el.Name }

// New returns an empty document.
func New() *Fake {
	return &Fake{root: &Element{Name: "document", Visible: true, matches: map[string]bool{}}}
}

// Add appends a visible element under parent (the document when nil) that
// matches each of the given selector queries.
func (f *Fake) Add(parent *Element, name string, selectors ...string) *Element {
	if parent == nil {
		parent = f.root
	}
	el := &Element{
		Name:    name,
		Attrs:   map[string]string{},
		Visible: true,
		matches: make(map[string]bool, len(selectors)),
		parent:  parent,
	}
	for _, s := range selectors {
		el.matches[s] = true
	}
	parent.children = append(parent.children, el)
	return el
}

// Remove detaches el and its subtree; existing handles to them become stale.
func (f *Fake) Remove(el *Element) {
	if el.parent != nil {
		kept := el.parent.children[:0]
		for _, c := range el.parent.children {
			if c != el {
				kept = append(kept, c)
			}
		}
		el.parent.children = kept
	}
	markDetached(el)
}

func markDetached(el *Element) {
	el.detached = true
	for _, c := range el.children {
		markDetached(c)
	}
}

// Inject makes the next times calls of op against the element named target
// fail with err. An empty target matches any element.
func (f *Fake) Inject(op, target string, err error, times int) {
	f.faults = append(f.faults, &fault{op: op, target: target, err: err, remaining: times})
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	return append([]Call(nil), f.calls...)
}

// Count returns how many calls of op targeted the named element (any element
// when target is empty), including failed ones.
func (f *Fake) Count(op, target string) int {
	n := 0
	for _, c := range f.calls {
		if c.Op == op && (target == "" || c.Target == target) {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (f *Fake) ResetCalls() { f.calls = nil }

// HasClass reports whether the element's class attribute contains class.
func (el *Element) HasClass(class string) bool {
	return containsField(el.Attrs["class"], class)
}

// SetClass adds or removes a class token.
func (el *Element) SetClass(class string, on bool) {
	fields := splitFields(el.Attrs["class"])
	out := fields[:0]
	for _, c := range fields {
		if c != class {
			out = append(out, c)
		}
	}
	if on {
		out = append(out, class)
	}
	el.Attrs["class"] = joinFields(out)
}

func (f *Fake) record(op string, el *Element, arg string, err error) {
	target := ""
	if el != nil {
		target = el.Name
	}
	f.calls = append(f.calls, Call{Op: op, Target: target, Arg: arg, Err: err != nil})
}

func (f *Fake) injected(op string, el *Element) error {
	for _, ft := range f.faults {
		if ft.remaining <= 0 || ft.op != op {
			continue
		}
		if ft.target != "" && (el == nil || el.Name != ft.target) {
			continue
		}
		ft.remaining--
		return ft.err
	}
	return nil
}

func (f *Fake) element(h uidriver.Handle) (*Element, error) {
	hh, ok := h.(handle)
	if !ok {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	if hh.el.detached {
		return hh.el, fmt.Errorf("%s: %w", hh.el.Name, uidriver.ErrStale)
	}
	return hh.el, nil
}

func (f *Fake) walk(from *Element, visit func(*Element)) {
	for _, c := range from.children {
		visit(c)
		f.walk(c, visit)
	}
}

func (f *Fake) matching(from *Element, sel uidriver.Selector) []uidriver.Handle {
	var out []uidriver.Handle
	f.walk(from, func(el *Element) {
		if el.matches[sel.Query] {
			out = append(out, handle{el})
		}
	})
	return out
}

func (f *Fake) Find(ctx context.Context, sel uidriver.Selector) (uidriver.Handle, error) {
	if err := f.injected(OpFind, nil); err != nil {
		f.record(OpFind, nil, sel.Query, err)
		return nil, err
	}
	found := f.matching(f.root, sel)
	if len(found) == 0 {
		f.record(OpFind, nil, sel.Query, uidriver.ErrNotFound)
		return nil, fmt.Errorf("%s: %w", sel, uidriver.ErrNotFound)
	}
	f.record(OpFind, nil, sel.Query, nil)
	return found[0], nil
}

func (f *Fake) FindAll(ctx context.Context, sel uidriver.Selector) ([]uidriver.Handle, error) {
	if err := f.injected(OpFindAll, nil); err != nil {
		f.record(OpFindAll, nil, sel.Query, err)
		return nil, err
	}
	f.record(OpFindAll, nil, sel.Query, nil)
	return f.matching(f.root, sel), nil
}

func (f *Fake) FindWithin(ctx context.Context, parent uidriver.Handle, sel uidriver.Selector) ([]uidriver.Handle, error) {
	el, err := f.element(parent)
	if err == nil {
		err = f.injected(OpFindWithin, el)
	}
	f.record(OpFindWithin, el, sel.Query, err)
	if err != nil {
		return nil, err
	}
	return f.matching(el, sel), nil
}

func (f *Fake) Closest(ctx context.Context, h uidriver.Handle, sel uidriver.Selector) (uidriver.Handle, error) {
	el, err := f.element(h)
	f.record(OpClosest, el, sel.Query, err)
	if err != nil {
		return nil, err
	}
	for cur := el; cur != nil && cur != f.root; cur = cur.parent {
		if cur.matches[sel.Query] {
			return handle{cur}, nil
		}
	}
	return nil, fmt.Errorf("closest %s from %s: %w", sel, el.Name, uidriver.ErrNotFound)
}

func (f *Fake) IsVisible(ctx context.Context, h uidriver.Handle) (bool, error) {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpVisible, el)
	}
	f.record(OpVisible, el, "", err)
	if err != nil {
		return false, err
	}
	return el.Visible, nil
}

func (f *Fake) Attribute(ctx context.Context, h uidriver.Handle, name string) (string, bool, error) {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpAttribute, el)
	}
	f.record(OpAttribute, el, name, err)
	if err != nil {
		return "", false, err
	}
	v, ok := el.Attrs[name]
	return v, ok, nil
}

func (f *Fake) Text(ctx context.Context, h uidriver.Handle) (string, error) {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpText, el)
	}
	f.record(OpText, el, "", err)
	if err != nil {
		return "", err
	}
	text := el.Text
	f.walk(el, func(c *Element) {
		if c.Text != "" {
			text += " " + c.Text
		}
	})
	return text, nil
}

func (f *Fake) ScrollIntoView(ctx context.Context, h uidriver.Handle) error {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpScroll, el)
	}
	f.record(OpScroll, el, "", err)
	return err
}

func (f *Fake) Click(ctx context.Context, h uidriver.Handle) error {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpClick, el)
	}
	if err == nil && !el.Visible {
		err = fmt.Errorf("%s: %w", el.Name, ErrNotInteractable)
	}
	f.record(OpClick, el, "", err)
	if err != nil {
		return err
	}
	if el.OnClick != nil {
		return el.OnClick()
	}
	return nil
}

func (f *Fake) ForceClick(ctx context.Context, h uidriver.Handle) error {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpForceClick, el)
	}
	f.record(OpForceClick, el, "", err)
	if err != nil {
		return err
	}
	if el.OnClick != nil {
		return el.OnClick()
	}
	return nil
}

func (f *Fake) TypeText(ctx context.Context, h uidriver.Handle, text string) error {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpType, el)
	}
	f.record(OpType, el, text, err)
	if err != nil {
		return err
	}
	el.Value += text
	if el.OnInput != nil {
		el.OnInput(el.Value)
	}
	return nil
}

func (f *Fake) Clear(ctx context.Context, h uidriver.Handle) error {
	el, err := f.element(h)
	if err == nil {
		err = f.injected(OpClear, el)
	}
	f.record(OpClear, el, "", err)
	if err != nil {
		return err
	}
	el.Value = ""
	if el.OnInput != nil {
		el.OnInput("")
	}
	return nil
}

func (f *Fake) SendEscape(ctx context.Context) error {
	err := f.injected(OpEscape, nil)
	f.record(OpEscape, nil, "", err)
	if err != nil {
		return err
	}
	if f.OnEscape != nil {
		f.OnEscape()
	}
	return nil
}

// WaitUntilInvisible never blocks: it reports ErrTimeout immediately when a
// visible element still matches sel.
func (f *Fake) WaitUntilInvisible(ctx context.Context, sel uidriver.Selector, timeout time.Duration) error {
	err := f.injected(OpWaitHidden, nil)
	if err == nil {
		for _, h := range f.matching(f.root, sel) {
			if h.(handle).el.Visible {
				err = uidriver.ErrTimeout
				break
			}
		}
	}
	f.record(OpWaitHidden, nil, sel.Query, err)
	return err
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	err := f.injected(OpNavigate, nil)
	if err == nil && f.OnNavigate != nil {
		err = f.OnNavigate(url)
	}
	f.record(OpNavigate, nil, url, err)
	return err
}
