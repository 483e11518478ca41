package browser

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

// queryAllJS returns every match of q under root in document order. XPath
// queries use root as the context node, so scoped XPath should start with ".//".
const queryAllJS = `function(root, q, xpath) {
	if (xpath) {
		const r = document.evaluate(q, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		const out = [];
		for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
		return out;
	}
	return Array.from(root.querySelectorAll(q));
}`

// visibleJS mirrors the usual "has a box and is not hidden" test.
const visibleJS = `function() {
	const s = window.getComputedStyle(this);
	if (s.visibility === 'hidden' || s.display === 'none') return false;
	return !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length);
}`

const (
	textJS   = `function() { return this.innerText || this.textContent || ""; }`
	scrollJS = `function() { this.scrollIntoView({block: 'center', inline: 'nearest'}); return true; }`
	clickJS  = `function() { this.click(); return true; }`
	focusJS  = `function() { this.focus(); return true; }`
)

// clearJS empties an input and fires the events its widget listens for.
const clearJS = `function() {
	this.focus();
	if ('value' in this) { this.value = ''; } else { this.textContent = ''; }
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

// clickPointJS returns the centre of the element and whether a pointer event
// there would reach it.
const clickPointJS = `function() {
	const r = this.getBoundingClientRect();
	if (r.width === 0 && r.height === 0) return null;
	const x = r.left + r.width / 2, y = r.top + r.height / 2;
	const hit = document.elementFromPoint(x, y);
	return {x: x, y: y, hit: !!hit && (hit === this || this.contains(hit) || hit.contains(this))};
}`

// connected wraps fn so a detached receiver is reported instead of evaluated.
func connected(fn string) string {
	return "function() { if (!this.isConnected) return {stale: true}; return {value: (" + fn + ").apply(this, arguments)}; }"
}

func literal(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func queryExpr(sel uidriver.Selector, suffix string) string {
	return fmt.Sprintf("(%s)(document, %s, %t)%s", queryAllJS, literal(sel.Query), sel.XPath, suffix)
}

func queryWithinFn(sel uidriver.Selector, suffix string) string {
	return fmt.Sprintf("function() { return (%s)(this, %s, %t)%s; }", queryAllJS, literal(sel.Query), sel.XPath, suffix)
}

func closestFn(sel uidriver.Selector) string {
	return fmt.Sprintf(`function() {
	const matches = new Set((%s)(document, %s, %t));
	let n = this;
	while (n && !matches.has(n)) n = n.parentElement;
	return n;
}`, queryAllJS, literal(sel.Query), sel.XPath)
}

func attributeFn(name string) string {
	n := literal(name)
	return fmt.Sprintf("function() { return {present: this.hasAttribute(%s), value: this.getAttribute(%s) || ''}; }", n, n)
}

func allHiddenExpr(sel uidriver.Selector) string {
	return queryExpr(sel, fmt.Sprintf(".every(e => !(%s).call(e))", visibleJS))
}
