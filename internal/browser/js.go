package browser

import (
	"fmt"

	"github.com/lishuo8109/weibopilot/api/schemas"
)

// richTextFn is the canonical rich-text extraction: a tree walk that
// concatenates text nodes, substitutes alt text for images (emoji render as
// <img> on the target UI), and collapses whitespace.
const richTextFn = `
	const richText = (root) => {
		const walk = (node) => {
			let text = '';
			if (node.nodeType === Node.TEXT_NODE) {
				const trimmed = node.textContent.trim();
				if (trimmed) text += trimmed + ' ';
			} else if (node.tagName === 'IMG') {
				const alt = node.getAttribute('alt') || '';
				if (alt) text += alt + ' ';
			} else if (node.nodeType === Node.ELEMENT_NODE) {
				for (const child of node.childNodes) {
					text += walk(child);
				}
			}
			return text;
		};
		return walk(root).replace(/\s+/g, ' ').trim();
	};`

// resolveFn builds the in-page locator resolver for a query strategy. It
// yields a JS expression `resolve(query)` returning an array of elements.
func resolveFn(by schemas.QueryStrategy) string {
	if by == schemas.ByXPath {
		return `
	const resolve = (query) => {
		const out = [];
		const snap = document.evaluate(query, document, null,
			XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < snap.snapshotLength; i++) {
			out.push(snap.snapshotItem(i));
		}
		return out;
	};`
	}
	return `
	const resolve = (query) => Array.from(document.querySelectorAll(query));`
}

// textScript extracts the rich text of the first element matching loc. The
// found flag distinguishes "no such element" from a legitimately empty text.
func textScript(loc schemas.Locator) string {
	return fmt.Sprintf(`(() => {%s%s
	const nodes = resolve(%q);
	if (nodes.length === 0) return {found: false, value: ''};
	return {found: true, value: richText(nodes[0])};
})()`, resolveFn(loc.By), richTextFn, loc.Query)
}

// textsScript extracts the rich text of every element matching loc.
func textsScript(loc schemas.Locator) string {
	return fmt.Sprintf(`(() => {%s%s
	return resolve(%q).map(richText);
})()`, resolveFn(loc.By), richTextFn, loc.Query)
}

// attrScript reads one attribute from the first match, preferring the
// resolved DOM property for URL-bearing attributes so relative hrefs come
// back absolute.
func attrScript(loc schemas.Locator, attr string) string {
	return fmt.Sprintf(`(() => {%s
	const nodes = resolve(%q);
	if (nodes.length === 0) return {found: false, value: ''};
	const el = nodes[0];
	const name = %q;
	let value;
	if ((name === 'href' || name === 'src') && el[name]) {
		value = el[name];
	} else {
		value = el.getAttribute(name);
	}
	if (value === null || value === undefined) return {found: false, value: ''};
	return {found: true, value: String(value)};
})()`, resolveFn(loc.By), loc.Query, attr)
}

// attrsScript reads one attribute from every match.
func attrsScript(loc schemas.Locator, attr string) string {
	return fmt.Sprintf(`(() => {%s
	const name = %q;
	return resolve(%q).map((el) => {
		if ((name === 'href' || name === 'src') && el[name]) return el[name];
		return el.getAttribute(name) || '';
	});
})()`, resolveFn(loc.By), attr, loc.Query)
}

// existsExpr is a poll predicate: truthy once at least one match is present.
func existsExpr(loc schemas.Locator) string {
	return fmt.Sprintf(`(() => {%s
	return resolve(%q).length > 0;
})()`, resolveFn(loc.By), loc.Query)
}

// clickableExpr is a poll predicate: truthy once the first match is rendered
// and not disabled.
func clickableExpr(loc schemas.Locator) string {
	return fmt.Sprintf(`(() => {%s
	const nodes = resolve(%q);
	if (nodes.length === 0) return false;
	const el = nodes[0];
	if (el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})()`, resolveFn(loc.By), loc.Query)
}

// countScript counts current matches for loc.
func countScript(loc schemas.Locator) string {
	return fmt.Sprintf(`(() => {%s
	return resolve(%q).length;
})()`, resolveFn(loc.By), loc.Query)
}

func scrollScript(pixels int) string {
	return fmt.Sprintf("window.scrollBy(0, %d);", pixels)
}
