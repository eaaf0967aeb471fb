package driver

import (
	"encoding/json"
	"fmt"
)

// Element is an interactive element found on the page.
type Element struct {
	Selector    string `json:"selector"`
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
}

// PageMap is the compact page description handed to the model.
type PageMap struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Elements []Element `json:"elements"`
}

const maxPageMapElements = 150

// pageMapScript collects visible interactive elements with a usable selector
// and returns them JSON-encoded, so every engine can read a plain string.
const pageMapScript = `() => {
	const elements = [];
	const seen = new Set();
	const validIdent = (s) => !!s && !/^-?[0-9]/.test(s) && !/[.:#\[\]()>~+*\/\\\s]/.test(s);
	const selectorFor = (el) => {
		if (el.id && validIdent(el.id)) return '#' + el.id;
		if (el.name) return el.tagName.toLowerCase() + '[name="' + el.name + '"]';
		if (el.className && typeof el.className === 'string') {
			const cls = el.className.trim().split(/\s+/).filter(validIdent).slice(0, 2);
			if (cls.length > 0) {
				const sel = el.tagName.toLowerCase() + '.' + cls.join('.');
				try { if (document.querySelectorAll(sel).length === 1) return sel; } catch (e) {}
			}
		}
		const parent = el.parentElement;
		if (parent && parent !== document.documentElement) {
			const idx = Array.from(parent.children).indexOf(el) + 1;
			return selectorFor(parent) + ' > ' + el.tagName.toLowerCase() + ':nth-child(' + idx + ')';
		}
		return el.tagName.toLowerCase();
	};
	const add = (el, type, extra) => {
		if (!el.offsetParent) return;
		const selector = selectorFor(el);
		if (seen.has(selector)) return;
		seen.add(selector);
		elements.push(Object.assign({ selector, type, id: el.id || undefined, name: el.name || undefined }, extra));
	};
	document.querySelectorAll('button, [role="button"], input[type="submit"], input[type="button"]').forEach(el =>
		add(el, 'button', { text: (el.textContent || el.value || '').trim().slice(0, 60) }));
	document.querySelectorAll('input:not([type="hidden"]):not([type="submit"]):not([type="button"]), textarea').forEach(el =>
		add(el, el.type || 'text', { placeholder: el.placeholder || undefined }));
	document.querySelectorAll('a[href]').forEach(el => {
		const href = el.getAttribute('href') || '';
		if (href.startsWith('#') || href.startsWith('javascript:')) return;
		add(el, 'link', { text: (el.textContent || '').trim().slice(0, 60) });
	});
	document.querySelectorAll('select').forEach(el => add(el, 'select', {}));
	return JSON.stringify(elements);
}`

func parseElements(raw string) ([]Element, error) {
	var elements []Element
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("decode page map: %w", err)
	}
	if len(elements) > maxPageMapElements {
		elements = elements[:maxPageMapElements]
	}
	return elements, nil
}
