package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Element is an interactive element the agent can target.
type Element struct {
	Tag      string `json:"tag"`
	Selector string `json:"selector"`
	Label    string `json:"label,omitempty"`
	Href     string `json:"href,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Observation is a compact, model-friendly rendering of a page.
type Observation struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Text        string    `json:"text"`
	Elements    []Element `json:"elements"`
	Truncated   bool      `json:"truncated,omitempty"`
}

// maxElements caps the interactive elements listed per observation.
const maxElements = 60

// Observe parses raw HTML into an Observation. Text beyond maxText bytes is
// dropped and Truncated is set.
func Observe(rawHTML string, maxText int) (*Observation, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	obs := &Observation{
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
	}

	w := &textWalker{max: maxText}
	w.walk(doc)
	obs.Text = strings.TrimSpace(w.text.String())
	obs.Truncated = w.truncated
	obs.Elements = w.elements
	return obs, nil
}

type textWalker struct {
	text      strings.Builder
	max       int
	truncated bool
	elements  []Element
}

func (w *textWalker) walk(n *html.Node) {
	if n.Type == html.CommentNode {
		return
	}
	if n.Type == html.ElementNode {
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) || tag == "head" {
			return
		}
		if el, ok := interactiveElement(n, tag); ok && len(w.elements) < maxElements {
			w.elements = append(w.elements, el)
		}
		if isBlockElement(tag) {
			w.newline()
		}
	}
	if n.Type == html.TextNode {
		w.write(strings.Join(strings.Fields(n.Data), " "))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *textWalker) newline() {
	if w.text.Len() == 0 {
		return
	}
	s := w.text.String()
	if !strings.HasSuffix(s, "\n") {
		w.text.WriteString("\n")
	}
}

func (w *textWalker) write(s string) {
	if s == "" || w.truncated {
		return
	}
	if w.max > 0 && w.text.Len()+len(s)+1 > w.max {
		remaining := w.max - w.text.Len()
		if remaining > 0 {
			w.text.WriteString(truncateUTF8(s, remaining))
		}
		w.truncated = true
		return
	}
	cur := w.text.String()
	if cur != "" && !strings.HasSuffix(cur, "\n") {
		w.text.WriteString(" ")
	}
	w.text.WriteString(s)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func interactiveElement(n *html.Node, tag string) (Element, bool) {
	switch tag {
	case "a", "button", "input", "textarea", "select":
	default:
		return Element{}, false
	}

	el := Element{Tag: tag}
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	if tag == "input" && attrs["type"] == "hidden" {
		return Element{}, false
	}

	el.Href = attrs["href"]
	el.Type = attrs["type"]
	el.Label = firstNonEmpty(attrs["aria-label"], strings.TrimSpace(nodeText(n)), attrs["placeholder"], attrs["value"], attrs["alt"], attrs["name"])
	if len(el.Label) > 80 {
		el.Label = truncateUTF8(el.Label, 80)
	}

	switch {
	case attrs["id"] != "":
		el.Selector = "#" + attrs["id"]
	case attrs["name"] != "":
		el.Selector = fmt.Sprintf(`%s[name="%s"]`, tag, attrs["name"])
	case attrs["data-testid"] != "":
		el.Selector = fmt.Sprintf(`[data-testid="%s"]`, attrs["data-testid"])
	case tag == "a" && el.Href != "":
		el.Selector = fmt.Sprintf(`a[href="%s"]`, el.Href)
	case el.Label != "":
		el.Selector = fmt.Sprintf(`%s:has-text("%s")`, tag, el.Label)
	default:
		return Element{}, false
	}
	return el, true
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// isSkippedElement returns true for elements that should be completely removed
func isSkippedElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "template":
		return true
	}
	return false
}

// isBlockElement returns true for block-level elements (for line breaks)
func isBlockElement(tagName string) bool {
	switch tagName {
	case "div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr",
		"form", "fieldset", "blockquote", "pre", "br":
		return true
	}
	return false
}

// extractTitle extracts the page title from the document
func extractTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return title
}

// extractMetaDescription extracts the meta description from the document
func extractMetaDescription(doc *html.Node) string {
	var description string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var isDescription bool
			var content string
			for _, attr := range n.Attr {
				if attr.Key == "name" && attr.Val == "description" {
					isDescription = true
				}
				if attr.Key == "content" {
					content = attr.Val
				}
			}
			if isDescription && content != "" {
				description = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil && description == ""; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return description
}

// Render formats the observation as plain text for a prompt.
func (o *Observation) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", o.URL)
	if o.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", o.Title)
	}
	if o.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", o.Description)
	}
	if len(o.Elements) > 0 {
		b.WriteString("\nInteractive elements:\n")
		for _, el := range o.Elements {
			fmt.Fprintf(&b, "- %s %s", el.Tag, el.Selector)
			if el.Label != "" {
				fmt.Fprintf(&b, " %q", el.Label)
			}
			if el.Href != "" {
				fmt.Fprintf(&b, " -> %s", el.Href)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nPage text:\n")
	b.WriteString(o.Text)
	if o.Truncated {
		b.WriteString("\n[page text truncated]")
	}
	return b.String()
}
