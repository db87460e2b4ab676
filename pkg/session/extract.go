package session

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// Format specifies the output of browser_extract_content.
type Format string

const (
	// FormatMarkdown extracts content as simplified Markdown (default).
	FormatMarkdown Format = "markdown"

	// FormatText extracts plain text only.
	FormatText Format = "text"

	// FormatStructured extracts title, headings, links, and body.
	FormatStructured Format = "structured"
)

// ExtractOptions configures content extraction.
type ExtractOptions struct {
	Format    Format
	Selector  string
	MaxLength int
}

// StructuredContent is the structured extraction payload.
type StructuredContent struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Headings    []string `json:"headings,omitempty"`
	Links       []Link   `json:"links,omitempty"`
	Body        string   `json:"body"`
}

// Link is a hyperlink found during structured extraction.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// extractContent parses the page HTML and renders it in the requested
// format. The second return reports whether the body was truncated at
// MaxLength.
func extractContent(rawHTML string, opts ExtractOptions) (interface{}, bool, error) {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, false, protocol.NewUpstreamFailure("extractContent", err)
	}

	root := doc
	if opts.Selector != "" {
		match, err := compileSelector(opts.Selector)
		if err != nil {
			return nil, false, err
		}
		node := findFirst(doc, match)
		if node == nil {
			return nil, false, protocol.NewInvalidInput(fmt.Sprintf("no element matches selector %q", opts.Selector))
		}
		root = node
	}

	switch opts.Format {
	case FormatText:
		text, truncated := collectText(root, opts.MaxLength, false)
		return text, truncated, nil

	case FormatMarkdown, "":
		body, truncated := collectText(root, opts.MaxLength, true)
		if title := documentTitle(doc); title != "" {
			return "# " + title + "\n\n" + body, truncated, nil
		}
		return body, truncated, nil

	case FormatStructured:
		body, truncated := collectText(root, opts.MaxLength, false)
		return &StructuredContent{
			Title:       documentTitle(doc),
			Description: metaDescription(doc),
			Headings:    collectHeadings(root),
			Links:       collectLinks(root),
			Body:        body,
		}, truncated, nil

	default:
		return nil, false, protocol.NewInvalidInput(fmt.Sprintf("unsupported format: %s", opts.Format))
	}
}

// textCollector walks the node tree and accumulates readable text,
// truncating once maxLength is reached. In markdown mode headings, list
// items, and blockquotes get their usual markers.
type textCollector struct {
	builder   strings.Builder
	length    int
	maxLength int
	truncated bool
	markdown  bool
	last      byte
}

func collectText(root *html.Node, maxLength int, markdown bool) (string, bool) {
	c := &textCollector{maxLength: maxLength, markdown: markdown}
	c.walk(root)
	return strings.TrimSpace(c.builder.String()), c.truncated
}

func (c *textCollector) walk(n *html.Node) {
	if c.truncated {
		return
	}

	switch n.Type {
	case html.CommentNode:
		return

	case html.TextNode:
		c.appendText(collapseSpace(n.Data))
		return

	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) {
			return
		}
		if isBlockElement(tag) {
			c.lineBreak()
		}
		if c.markdown {
			switch tag {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				c.write(strings.Repeat("#", int(tag[1]-'0')) + " ")
			case "li":
				c.write("- ")
			case "blockquote":
				c.write("> ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.walk(child)
		}
		if isBlockElement(tag) {
			c.lineBreak()
		}
		return
	}

	// Document and fragment nodes: descend only.
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child)
	}
}

// appendText writes a text run, separating it from the previous run with
// a single space when needed.
func (c *textCollector) appendText(text string) {
	if text == "" || c.truncated {
		return
	}
	if c.last != 0 && c.last != '\n' && c.last != ' ' {
		c.write(" ")
		if c.truncated {
			return
		}
	}
	c.write(text)
}

func (c *textCollector) write(s string) {
	if s == "" || c.truncated {
		return
	}
	remaining := c.maxLength - c.length
	if remaining <= 0 {
		c.truncated = true
		return
	}
	if len(s) > remaining {
		s = s[:remaining] + "..."
		c.truncated = true
	}
	c.builder.WriteString(s)
	c.length += len(s)
	c.last = s[len(s)-1]
}

func (c *textCollector) lineBreak() {
	if c.truncated || c.last == 0 || c.last == '\n' {
		return
	}
	if c.length >= c.maxLength {
		c.truncated = true
		return
	}
	c.builder.WriteByte('\n')
	c.length++
	c.last = '\n'
}

// collapseSpace normalizes runs of whitespace to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isSkippedElement returns true for elements whose content never appears
// in extracted output.
func isSkippedElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "head":
		return true
	}
	return false
}

// isBlockElement returns true for elements that force a line break.
func isBlockElement(tag string) bool {
	switch tag {
	case "div", "p", "section", "article", "header", "footer", "nav", "main",
		"aside", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"table", "tr", "td", "th", "form", "fieldset", "blockquote", "pre", "br":
		return true
	}
	return false
}

// compileSelector supports the small selector subset the extraction API
// accepts: a tag name, #id, or .class.
func compileSelector(selector string) (func(*html.Node) bool, error) {
	if strings.ContainsAny(selector, " >+~[]:,") {
		return nil, protocol.NewInvalidInput(fmt.Sprintf("unsupported selector %q (expected tag, #id, or .class)", selector))
	}

	switch {
	case strings.HasPrefix(selector, "#"):
		id := selector[1:]
		if id == "" {
			return nil, protocol.NewInvalidInput("selector '#' needs an id")
		}
		return func(n *html.Node) bool { return attrValue(n, "id") == id }, nil

	case strings.HasPrefix(selector, "."):
		class := selector[1:]
		if class == "" {
			return nil, protocol.NewInvalidInput("selector '.' needs a class name")
		}
		return func(n *html.Node) bool { return hasClass(n, class) }, nil

	default:
		tag := strings.ToLower(selector)
		return func(n *html.Node) bool { return strings.ToLower(n.Data) == tag }, nil
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, candidate := range strings.Fields(attrValue(n, "class")) {
		if candidate == class {
			return true
		}
	}
	return false
}

// nodeText renders the inline text of a single node.
func nodeText(n *html.Node) string {
	text, _ := collectText(n, 1024, false)
	return text
}

// documentTitle extracts the page title from the document.
func documentTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if title != "" {
				return
			}
		}
	}
	traverse(doc)
	return title
}

// metaDescription extracts the meta description from the document.
func metaDescription(doc *html.Node) string {
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
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if description != "" {
				return
			}
		}
	}
	traverse(doc)
	return description
}

// collectHeadings gathers h1 through h6 text in document order.
func collectHeadings(root *html.Node) []string {
	var headings []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if text := nodeText(n); text != "" {
					headings = append(headings, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(root)
	return headings
}

// collectLinks gathers anchors with non-empty hrefs in document order.
func collectLinks(root *html.Node) []Link {
	var links []Link
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == "a" {
			if href := attrValue(n, "href"); href != "" {
				links = append(links, Link{Text: nodeText(n), Href: href})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(root)
	return links
}
