package surface

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// markupPolicy is shared by every container; bluemonday policies are safe for
// concurrent use once built.
var markupPolicy = newMarkupPolicy()

func newMarkupPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id", "class", "width", "height").Globally()
	p.AllowElements(
		"canvas", "div", "span", "section", "article", "main", "header", "footer",
		"svg", "g", "defs", "circle", "ellipse", "rect", "line", "polyline", "polygon",
		"path", "text", "lineargradient", "radialgradient", "stop", "animate",
	)
	p.AllowAttrs(
		"viewbox", "xmlns", "fill", "stroke", "stroke-width", "opacity", "transform",
		"cx", "cy", "r", "rx", "ry", "x", "y", "x1", "y1", "x2", "y2",
		"d", "points", "offset", "stop-color", "attributename", "from", "to", "dur",
		"repeatcount", "values",
	).Globally()
	return p
}

// SanitizeMarkup strips scripts, event handler attributes and anything else
// outside the markup policy.
func SanitizeMarkup(html string) string {
	return markupPolicy.Sanitize(html)
}

// Container is the DOM container a markup fragment renders into. It keeps the
// sanitized body markup, the collected style sheets and the document title.
type Container struct {
	mu     sync.Mutex
	html   string
	styles []string
	title  string
}

func NewContainer() *Container {
	return &Container{}
}

// SetHTML sanitizes and stores body markup, replacing what was there.
func (c *Container) SetHTML(html string) {
	clean := SanitizeMarkup(html)
	c.mu.Lock()
	c.html = clean
	c.mu.Unlock()
}

// AppendHTML sanitizes markup and appends it to the body.
func (c *Container) AppendHTML(html string) {
	clean := SanitizeMarkup(html)
	c.mu.Lock()
	c.html += clean
	c.mu.Unlock()
}

func (c *Container) HTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.html
}

func (c *Container) AddStyle(css string) {
	c.mu.Lock()
	c.styles = append(c.styles, css)
	c.mu.Unlock()
}

func (c *Container) Styles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.styles...)
}

func (c *Container) SetTitle(title string) {
	c.mu.Lock()
	c.title = title
	c.mu.Unlock()
}

func (c *Container) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Reset empties the container.
func (c *Container) Reset() {
	c.mu.Lock()
	c.html, c.styles, c.title = "", nil, ""
	c.mu.Unlock()
}
