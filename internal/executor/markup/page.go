package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aymerick/douceur/css"
	cssparser "github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sakif/fragments/internal/surface"
)

// element is what the document binding knows about a parsed element.
type element struct {
	tag   string
	id    string
	class []string
	attrs map[string]string
	text  string
}

type page struct {
	title    string
	body     string
	styles   []string
	scripts  []string
	external []string
	elements []*element

	bodyStyle string // inline style attribute of <body>
}

// parsePage parses src as a document. Each inline script is padded with
// newlines so its line numbers are the document's.
func parsePage(src string) (*page, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	p := &page{}
	searchFrom := 0

	var body *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script:
				if s := attr(n, "src"); s != "" {
					p.external = append(p.external, s)
					return
				}
				if t := attr(n, "type"); t != "" && !isJSType(t) {
					return
				}
				text := textOf(n)
				line := 0
				if i := strings.Index(src[searchFrom:], text); i >= 0 && text != "" {
					line = strings.Count(src[:searchFrom+i], "\n")
					searchFrom += i + len(text)
				}
				p.scripts = append(p.scripts, strings.Repeat("\n", line)+trimScript(text))
				return
			case atom.Style:
				p.styles = append(p.styles, textOf(n))
				return
			case atom.Title:
				p.title = strings.TrimSpace(textOf(n))
				return
			case atom.Body:
				body = n
				p.bodyStyle = attr(n, "style")
			}
			p.elements = append(p.elements, newElement(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if body != nil {
		var buf bytes.Buffer
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Script {
				continue
			}
			if err := html.Render(&buf, c); err != nil {
				return nil, fmt.Errorf("rendering body: %w", err)
			}
		}
		p.body = buf.String()
	}
	return p, nil
}

func isJSType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

func newElement(n *html.Node) *element {
	el := &element{tag: n.Data, attrs: make(map[string]string, len(n.Attr))}
	for _, a := range n.Attr {
		el.attrs[a.Key] = a.Val
	}
	el.id = el.attrs["id"]
	el.class = strings.Fields(el.attrs["class"])
	el.text = strings.TrimSpace(textOf(n))
	return el
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// match answers the selector forms fragments use: #id, .class, tag and
// tag#id / tag.class.
func (el *element) match(sel string) bool {
	sel = strings.TrimSpace(sel)
	if sel == "" || strings.ContainsAny(sel, " >+~[:") {
		return false
	}
	tag, rest := sel, ""
	if i := strings.IndexAny(sel, "#."); i >= 0 {
		tag, rest = sel[:i], sel[i:]
	}
	if tag != "" && tag != "*" && !strings.EqualFold(tag, el.tag) {
		return false
	}
	switch {
	case rest == "":
		return true
	case rest[0] == '#':
		return rest[1:] == el.id
	default:
		for _, c := range el.class {
			if c == rest[1:] {
				return true
			}
		}
		return false
	}
}

func (p *page) query(sel string) *element {
	for _, el := range p.elements {
		if el.match(sel) {
			return el
		}
	}
	return nil
}

func (p *page) queryAll(sel string) []*element {
	var out []*element
	for _, el := range p.elements {
		if el.match(sel) {
			out = append(out, el)
		}
	}
	return out
}

func (p *page) byID(id string) *element {
	for _, el := range p.elements {
		if el.id == id {
			return el
		}
	}
	return nil
}

// background returns the page background color from the body's inline
// style or from body/html rules in the style sheets. Later rules win.
func (p *page) background() (string, bool) {
	var found string
	for _, sheet := range p.styles {
		parsed, err := cssparser.Parse(sheet)
		if err != nil {
			continue
		}
		for _, rule := range parsed.Rules {
			if rule.Kind != css.QualifiedRule || !appliesToPage(rule.Selectors) {
				continue
			}
			if c, ok := backgroundOf(rule.Declarations); ok {
				found = c
			}
		}
	}
	if p.bodyStyle != "" {
		if decls, err := cssparser.ParseDeclarations(p.bodyStyle); err == nil {
			if c, ok := backgroundOf(decls); ok {
				found = c
			}
		}
	}
	return found, found != ""
}

func appliesToPage(selectors []string) bool {
	for _, s := range selectors {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "body", "html", ":root":
			return true
		}
	}
	return false
}

func backgroundOf(decls []*css.Declaration) (string, bool) {
	var out string
	for _, d := range decls {
		switch strings.ToLower(d.Property) {
		case "background", "background-color":
			if _, ok := surface.ParseColor(d.Value); ok {
				out = d.Value
			}
		}
	}
	return out, out != ""
}
