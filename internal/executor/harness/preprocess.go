package harness

import (
	"fmt"
	"sort"
	"strings"
)

// StripControl removes NUL and other control characters, keeping tab,
// newline and carriage return.
func StripControl(code string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == 0x7f || r == '\uFEFF':
			return -1
		}
		return r
	}, code)
}

// joinScripts concatenates scripts into one, keeping each at its own line:
// a script padded with n leading newlines starts on line n+1 unless an
// earlier script already reaches past it. A semicolon closes every script so
// the next one cannot continue its last statement.
func joinScripts(scripts []string) []string {
	if len(scripts) < 2 {
		return scripts
	}
	var b strings.Builder
	lines := 0
	for i, script := range scripts {
		body := strings.TrimLeft(script, "\n")
		pad := len(script) - len(body)
		if i > 0 {
			b.WriteString(";")
			if pad <= lines {
				pad = lines + 1
			}
		}
		b.WriteString(strings.Repeat("\n", pad-lines))
		b.WriteString(body)
		lines = pad + strings.Count(body, "\n")
	}
	return []string{b.String()}
}

type ident struct {
	name       string
	start, end int
	// enclosing is the innermost open bracket around the token: '(', '[',
	// '{', '$' for a template substitution, or 0 at top level.
	enclosing byte
}

// scanIdents returns the identifier tokens of a script, skipping comments,
// string literals and the literal parts of template strings. Expressions
// inside ${...} are scanned as code. Regular expression literals are not
// recognized.
func scanIdents(src string) []ident {
	var (
		out   []ident
		stack []byte
	)
	i, n := 0, len(src)

	scanTemplate := func() {
		for i < n {
			switch {
			case src[i] == '\\':
				i += 2
			case src[i] == '`':
				i++
				return
			case src[i] == '$' && i+1 < n && src[i+1] == '{':
				stack = append(stack, '$')
				i += 2
				return
			default:
				i++
			}
		}
	}
	top := func() byte {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1]
	}

	for i < n {
		c := src[i]
		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return out
			}
			i += end + 4
		case c == '\'' || c == '"':
			i++
			for i < n && src[i] != c && src[i] != '\n' {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			i++
		case c == '`':
			i++
			scanTemplate()
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, c)
			i++
		case c == ')' || c == ']' || c == '}':
			open := top()
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			i++
			if c == '}' && open == '$' {
				scanTemplate()
			}
		case c >= '0' && c <= '9':
			for i < n && isIdentByte(src[i]) {
				i++
			}
		case isIdentStart(c):
			start := i
			for i < n && isIdentByte(src[i]) {
				i++
			}
			out = append(out, ident{name: src[start:i], start: start, end: i, enclosing: top()})
		default:
			i++
		}
	}
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || (c|0x20 >= 'a' && c|0x20 <= 'z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// binding is a name introduced by a declaration. shorthand marks an object
// pattern entry like {name} or {name = 1}, whose key and binding share the
// token.
type binding struct {
	name      string
	start     int
	shorthand bool
}

// Rename finds declarations of reserved names and renames the declared
// identifier to __fragment_<name>_<n> throughout the script. Declarations
// are function and class names and every binding of a let/const/var
// statement: each comma-separated declarator and the names inside object
// and array patterns. Property accesses (obj.name) and object keys
// ({name: ...}) keep their spelling; shorthand entries are expanded to
// {name: renamed}. It returns the rewritten script and the old->new mapping.
func Rename(src string, reserved map[string]bool) (string, map[string]string) {
	toks := scanIdents(src)

	renames := make(map[string]string)
	shorthand := make(map[int]bool)
	var order []string
	declare := func(b binding) {
		if !reserved[b.name] {
			return
		}
		if b.shorthand {
			shorthand[b.start] = true
		}
		if _, done := renames[b.name]; !done {
			order = append(order, b.name)
			renames[b.name] = ""
		}
	}

	for k := 0; k < len(toks); k++ {
		kw := toks[k]
		if isProperty(src, kw) {
			continue
		}
		switch kw.name {
		case "let", "const", "var":
			p := &declParser{src: src, i: kw.end}
			p.declarators()
			for _, b := range p.out {
				declare(b)
			}
		case "function", "class":
			if k+1 == len(toks) {
				continue
			}
			next := toks[k+1]
			between := strings.TrimSpace(src[kw.end:next.start])
			if between == "" || between == "*" {
				declare(binding{name: next.name, start: next.start})
			}
		}
	}
	if len(renames) == 0 {
		return src, nil
	}
	for i, name := range order {
		renames[name] = fmt.Sprintf("__fragment_%s_%d", name, i+1)
	}

	var b strings.Builder
	b.Grow(len(src) + 32*len(renames))
	last := 0
	for _, t := range toks {
		to, ok := renames[t.name]
		if !ok || isProperty(src, t) || isObjectKey(src, t) {
			continue
		}
		b.WriteString(src[last:t.start])
		if shorthand[t.start] || isShorthandEntry(src, t) {
			b.WriteString(t.name + ": ")
		}
		b.WriteString(to)
		last = t.end
	}
	b.WriteString(src[last:])
	return b.String(), renames
}

// declParser walks the declarator list of a let/const/var statement
// starting just after the keyword, collecting the names it binds. It stops
// at the first thing it does not understand; what it collected so far
// stands.
type declParser struct {
	src string
	i   int
	out []binding
}

func (p *declParser) peek() byte {
	if p.i < len(p.src) {
		return p.src[p.i]
	}
	return 0
}

func (p *declParser) has(prefix string) bool {
	return p.i < len(p.src) && strings.HasPrefix(p.src[p.i:], prefix)
}

// skipSpace skips whitespace and comments.
func (p *declParser) skipSpace() {
	for p.i < len(p.src) {
		switch c := p.src[p.i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.i++
		case p.has("//"):
			for p.i < len(p.src) && p.src[p.i] != '\n' {
				p.i++
			}
		case p.has("/*"):
			end := strings.Index(p.src[p.i+2:], "*/")
			if end < 0 {
				p.i = len(p.src)
				return
			}
			p.i += end + 4
		default:
			return
		}
	}
}

func (p *declParser) ident() (string, int, bool) {
	if !isIdentStart(p.peek()) {
		return "", 0, false
	}
	start := p.i
	for p.i < len(p.src) && isIdentByte(p.src[p.i]) {
		p.i++
	}
	return p.src[start:p.i], start, true
}

func (p *declParser) declarators() {
	for {
		p.skipSpace()
		if !p.target() {
			return
		}
		p.skipSpace()
		if p.peek() == '=' && !p.has("==") && !p.has("=>") {
			p.i++
			if !p.skipExpr() {
				return
			}
			p.skipSpace()
		}
		if p.peek() != ',' {
			return
		}
		p.i++
	}
}

// target parses one binding target: a name or a pattern.
func (p *declParser) target() bool {
	switch p.peek() {
	case '{':
		return p.objectPattern()
	case '[':
		return p.arrayPattern()
	}
	name, start, ok := p.ident()
	if !ok {
		return false
	}
	p.out = append(p.out, binding{name: name, start: start})
	return true
}

func (p *declParser) objectPattern() bool {
	p.i++
	for {
		p.skipSpace()
		switch p.peek() {
		case 0:
			return false
		case '}':
			p.i++
			return true
		case ',':
			p.i++
			continue
		}
		if p.has("...") {
			p.i += 3
			p.skipSpace()
			if !p.target() {
				return false
			}
			continue
		}

		var key binding
		switch c := p.peek(); {
		case c == '[':
			if !p.skipBalanced() {
				return false
			}
		case c == '\'' || c == '"':
			p.skipString()
		case c >= '0' && c <= '9':
			for p.i < len(p.src) && isIdentByte(p.src[p.i]) {
				p.i++
			}
		default:
			name, start, ok := p.ident()
			if !ok {
				return false
			}
			key = binding{name: name, start: start, shorthand: true}
		}

		p.skipSpace()
		if p.peek() == ':' {
			p.i++
			p.skipSpace()
			if !p.target() {
				return false
			}
		} else if key.name != "" {
			p.out = append(p.out, key)
		} else {
			return false
		}
		p.skipSpace()
		if p.peek() == '=' {
			p.i++
			if !p.skipExpr() {
				return false
			}
		}
	}
}

func (p *declParser) arrayPattern() bool {
	p.i++
	for {
		p.skipSpace()
		switch p.peek() {
		case 0:
			return false
		case ']':
			p.i++
			return true
		case ',':
			p.i++
			continue
		}
		if p.has("...") {
			p.i += 3
			p.skipSpace()
		}
		if !p.target() {
			return false
		}
		p.skipSpace()
		if p.peek() == '=' {
			p.i++
			if !p.skipExpr() {
				return false
			}
		}
	}
}

// skipExpr skips an initializer up to the comma, semicolon or closing
// bracket that ends it. A newline ends it too unless the expression
// obviously continues on the next line.
func (p *declParser) skipExpr() bool {
	for p.i < len(p.src) {
		c := p.src[p.i]
		switch {
		case c == ',' || c == ';' || c == ')' || c == ']' || c == '}':
			return true
		case c == '(' || c == '[' || c == '{':
			if !p.skipBalanced() {
				return false
			}
		case c == '\'' || c == '"':
			p.skipString()
		case c == '`':
			p.skipTemplate()
		case p.has("//") || p.has("/*"):
			p.skipSpace()
		case c == '\n':
			if p.lineEnds() {
				return true
			}
			p.i++
		default:
			p.i++
		}
	}
	return true
}

const (
	trailingOperators = "=+-*/%&|^!?:<>,(["
	leadingOperators  = ".,?:+-*/%&|^=<>"
)

// lineEnds reports whether the newline at p.i ends the current
// expression.
func (p *declParser) lineEnds() bool {
	if c, _ := prevNonSpace(p.src, p.i); c != 0 && strings.IndexByte(trailingOperators, c) >= 0 {
		return false
	}
	c := nextNonSpace(p.src, p.i)
	return c == 0 || strings.IndexByte(leadingOperators, c) < 0
}

// skipBalanced skips from an opening bracket past its match.
func (p *declParser) skipBalanced() bool {
	depth := 0
	for p.i < len(p.src) {
		c := p.src[p.i]
		switch {
		case c == '(' || c == '[' || c == '{':
			depth++
			p.i++
		case c == ')' || c == ']' || c == '}':
			depth--
			p.i++
			if depth == 0 {
				return true
			}
		case c == '\'' || c == '"':
			p.skipString()
		case c == '`':
			p.skipTemplate()
		case p.has("//") || p.has("/*"):
			p.skipSpace()
		default:
			p.i++
		}
	}
	return false
}

func (p *declParser) skipString() {
	quote := p.src[p.i]
	p.i++
	for p.i < len(p.src) && p.src[p.i] != quote && p.src[p.i] != '\n' {
		if p.src[p.i] == '\\' {
			p.i++
		}
		p.i++
	}
	p.i++
}

func (p *declParser) skipTemplate() {
	p.i++
	for p.i < len(p.src) {
		switch {
		case p.src[p.i] == '\\':
			p.i += 2
		case p.src[p.i] == '`':
			p.i++
			return
		case p.has("${"):
			p.i++
			if !p.skipBalanced() {
				return
			}
		default:
			p.i++
		}
	}
}

func prevNonSpace(src string, i int) (byte, int) {
	for i--; i >= 0; i-- {
		if c := src[i]; c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return c, i
		}
	}
	return 0, -1
}

func nextNonSpace(src string, i int) byte {
	for ; i < len(src); i++ {
		if c := src[i]; c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return c
		}
	}
	return 0
}

// isProperty reports obj.name, but not a spread ...name.
func isProperty(src string, t ident) bool {
	c, at := prevNonSpace(src, t.start)
	if c != '.' {
		return false
	}
	return !(at >= 2 && src[at-2:at+1] == "...")
}

// isObjectKey reports {name: ...} and {a, name: ...}; a ternary's "? name :"
// is not a key.
func isObjectKey(src string, t ident) bool {
	if nextNonSpace(src, t.end) != ':' {
		return false
	}
	c, _ := prevNonSpace(src, t.start)
	return c == '{' || c == ','
}

// isShorthandEntry reports {name} and {a, name} inside an object literal or
// an assignment pattern.
func isShorthandEntry(src string, t ident) bool {
	if t.enclosing != '{' {
		return false
	}
	if c, _ := prevNonSpace(src, t.start); c != '{' && c != ',' {
		return false
	}
	next := nextNonSpace(src, t.end)
	return next == '}' || next == ','
}

// reservedSet builds a lookup set from binding names.
func reservedSet(names ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, list := range names {
		for _, n := range list {
			set[n] = true
		}
	}
	return set
}

// sortedKeys is used for stable log output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
