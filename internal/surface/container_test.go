package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainer_SanitizesMarkup(t *testing.T) {
	c := NewContainer()
	c.SetHTML(`<div id="stage" onclick="steal()"><script>alert(1)</script><svg viewBox="0 0 10 10"><circle cx="5" cy="5" r="4" fill="red"></circle></svg></div>`)

	html := c.HTML()
	assert.Contains(t, html, `id="stage"`)
	assert.Contains(t, html, "<circle")
	assert.NotContains(t, html, "onclick")
	assert.NotContains(t, html, "<script")
}

func TestContainer_StylesAndReset(t *testing.T) {
	c := NewContainer()
	c.AddStyle("body { margin: 0 }")
	c.AppendHTML("<p>one</p>")
	c.AppendHTML("<p>two</p>")
	c.SetTitle("waves")

	assert.Equal(t, []string{"body { margin: 0 }"}, c.Styles())
	assert.Equal(t, "<p>one</p><p>two</p>", c.HTML())
	assert.Equal(t, "waves", c.Title())

	c.Reset()
	assert.Empty(t, c.HTML())
	assert.Empty(t, c.Styles())
	assert.Empty(t, c.Title())
}
