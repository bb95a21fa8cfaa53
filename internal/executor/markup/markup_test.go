package markup_test

import (
	"context"
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/executor/markup"
	"github.com/sakif/fragments/internal/surface"
)

const page = `<!DOCTYPE html>
<html>
<head>
  <title>Tide</title>
  <style>body { background: #0000ff; } h1 { color: white; }</style>
</head>
<body>
  <h1 id="heading" onclick="steal()">Tide</h1>
  <script>
    console.log(document.querySelector("#heading").textContent);
  </script>
</body>
</html>`

func newContext() (*executor.Context, *surface.Container) {
	box := surface.NewContainer()
	ec := executor.NewContext(surface.New(16, 16),
		executor.WithContainer(box),
		executor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		executor.WithFrameInterval(2*time.Millisecond))
	return ec, box
}

func execute(t *testing.T, code string, debug bool) (*executor.ExecutionResult, *executor.Context, *surface.Container) {
	t.Helper()
	e := markup.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ec, box := newContext()
	t.Cleanup(func() { e.Cleanup(ec) })

	opts := executor.DefaultOptions()
	opts.FallbackArt = false
	opts.EnableDebugMode = debug
	res, err := e.Execute(context.Background(), executor.ExecutionRequest{Code: code, Context: ec, Options: opts})
	require.NoError(t, err)
	return res, ec, box
}

func TestExecute_Page(t *testing.T) {
	defer goleak.VerifyNone(t)

	res, ec, box := execute(t, page, true)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, "markup", res.Executor)
	assert.Equal(t, []executor.Technology{executor.HTML}, res.DetectedTechnologies)

	assert.Equal(t, "Tide", box.Title())
	assert.Equal(t, []string{"body { background: #0000ff; } h1 { color: white; }"}, box.Styles())
	body := box.HTML()
	assert.Contains(t, body, `<h1 id="heading">Tide</h1>`)
	assert.NotContains(t, body, "onclick")
	assert.NotContains(t, body, "<script")

	if diff := cmp.Diff([]string{"log: Tide"}, res.Logs); diff != "" {
		t.Errorf("logs (-want +got):\n%s", diff)
	}
	assert.Equal(t, color.RGBA{B: 255, A: 255}, ec.Surface.At(10, 10), "body background")
}

func TestExecute_ScriptErrorsUseDocumentLines(t *testing.T) {
	defer goleak.VerifyNone(t)

	code := `<html><body>
<p>first</p>
<script>
let a = 1;
missing();
</script>
</body></html>`
	res, _, _ := execute(t, code, false)
	require.False(t, res.Success)
	assert.Equal(t, executor.CategoryRuntime, res.Error.Category)
	assert.Equal(t, 5, res.Error.Line)
}

func TestExecute_ScriptsShareOneScope(t *testing.T) {
	defer goleak.VerifyNone(t)

	code := `<body>
<script>function helper() { return 7; } var total = 1;</script>
<p>between</p>
<script>total += helper(); log(total);</script>
</body>`
	res, _, _ := execute(t, code, true)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, []string{"log: 8"}, res.Logs)
}

func TestExecute_LaterScriptErrorsKeepTheirLine(t *testing.T) {
	defer goleak.VerifyNone(t)

	code := `<body>
<script>function helper() { return 7; }</script>
<p>between</p>
<script>helper();
missing();</script>
</body>`
	res, _, _ := execute(t, code, false)
	require.False(t, res.Success)
	assert.Equal(t, executor.CategoryRuntime, res.Error.Category)
	assert.Equal(t, 5, res.Error.Line)
}

func TestExecute_ExternalScriptsAreSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)

	code := `<body><script src="https://cdn.example/lib.js"></script><p>ok</p></body>`
	res, _, box := execute(t, code, true)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, []string{"warn: external script not loaded: https://cdn.example/lib.js"}, res.Logs)
	assert.Equal(t, "<p>ok</p>", box.HTML())
}

func TestExecute_SVG(t *testing.T) {
	defer goleak.VerifyNone(t)

	code := `<svg viewBox="0 0 10 10" xmlns="http://www.w3.org/2000/svg"><circle cx="5" cy="5" r="4" fill="teal"/></svg>`
	res, _, box := execute(t, code, false)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, []executor.Technology{executor.SVG}, res.DetectedTechnologies)
	assert.Contains(t, box.HTML(), "<circle")
}

func TestExecute_StyleSheet(t *testing.T) {
	defer goleak.VerifyNone(t)

	code := "@keyframes pulse { from { opacity: 0 } to { opacity: 1 } }"
	res, _, box := execute(t, code, false)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, []executor.Technology{executor.CSS}, res.DetectedTechnologies)
	assert.Equal(t, []string{code}, box.Styles())
}

func TestExecute_PlainScript(t *testing.T) {
	defer goleak.VerifyNone(t)

	res, _, _ := execute(t, "for (let i = 0; i < 2; i++) log(i)", true)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, []string{"log: 0", "log: 1"}, res.Logs)
}

func TestExecute_InnerHTMLWritesToContainer(t *testing.T) {
	defer goleak.VerifyNone(t)

	code := `<body><div id="out"></div><script>
document.title = "Changed";
document.body.innerHTML = "<b>bold</b><script>x()<\/script>";
</script></body>`
	res, _, box := execute(t, code, false)
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, "Changed", box.Title())
	assert.Equal(t, "<b>bold</b>", box.HTML())
}

func TestAnalyze_ScriptFeatures(t *testing.T) {
	e := markup.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := e.Analyze(`<html><body><script src="x.js"></script><script>log(1)</script></body></html>`)
	assert.True(t, a.HasFeature("inline-script"))
	assert.True(t, a.HasFeature("external-script"))
}
