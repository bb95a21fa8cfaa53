package classifier

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/fragments/internal/executor"
)

func TestAnalyze_Technology(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantTech executor.Technology
		minConf  float64
	}{
		{
			name: "three scene",
			code: `const scene = new THREE.Scene();
const camera = new THREE.PerspectiveCamera(75, 1, 0.1, 1000);
const renderer = new THREE.WebGLRenderer({ canvas });
const mesh = new THREE.Mesh(new THREE.BoxGeometry(), new THREE.MeshNormalMaterial());`,
			wantTech: executor.Three,
			minConf:  0.85,
		},
		{
			name:     "three with exactly two components",
			code:     `const scene = new THREE.Scene(); const camera = new THREE.OrthographicCamera();`,
			wantTech: executor.Three,
			minConf:  0.8,
		},
		{
			name:     "raw webgl",
			code:     `const gl = canvas.getContext('webgl'); gl.clearColor(0,0,0,1);`,
			wantTech: executor.WebGL,
			minConf:  0.85,
		},
		{
			name:     "p5 sketch",
			code:     "function setup() { createCanvas(400, 400); }\nfunction draw() { background(220); }",
			wantTech: executor.P5,
			minConf:  0.8,
		},
		{
			name:     "2d context",
			code:     `const c = canvas.getContext("2d"); c.fillRect(0, 0, 10, 10);`,
			wantTech: executor.Canvas,
			minConf:  0.85,
		},
		{
			name:     "svg markup",
			code:     `<svg viewBox="0 0 10 10"><circle r="4"/></svg>`,
			wantTech: executor.SVG,
			minConf:  0.8,
		},
		{
			name:     "css animation",
			code:     `<style>@keyframes spin { to { transform: rotate(1turn) } }</style>`,
			wantTech: executor.CSS,
			minConf:  0.75,
		},
		{
			name:     "plain html",
			code:     `<div class="x"><p>hello</p></div>`,
			wantTech: executor.HTML,
			minConf:  0.6,
		},
		{
			name:     "unrecognized script",
			code:     `console.log(1 + 1)`,
			wantTech: executor.Unknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.code)
			assert.Equal(t, tt.wantTech, got.Technology)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestAnalyze_ThreePropertyHoldsForEveryComponentPair(t *testing.T) {
	components := []string{"scene", "camera", "renderer", "mesh"}
	for i := range components {
		for j := i + 1; j < len(components); j++ {
			code := "const a = new THREE.Object3D(); // " + components[i] + " " + components[j]
			got := Analyze(code)
			assert.Equal(t, executor.Three, got.Technology, code)
			assert.GreaterOrEqual(t, got.Confidence, 0.8, code)
		}
	}
}

func TestAnalyze_ConfidenceIsMonotonic(t *testing.T) {
	base := "THREE.x; scene; camera;"
	more := base + " renderer; mesh; geometry;"
	assert.Greater(t, Analyze(more).Confidence, Analyze(base).Confidence)
}

func TestAnalyze_Empty(t *testing.T) {
	for _, code := range []string{"", "   \n\t "} {
		got := Analyze(code)
		if diff := cmp.Diff(executor.Analysis{Technology: executor.Unknown}, got); diff != "" {
			t.Errorf("Analyze(%q) mismatch (-want +got):\n%s", code, diff)
		}
	}
}

func TestAnalyze_HybridKeepsEveryMarker(t *testing.T) {
	code := `<canvas id="c"></canvas>
<style>@keyframes pulse { from { opacity: 0 } }</style>`

	got := Analyze(code)
	assert.Equal(t, executor.Canvas, got.Technology, "priority wins over marker count")

	var names []string
	for _, f := range got.Features {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"canvas-element", "css-keyframes", "style-block"}, names)
}

func TestAnalyze_Deterministic(t *testing.T) {
	code := `const scene = new THREE.Scene(); fetch('/x'); while(true){}`
	first := Analyze(code)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, Analyze(code)); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
	assert.Equal(t, []string{"three"}, first.Dependencies)
}

func TestSecurityRisks(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantLevel executor.RiskLevel
		wantKind  string
	}{
		{"while true", "while (true) { x++ }", executor.RiskCritical, "infinite-loop"},
		{"while 1", "while(1){}", executor.RiskCritical, "infinite-loop"},
		{"empty for", "for(;;) {}", executor.RiskCritical, "infinite-loop"},
		{"spaced empty for", "for ( ; ; ) {}", executor.RiskCritical, "infinite-loop"},
		{"eval", "eval('1+1')", executor.RiskHigh, "dynamic-evaluation"},
		{"function constructor", "const f = new Function('return 1')", executor.RiskHigh, "dynamic-evaluation"},
		{"string timer", `setTimeout("draw()", 10)`, executor.RiskHigh, "dynamic-evaluation"},
		{"fetch", "fetch('/api')", executor.RiskMedium, "network-access"},
		{"websocket", "new WebSocket('ws://x')", executor.RiskMedium, "network-access"},
		{"cookie", "document.cookie = 'a=b'", executor.RiskMedium, "storage-access"},
		{"local storage", "localStorage.setItem('a', 1)", executor.RiskMedium, "storage-access"},
		{"frame escape", "window.top.location = 'x'", executor.RiskLow, "frame-escape"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risks := SecurityRisks(tt.code)
			if assert.Len(t, risks, 1) {
				assert.Equal(t, tt.wantLevel, risks[0].Level)
				assert.Equal(t, tt.wantKind, risks[0].Kind)
			}
		})
	}
}

func TestSecurityRisks_NoFalsePositives(t *testing.T) {
	safe := []string{
		"const draw = function(t) { ctx.fillRect(0, 0, t, t) }",
		"for (let i = 0; i < 10; i++) {}",
		"while (i < 10) { i++ }",
		"setTimeout(() => draw(), 16)",
		"const retrieval = medieval(3)",
		"obj.eval(1)",
	}
	for _, code := range safe {
		assert.Empty(t, SecurityRisks(code), code)
	}
}

func TestAnalyze_RisksDoNotBlockClassification(t *testing.T) {
	code := `const ctx = canvas.getContext('2d'); for(;;) { ctx.fillRect(0,0,1,1) }`
	got := Analyze(code)
	assert.Equal(t, executor.Canvas, got.Technology)
	assert.Equal(t, executor.RiskCritical, got.MaxRisk())
	assert.True(t, strings.Contains(got.Risks[0].Description, "for(;;)"))
}
