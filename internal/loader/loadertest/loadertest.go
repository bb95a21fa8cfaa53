// Package loadertest provides a stand-in 3D library and mirrors serving it,
// for tests that must not reach the network.
package loadertest

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/fragments/internal/loader"
)

// FakeThree implements just enough of the THREE namespace for fragments to
// build a scene and render it through the surface's WebGL shim.
const FakeThree = `var THREE = (function () {
  function Color(hex) { this.set(hex === undefined ? 0 : hex); }
  Color.prototype.set = function (hex) { this.r = ((hex >> 16) & 255) / 255; this.g = ((hex >> 8) & 255) / 255; this.b = (hex & 255) / 255; return this; };
  function Object3D() { this.children = []; this.position = { x: 0, y: 0, z: 0, set: function (x, y, z) { this.x = x; this.y = y; this.z = z; } }; this.rotation = { x: 0, y: 0, z: 0 }; }
  Object3D.prototype.add = function (o) { this.children.push(o); return this; };
  function Scene() { Object3D.call(this); this.background = null; }
  Scene.prototype = Object.create(Object3D.prototype);
  function PerspectiveCamera(fov, aspect, near, far) { Object3D.call(this); this.fov = fov; this.aspect = aspect; this.near = near; this.far = far; }
  PerspectiveCamera.prototype = Object.create(Object3D.prototype);
  PerspectiveCamera.prototype.updateProjectionMatrix = function () {};
  function BoxGeometry(w, h, d) { this.parameters = { width: w, height: h, depth: d }; this.vertexCount = 36; }
  function MeshBasicMaterial(opts) { this.color = new Color(opts && opts.color !== undefined ? opts.color : 0xffffff); }
  function Mesh(geometry, material) { Object3D.call(this); this.geometry = geometry; this.material = material; }
  Mesh.prototype = Object.create(Object3D.prototype);
  function WebGLRenderer(opts) {
    if (!opts || !opts.canvas) { throw new Error("WebGLRenderer needs a canvas"); }
    this.domElement = opts.canvas;
    this.gl = opts.canvas.getContext("webgl");
    if (!this.gl) { throw new Error("Error creating WebGL context."); }
    this.clearValue = new Color(0);
    this.clearAlpha = 1;
    this.drawCalls = 0;
  }
  WebGLRenderer.prototype.setSize = function (w, h) { this.domElement.width = w; this.domElement.height = h; this.gl.viewport(0, 0, w, h); };
  WebGLRenderer.prototype.setPixelRatio = function () {};
  WebGLRenderer.prototype.setClearColor = function (hex, alpha) { this.clearValue = new Color(hex); this.clearAlpha = alpha === undefined ? 1 : alpha; };
  WebGLRenderer.prototype.render = function (scene, camera) {
    var c = scene.background || this.clearValue;
    this.gl.clearColor(c.r, c.g, c.b, this.clearAlpha);
    this.gl.clear(this.gl.COLOR_BUFFER_BIT | this.gl.DEPTH_BUFFER_BIT);
    for (var i = 0; i < scene.children.length; i++) {
      var o = scene.children[i];
      if (o.geometry) { this.gl.drawArrays(this.gl.TRIANGLES, 0, o.geometry.vertexCount); this.drawCalls++; }
    }
  };
  return { REVISION: "fake", Color: Color, Object3D: Object3D, Scene: Scene, PerspectiveCamera: PerspectiveCamera, BoxGeometry: BoxGeometry, MeshBasicMaterial: MeshBasicMaterial, Mesh: Mesh, WebGLRenderer: WebGLRenderer };
})();
`

// Mirror is a test server serving a fixed body.
type Mirror struct {
	*httptest.Server
	Hits atomic.Int64
}

// NewMirror serves body with status. It is closed when the test ends.
func NewMirror(t testing.TB, status int, body string) *Mirror {
	return NewMirrorFunc(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

// NewMirrorFunc serves requests with h.
func NewMirrorFunc(t testing.TB, h http.HandlerFunc) *Mirror {
	t.Helper()
	m := &Mirror{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// LibraryURL returns the library URL on the mirror.
func (m *Mirror) LibraryURL() string {
	return m.URL + "/three.min.js"
}

// Config returns a fast loader configuration for sources.
func Config(sources ...string) loader.Config {
	cfg := loader.DefaultConfig()
	cfg.Sources = sources
	cfg.PrimaryTimeout = 2 * time.Second
	cfg.FallbackTimeout = time.Second
	cfg.Settle = time.Millisecond
	cfg.Backoff = time.Millisecond
	return cfg
}
