package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripControl(t *testing.T) {
	in := "\ufefflet a = 1;\x00\x07\n\tb = 2;\r\n\x7f"
	assert.Equal(t, "let a = 1;\n\tb = 2;\r\n", StripControl(in))
}

func TestRename(t *testing.T) {
	reserved := reservedSet([]string{"time", "canvas", "ctx"})

	tests := []struct {
		name        string
		in          string
		want        string
		wantRenamed map[string]string
	}{
		{
			name:        "let collision",
			in:          "let time = 0;\ntime += 1;",
			want:        "let __fragment_time_1 = 0;\n__fragment_time_1 += 1;",
			wantRenamed: map[string]string{"time": "__fragment_time_1"},
		},
		{
			name:        "property and key keep their spelling",
			in:          "const ctx = c.ctx; const o = { ctx: ctx, n: ctx };",
			want:        "const __fragment_ctx_1 = c.ctx; const o = { ctx: __fragment_ctx_1, n: __fragment_ctx_1 };",
			wantRenamed: map[string]string{"ctx": "__fragment_ctx_1"},
		},
		{
			name:        "strings and comments untouched",
			in:          "var canvas = 1; // canvas here\nlog('canvas', `canvas ${canvas}`);",
			want:        "var __fragment_canvas_1 = 1; // canvas here\nlog('canvas', `canvas ${__fragment_canvas_1}`);",
			wantRenamed: map[string]string{"canvas": "__fragment_canvas_1"},
		},
		{
			name:        "function and class declarations",
			in:          "function time() {}\nclass ctx {}",
			want:        "function __fragment_time_1() {}\nclass __fragment_ctx_2 {}",
			wantRenamed: map[string]string{"time": "__fragment_time_1", "ctx": "__fragment_ctx_2"},
		},
		{
			name:        "spread is not a property",
			in:          "const time = [1]; f(...time);",
			want:        "const __fragment_time_1 = [1]; f(...__fragment_time_1);",
			wantRenamed: map[string]string{"time": "__fragment_time_1"},
		},
		{
			name: "uses without declaration are left alone",
			in:   "ctx.fillRect(0, 0, time(), 1);",
			want: "ctx.fillRect(0, 0, time(), 1);",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, renamed := Rename(tt.in, reserved)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRenamed, renamed)
		})
	}
}

func TestRename_DeclaratorLists(t *testing.T) {
	reserved := reservedSet([]string{"time", "canvas", "ctx", "width", "height"})

	tests := []struct {
		name        string
		in          string
		want        string
		wantRenamed map[string]string
	}{
		{
			name:        "later declarator",
			in:          "let w = canvas.width, height = canvas.height;\nctx.fillRect(0, 0, w, height);",
			want:        "let w = canvas.width, __fragment_height_1 = canvas.height;\nctx.fillRect(0, 0, w, __fragment_height_1);",
			wantRenamed: map[string]string{"height": "__fragment_height_1"},
		},
		{
			name:        "object pattern shorthand",
			in:          "const { width, height } = canvas;\nctx.fillRect(0, 0, width, height);",
			want:        "const { width: __fragment_width_1, height: __fragment_height_2 } = canvas;\nctx.fillRect(0, 0, __fragment_width_1, __fragment_height_2);",
			wantRenamed: map[string]string{"width": "__fragment_width_1", "height": "__fragment_height_2"},
		},
		{
			name:        "object pattern with keys and defaults",
			in:          "const { w: width = 4, time = 0 } = opts;",
			want:        "const { w: __fragment_width_1 = 4, time: __fragment_time_2 = 0 } = opts;",
			wantRenamed: map[string]string{"width": "__fragment_width_1", "time": "__fragment_time_2"},
		},
		{
			name:        "array pattern with hole and rest",
			in:          "let [time, , ...ctx] = list;",
			want:        "let [__fragment_time_1, , ...__fragment_ctx_2] = list;",
			wantRenamed: map[string]string{"time": "__fragment_time_1", "ctx": "__fragment_ctx_2"},
		},
		{
			name:        "initializer spanning lines",
			in:          "var a = f(1,\n  2),\n  time = 3\ntime++",
			want:        "var a = f(1,\n  2),\n  __fragment_time_1 = 3\n__fragment_time_1++",
			wantRenamed: map[string]string{"time": "__fragment_time_1"},
		},
		{
			name:        "arrow initializer",
			in:          "const f = (a, b) => ({ a, b }), time = 1;",
			want:        "const f = (a, b) => ({ a, b }), __fragment_time_1 = 1;",
			wantRenamed: map[string]string{"time": "__fragment_time_1"},
		},
		{
			name:        "for-of pattern",
			in:          "for (const [time, v] of pairs) { log(time, v); }",
			want:        "for (const [__fragment_time_1, v] of pairs) { log(__fragment_time_1, v); }",
			wantRenamed: map[string]string{"time": "__fragment_time_1"},
		},
		{
			name:        "shorthand use keeps its key",
			in:          "const time = 1; send({ time });",
			want:        "const __fragment_time_1 = 1; send({ time: __fragment_time_1 });",
			wantRenamed: map[string]string{"time": "__fragment_time_1"},
		},
		{
			name: "newline ends the declaration",
			in:   "let a = 1\ntime = 2",
			want: "let a = 1\ntime = 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, renamed := Rename(tt.in, reserved)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRenamed, renamed)
		})
	}
}

func TestRename_TernaryIsNotAnObjectKey(t *testing.T) {
	got, _ := Rename("let time = 1; const x = a ? time : 0;", reservedSet([]string{"time"}))
	assert.Equal(t, "let __fragment_time_1 = 1; const x = a ? __fragment_time_1 : 0;", got)
}

func TestJoinScripts(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"none", nil, nil},
		{"single is untouched", []string{"\n\nlet a = 1"}, []string{"\n\nlet a = 1"}},
		{
			name: "each keeps its line",
			in:   []string{"\nfunction f() {}", "\n\n\nf()"},
			want: []string{"\nfunction f() {};\n\nf()"},
		},
		{
			name: "same line still gets its own line",
			in:   []string{"a()\nb()", "\nc()"},
			want: []string{"a()\nb();\nc()"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinScripts(tt.in))
		})
	}
}

func TestPosition(t *testing.T) {
	tests := []struct {
		text     string
		prefix   int
		wantLine int
		wantCol  int
	}{
		{"ReferenceError: x is not defined at fragment.js:3:5(12)", 20, 3, 5},
		{"ReferenceError: x is not defined at fragment.js:1:25(3)", 20, 1, 5},
		{"fragment.js: Line 2:9 Unexpected token", 20, 2, 9},
		{"no position here", 20, 0, 0},
	}
	for _, tt := range tests {
		line, col := position(tt.text, tt.prefix)
		assert.Equal(t, tt.wantLine, line, tt.text)
		assert.Equal(t, tt.wantCol, col, tt.text)
	}
}
