package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/handler"
	"github.com/sakif/fragments/internal/service"
)

// mockRenderer records the request and answers with a canned rendering.
type mockRenderer struct {
	captured  service.RenderRequest
	rendering *service.Rendering
	err       error
}

func (m *mockRenderer) Render(_ context.Context, req service.RenderRequest) (*service.Rendering, error) {
	m.captured = req
	if m.err != nil {
		return nil, m.err
	}
	return m.rendering, nil
}

type mockRegistry struct{}

func (mockRegistry) Classify(code string) executor.Analysis {
	return executor.Analysis{Technology: executor.Canvas, Confidence: 0.9}
}

func (mockRegistry) Descriptors() []executor.Descriptor {
	return []executor.Descriptor{{Name: "canvas", Version: "1.0.0", Technologies: []executor.Technology{executor.Canvas}}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestExecuteHandler_HandleExecute(t *testing.T) {
	t.Run("valid execution", func(t *testing.T) {
		m := &mockRenderer{rendering: &service.Rendering{
			Result: &executor.ExecutionResult{Success: true, Executor: "canvas"},
			PNG:    []byte{0x89, 'P', 'N', 'G'},
			Width:  64,
			Height: 48,
		}}
		h := handler.NewExecuteHandler(m, mockRegistry{}, testLogger())

		rr := post(h.HandleExecute, "/api/execute",
			`{"code":"ctx.fillRect(0,0,1,1)","width":64,"height":48,"settleMs":250,"options":{"timeoutMs":900}}`)

		require.Equal(t, http.StatusOK, rr.Code)
		var res handler.ExecuteResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.True(t, res.Result.Success)
		assert.Equal(t, "data:image/png;base64,iVBORw==", res.Image)
		assert.Equal(t, 64, res.Width)

		assert.Equal(t, "ctx.fillRect(0,0,1,1)", m.captured.Code)
		assert.Equal(t, 250*time.Millisecond, m.captured.Settle)
		assert.Equal(t, 900, m.captured.Options.TimeoutMs)
		assert.True(t, m.captured.Options.FallbackArt, "absent option keys keep their defaults")
		assert.Equal(t, executor.SandboxNormal, m.captured.Options.SandboxLevel)
	})

	t.Run("failed fragment is still 200", func(t *testing.T) {
		m := &mockRenderer{rendering: &service.Rendering{
			Result: executor.Failed(executor.NewError(executor.CategoryTimeout, "took too long"), time.Second),
		}}
		h := handler.NewExecuteHandler(m, mockRegistry{}, testLogger())

		rr := post(h.HandleExecute, "/api/execute", `{"code":"x"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"category":"timeout"`)
	})

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "invalid request body", body: `{"invalid_json":`, status: http.StatusBadRequest},
		{name: "empty code", body: `{"code":""}`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"code":"x","language":"python"}`, status: http.StatusBadRequest},
		{name: "settle too long", body: `{"code":"x","settleMs":60000}`, status: http.StatusBadRequest},
		{name: "renderer busy", body: `{"code":"x"}`, err: apperror.Unavailable("renderer", context.DeadlineExceeded), status: http.StatusServiceUnavailable},
		{name: "renderer rejects", body: `{"code":"x"}`, err: apperror.ValidationFailed("width", "bad size"), status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewExecuteHandler(&mockRenderer{err: tt.err}, mockRegistry{}, testLogger())
			rr := post(h.HandleExecute, "/api/execute", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}

	t.Run("body too large", func(t *testing.T) {
		h := handler.NewExecuteHandler(&mockRenderer{}, mockRegistry{}, testLogger())
		body := `{"code":"` + strings.Repeat("x", handler.MaxBodyBytes) + `"}`
		rr := post(h.HandleExecute, "/api/execute", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "bytes or less")
	})
}

func TestExecuteHandler_ClassifyAndExecutors(t *testing.T) {
	h := handler.NewExecuteHandler(&mockRenderer{}, mockRegistry{}, testLogger())

	rr := post(h.HandleClassify, "/api/classify", `{"code":"const c = document.querySelector('canvas')"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"technology":"canvas"`)

	rr = httptest.NewRecorder()
	h.HandleExecutors(rr, httptest.NewRequest(http.MethodGet, "/api/executors", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var descs []executor.Descriptor
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&descs))
	assert.Equal(t, "canvas", descs[0].Name)
}
