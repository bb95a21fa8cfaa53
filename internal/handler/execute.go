package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/service"
)

// Registry is the part of the dispatcher the engine endpoints read.
type Registry interface {
	Classify(code string) executor.Analysis
	Descriptors() []executor.Descriptor
}

// ExecuteHandler serves the engine endpoints: headless execution,
// classification and the executor list.
type ExecuteHandler struct {
	renderer service.Renderer
	registry Registry
	logger   *slog.Logger
}

func NewExecuteHandler(renderer service.Renderer, registry Registry, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{renderer: renderer, registry: registry, logger: logger}
}

type executeRequest struct {
	Code     string           `json:"code" validate:"required,max=100000"`
	Width    int              `json:"width" validate:"gte=0,lte=2048"`
	Height   int              `json:"height" validate:"gte=0,lte=2048"`
	SettleMs int              `json:"settleMs" validate:"gte=0,lte=5000"`
	Options  executor.Options `json:"options"`
}

// ExecuteResponse carries the result and what the fragment drew.
type ExecuteResponse struct {
	Result *executor.ExecutionResult `json:"result"`
	Image  string                    `json:"image"`
	Width  int                       `json:"width"`
	Height int                       `json:"height"`
	Title  string                    `json:"title,omitempty"`
	HTML   string                    `json:"html,omitempty"`
}

// HandleExecute serves POST /api/execute. A fragment that fails still
// answers 200: the failure is in result.error and the image shows what was
// drawn, fallback art included.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	// Absent option keys keep their defaults.
	req := executeRequest{Options: executor.DefaultOptions()}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rendering, err := h.renderer.Render(r.Context(), service.RenderRequest{
		Code:    req.Code,
		Width:   req.Width,
		Height:  req.Height,
		Settle:  time.Duration(req.SettleMs) * time.Millisecond,
		Options: req.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("fragment executed",
		slog.String("executor", rendering.Result.Executor),
		slog.Bool("success", rendering.Result.Success),
		slog.Float64("ms", rendering.Result.ExecutionTimeMs),
	)
	writeJSON(w, http.StatusOK, ExecuteResponse{
		Result: rendering.Result,
		Image:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(rendering.PNG),
		Width:  rendering.Width,
		Height: rendering.Height,
		Title:  rendering.Title,
		HTML:   rendering.HTML,
	})
}

type classifyRequest struct {
	Code string `json:"code" validate:"required,max=100000"`
}

// HandleClassify serves POST /api/classify.
func (h *ExecuteHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Classify(req.Code))
}

// HandleExecutors serves GET /api/executors.
func (h *ExecuteHandler) HandleExecutors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Descriptors())
}
