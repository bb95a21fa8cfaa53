package dispatch

import (
	"log/slog"

	"github.com/sakif/fragments/internal/config"
	"github.com/sakif/fragments/internal/executor/canvas"
	"github.com/sakif/fragments/internal/executor/markup"
	"github.com/sakif/fragments/internal/executor/three"
	"github.com/sakif/fragments/internal/loader"
)

// NewEngine registers the built-in executors configured by cfg: three and
// canvas in priority order, markup as the fallback. The three.js library is
// fetched lazily through one shared loader.
func NewEngine(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	e := cfg.Engine
	lib := loader.New(cfg.ToLoader(), logger)
	return New(logger,
		markup.New(logger,
			markup.WithTimeout(e.MarkupTimeout),
			markup.WithConfidenceFloor(e.ConfidenceFloor)),
		three.New(lib, logger,
			three.WithTimeout(e.ThreeTimeout),
			three.WithConfidenceFloor(e.ConfidenceFloor)),
		canvas.New(logger,
			canvas.WithTimeout(e.CanvasTimeout),
			canvas.WithConfidenceFloor(e.ConfidenceFloor)),
	)
}
