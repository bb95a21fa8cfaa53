package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/fragments/internal/dispatch"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/surface"
	"github.com/sakif/fragments/internal/watch"
)

type watchOptions struct {
	out      string
	width    int
	height   int
	settle   time.Duration
	debounce time.Duration
}

func newWatchCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-run a fragment whenever the file changes",
		Long: `Re-run a fragment whenever the file changes.

Edits are debounced: the fragment runs once the file has been quiet for the
debounce period. The previous attempt is cleaned up before every new one, and
a successful fragment keeps animating until the next edit. After each run the
surface is written to the PNG output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, rootFlags, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "PNG output path (default <file>.png)")
	cmd.Flags().IntVar(&opts.width, "width", 800, "Surface width")
	cmd.Flags().IntVar(&opts.height, "height", 600, "Surface height")
	cmd.Flags().DurationVar(&opts.settle, "settle", 500*time.Millisecond, "Let animations run this long before each snapshot")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", watch.DefaultDebounce, "Quiet period after the last edit")

	return cmd
}

func runWatch(cmd *cobra.Command, rootFlags *rootFlags, opts *watchOptions, path string) error {
	cfg, logger, err := loadApp(cmd, rootFlags)
	if err != nil {
		return err
	}
	out := opts.out
	if out == "" {
		out = strings.TrimSuffix(path, ".js") + ".png"
	}

	d := dispatch.NewEngine(cfg, logger)
	canvas := surface.New(opts.width, opts.height)
	ec := executor.NewContext(canvas,
		executor.WithContainer(surface.NewContainer()),
		executor.WithLogger(logger),
		executor.WithFrameInterval(cfg.Engine.FrameInterval))
	defer d.Cleanup(ec)

	w, err := watch.New(path, opts.debounce, logger)
	if err != nil {
		return err
	}
	execOpts := cfg.Options()
	execOpts.EnableDebugMode = true
	execOpts.ClearOnCleanup = true

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (ctrl-c to stop)\n", path)
	return w.Run(cmd.Context(), func(ctx context.Context, code string) {
		d.Cleanup(ec)
		res := d.RunAttempt(ctx, code, ec, execOpts)
		if res.Success && opts.settle > 0 {
			select {
			case <-time.After(opts.settle):
			case <-ctx.Done():
				return
			}
		}
		written := out
		png, err := canvas.PNG()
		if err == nil {
			err = os.WriteFile(out, png, 0o644)
		}
		if err != nil {
			logger.Warn("writing snapshot", slog.String("error", err.Error()))
			written = ""
		}
		printResult(cmd.OutOrStdout(), res, written)
	})
}
