package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/fragments/internal/dispatch"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/service"
)

type runOptions struct {
	out        string
	width      int
	height     int
	settle     time.Duration
	timeout    time.Duration
	noFallback bool
	debug      bool
	jsonOutput bool
}

func newRunCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a fragment headlessly and write what it drew as a PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, rootFlags, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "PNG output path (default <file>.png, none for stdin)")
	cmd.Flags().IntVar(&opts.width, "width", 800, "Surface width")
	cmd.Flags().IntVar(&opts.height, "height", 600, "Surface height")
	cmd.Flags().DurationVar(&opts.settle, "settle", 0, "Let animations run this long before the snapshot")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Override the executor's timeout")
	cmd.Flags().BoolVar(&opts.noFallback, "no-fallback", false, "Leave the surface as is when the fragment fails")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Collect the fragment's console output")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the execution result as JSON")

	return cmd
}

func runRun(cmd *cobra.Command, rootFlags *rootFlags, opts *runOptions, path string) error {
	cfg, logger, err := loadApp(cmd, rootFlags)
	if err != nil {
		return err
	}
	code, err := readFragment(cmd, path)
	if err != nil {
		return err
	}

	execOpts := cfg.Options()
	execOpts.TimeoutMs = int(opts.timeout.Milliseconds())
	execOpts.FallbackArt = !opts.noFallback
	execOpts.EnableDebugMode = opts.debug

	renderer := service.NewRenderService(dispatch.NewEngine(cfg, logger), service.RenderConfig{
		FrameInterval: cfg.Engine.FrameInterval,
		MaxConcurrent: 1,
	}, logger)
	r, err := renderer.Render(cmd.Context(), service.RenderRequest{
		Code:    code,
		Width:   opts.width,
		Height:  opts.height,
		Settle:  opts.settle,
		Options: execOpts,
	})
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" && path != "-" {
		out = strings.TrimSuffix(path, ".js") + ".png"
	}
	if out != "" {
		if err := os.WriteFile(out, r.PNG, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.Result); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), r.Result, out)
	}

	if !r.Result.Success {
		return fmt.Errorf("fragment failed: %s", r.Result.Error.Message)
	}
	return nil
}

func printResult(w io.Writer, res *executor.ExecutionResult, out string) {
	status := "ok"
	if !res.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "%s  executor=%s  time=%.1fms", status, valueOr(res.Executor, "none"), res.ExecutionTimeMs)
	if out != "" {
		fmt.Fprintf(w, "  png=%s", out)
	}
	fmt.Fprintln(w)
	if res.Error != nil {
		loc := ""
		if res.Error.Line > 0 {
			loc = fmt.Sprintf(" (line %d)", res.Error.Line)
		}
		fmt.Fprintf(w, "  %s error%s: %s\n", res.Error.Category, loc, res.Error.Message)
		if res.Error.Suggestion != "" {
			fmt.Fprintf(w, "  hint: %s\n", res.Error.Suggestion)
		}
	}
	for _, line := range res.Logs {
		fmt.Fprintf(w, "  | %s\n", line)
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
