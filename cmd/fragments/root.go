package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sakif/fragments/internal/config"
	"github.com/sakif/fragments/internal/executor"
)

type rootFlags struct {
	configPath string
	sandbox    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "fragments",
		Short:         "Run and inspect untrusted creative-code fragments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().StringVar(&flags.sandbox, "sandbox", "", "Sandbox level: strict, normal or permissive")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newWatchCmd(flags))
	cmd.AddCommand(newExecutorsCmd(flags))
	cmd.AddCommand(newServeCmd(flags))

	return cmd
}

// loadApp reads .env, then the config file, then applies the flags.
func loadApp(cmd *cobra.Command, flags *rootFlags) (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	path := flags.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if flags.sandbox != "" {
		if !executor.SandboxLevel(flags.sandbox).Valid() {
			return nil, nil, fmt.Errorf("unknown sandbox level %q", flags.sandbox)
		}
		cfg.Engine.SandboxLevel = flags.sandbox
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return cfg, logger, nil
}

// readFragment reads path, or stdin when path is "-".
func readFragment(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading fragment: %w", err)
	}
	return string(data), nil
}
