// Package config loads the server and engine configuration: defaults, then an
// optional YAML file, then environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/loader"
)

// EnvConfigPath names the variable holding the YAML file path.
const EnvConfigPath = "FRAGMENTS_CONFIG"

type Config struct {
	LogLevel string        `yaml:"logLevel" validate:"oneof=debug info warn error"`
	Server   ServerConfig  `yaml:"server"`
	Engine   EngineConfig  `yaml:"engine"`
	Loader   LoaderConfig  `yaml:"loader"`
	Storage  StorageConfig `yaml:"storage"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
	// MaxConcurrentRenders bounds the headless renders running at once.
	MaxConcurrentRenders int `yaml:"maxConcurrentRenders" validate:"min=1"`
}

type EngineConfig struct {
	SandboxLevel    string        `yaml:"sandboxLevel" validate:"sandbox_level"`
	CanvasTimeout   time.Duration `yaml:"canvasTimeout" validate:"gt=0"`
	ThreeTimeout    time.Duration `yaml:"threeTimeout" validate:"gt=0"`
	MarkupTimeout   time.Duration `yaml:"markupTimeout" validate:"gt=0"`
	ConfidenceFloor float64       `yaml:"confidenceFloor" validate:"gte=0,lte=1"`
	FrameInterval   time.Duration `yaml:"frameInterval" validate:"gt=0"`

	ThumbnailWidth  int           `yaml:"thumbnailWidth" validate:"min=16,max=2048"`
	ThumbnailHeight int           `yaml:"thumbnailHeight" validate:"min=16,max=2048"`
	ThumbnailSettle time.Duration `yaml:"thumbnailSettle" validate:"gte=0"`
}

type LoaderConfig struct {
	Sources         []string      `yaml:"sources" validate:"min=1,dive,url"`
	PrimaryTimeout  time.Duration `yaml:"primaryTimeout" validate:"gt=0"`
	FallbackTimeout time.Duration `yaml:"fallbackTimeout" validate:"gt=0"`
	Settle          time.Duration `yaml:"settle" validate:"gte=0"`
	Backoff         time.Duration `yaml:"backoff" validate:"gte=0"`
	MaxBytes        int64         `yaml:"maxBytes" validate:"gt=0"`
}

type StorageConfig struct {
	DBPath       string `yaml:"dbPath" validate:"required"`
	ThumbnailDir string `yaml:"thumbnailDir" validate:"required"`
	// ThumbnailURL is the public prefix thumbnails are served under.
	ThumbnailURL string `yaml:"thumbnailURL" validate:"required,startswith=/"`
}

// Default returns the built-in configuration.
func Default() *Config {
	lc := loader.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:                 8080,
			ShutdownTimeout:      10 * time.Second,
			MaxConcurrentRenders: 4,
		},
		Engine: EngineConfig{
			SandboxLevel:    string(executor.SandboxNormal),
			CanvasTimeout:   5 * time.Second,
			ThreeTimeout:    12 * time.Second,
			MarkupTimeout:   5 * time.Second,
			ConfidenceFloor: 0.7,
			FrameInterval:   16 * time.Millisecond,
			ThumbnailWidth:  400,
			ThumbnailHeight: 300,
			ThumbnailSettle: 500 * time.Millisecond,
		},
		Loader: LoaderConfig{
			Sources:         append([]string(nil), lc.Sources...),
			PrimaryTimeout:  lc.PrimaryTimeout,
			FallbackTimeout: lc.FallbackTimeout,
			Settle:          lc.Settle,
			Backoff:         lc.Backoff,
			MaxBytes:        lc.MaxBytes,
		},
		Storage: StorageConfig{
			DBPath:       "data/fragments.db",
			ThumbnailDir: "data/thumbnails",
			ThumbnailURL: "/thumbnails/",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only the
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return apperror.ValidationFailed("PORT", fmt.Sprintf("invalid PORT value %q", v))
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DB_PATH"); ok && v != "" {
		c.Storage.DBPath = v
	}
	if v, ok := lookup("THUMBNAIL_DIR"); ok && v != "" {
		c.Storage.ThumbnailDir = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup("SANDBOX_LEVEL"); ok && v != "" {
		c.Engine.SandboxLevel = strings.ToLower(v)
	}
	return nil
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("sandbox_level", func(fl validator.FieldLevel) bool {
			return executor.SandboxLevel(fl.Field().String()).Valid()
		})
		validateInst = v
	})
	return validateInst
}

// Validator returns the shared validator, with the custom tags registered.
func Validator() *validator.Validate {
	return validatorInstance()
}

// Validate checks the configuration. The first failing field is reported as
// an apperror validation failure.
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.ValidationFailed(fe.Namespace(),
			fmt.Sprintf("config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: %w", err)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Options returns the default options bag for attempts the server starts.
func (c *Config) Options() executor.Options {
	opts := executor.DefaultOptions()
	opts.SandboxLevel = executor.SandboxLevel(c.Engine.SandboxLevel)
	return opts
}

// ToLoader converts the loader section, keeping the library checks of
// loader.DefaultConfig.
func (c *Config) ToLoader() loader.Config {
	lc := loader.DefaultConfig()
	lc.Sources = append([]string(nil), c.Loader.Sources...)
	lc.PrimaryTimeout = c.Loader.PrimaryTimeout
	lc.FallbackTimeout = c.Loader.FallbackTimeout
	lc.Settle = c.Loader.Settle
	lc.Backoff = c.Loader.Backoff
	lc.MaxBytes = c.Loader.MaxBytes
	return lc
}
