package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/pixelrts"
	"github.com/gogpu/pixelrts/trace"
	"github.com/gogpu/pixelrts/vm"
)

// Config is the optional YAML configuration file. Flags given on the
// command line override it.
type Config struct {
	Encode  EncodeConfig  `yaml:"encode"`
	VM      VMConfig      `yaml:"vm"`
	Logging LoggingConfig `yaml:"logging"`
}

// EncodeConfig holds defaults for encode and asm.
type EncodeConfig struct {
	Compress bool `yaml:"compress"`
	Order    int  `yaml:"order"` // 0 picks the smallest fitting order
	Workers  int  `yaml:"workers"`
}

// VMConfig holds engine settings for run.
type VMConfig struct {
	Backend          string `yaml:"backend"` // gpu, software
	Shader           string `yaml:"shader"`  // WGSL file replacing the embedded interpreter
	TraceCapacity    int    `yaml:"trace_capacity"`
	ReadbackTimeout  string `yaml:"readback_timeout"`
	TextureCacheSize int    `yaml:"texture_cache_size"`
}

// LoggingConfig selects the slog handler installed with pixelrts.SetLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; empty disables
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return &Config{
		VM: VMConfig{
			Backend:          vm.BackendGPU.String(),
			TraceCapacity:    trace.DefaultCapacity,
			ReadbackTimeout:  vm.DefaultReadbackTimeout.String(),
			TextureCacheSize: vm.DefaultTextureCacheSize,
		},
		Logging: LoggingConfig{Format: "text"},
	}
}

// LoadConfig reads path over the defaults. An empty path, or a missing file
// at the default location, yields the defaults.
func LoadConfig(path string, explicit bool) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// EngineOptions maps the vm section onto engine options.
func (c *Config) EngineOptions() ([]vm.Option, error) {
	backend, err := vm.ParseBackend(c.VM.Backend)
	if err != nil {
		return nil, err
	}
	opts := []vm.Option{vm.WithBackend(backend)}
	if c.VM.Shader != "" {
		opts = append(opts, vm.WithShaderFile(c.VM.Shader))
	}
	if c.VM.TraceCapacity != 0 {
		opts = append(opts, vm.WithTraceCapacity(c.VM.TraceCapacity))
	}
	if c.VM.ReadbackTimeout != "" {
		d, err := time.ParseDuration(c.VM.ReadbackTimeout)
		if err != nil {
			return nil, fmt.Errorf("vm.readback_timeout: %w", err)
		}
		opts = append(opts, vm.WithReadbackTimeout(d))
	}
	if c.VM.TextureCacheSize != 0 {
		opts = append(opts, vm.WithTextureCacheSize(c.VM.TextureCacheSize))
	}
	return opts, nil
}

// EncodeOptions maps the encode section onto encoder options.
func (c *Config) EncodeOptions() []pixelrts.EncodeOption {
	var opts []pixelrts.EncodeOption
	if c.Encode.Compress {
		opts = append(opts, pixelrts.WithCompression(pixelrts.CompressionZstd))
	}
	if c.Encode.Order != 0 {
		opts = append(opts, pixelrts.WithOrder(c.Encode.Order))
	}
	return opts
}

// Logger builds the logger for the logging section, or nil when logging is
// off.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	if c.Logging.Level == "" {
		return nil, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
}
