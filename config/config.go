// ABOUTME: Immutable application configuration built once from defaults, a YAML file, and MAMMOSCOPE_* env vars.
// ABOUTME: Resolves engine command templates so callers never read paths or program names from globals.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/mammoscope/invoke"
	"github.com/2389-research/mammoscope/logging"
)

// Pipeline names registered by default.
const (
	PredictPipeline = "predict"
	ComparePipeline = "compare"
)

// Configuration errors.
var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// UploadsConfig controls the artifact directory.
type UploadsConfig struct {
	Dir       string        `yaml:"dir"`
	Retention time.Duration `yaml:"retention"`
}

// EngineConfig locates the prediction engine and its models.
type EngineConfig struct {
	Python  string            `yaml:"python"`
	Workdir string            `yaml:"workdir"`
	Models  map[string]string `yaml:"models"`
}

// MockConfig gates the canned-result mode.
type MockConfig struct {
	Enabled bool          `yaml:"enabled"`
	Delay   time.Duration `yaml:"delay"`
}

// RunnerConfig tunes the process runner.
type RunnerConfig struct {
	MaxOutputBytes int64         `yaml:"max_output_bytes"`
	KillGrace      time.Duration `yaml:"kill_grace"`
}

// fileConfig is the YAML document shape.
type fileConfig struct {
	Server    ServerConfig               `yaml:"server"`
	Uploads   UploadsConfig              `yaml:"uploads"`
	Engine    EngineConfig               `yaml:"engine"`
	Pipelines map[string]invoke.Template `yaml:"pipelines"`
	Mock      MockConfig                 `yaml:"mock"`
	Debug     bool                       `yaml:"debug"`
	LogLevel  string                     `yaml:"log_level"`
	Runner    RunnerConfig               `yaml:"runner"`
}

// Config is a read-only snapshot. Pass it by value; accessors return copies of
// anything mutable.
type Config struct {
	Server   ServerConfig
	Uploads  UploadsConfig
	Mock     MockConfig
	Debug    bool
	LogLevel string
	Runner   RunnerConfig

	python    string
	workdir   string
	models    map[string]string
	pipelines map[string]invoke.Template
	source    string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: "127.0.0.1:8080", MaxUploadBytes: 50 << 20},
		Uploads:  UploadsConfig{Retention: 24 * time.Hour},
		Mock:     MockConfig{Enabled: true, Delay: time.Second},
		LogLevel: "info",
		Runner: RunnerConfig{
			MaxOutputBytes: invoke.DefaultMaxOutputBytes,
			KillGrace:      invoke.DefaultKillGrace,
		},
		python:  "python3",
		workdir: ".",
		models: map[string]string{
			"default": "models/model.json",
			"woa":     "models/model_woa.json",
			"ewoa":    "models/model_ewoa_finalfinal.json",
		},
		pipelines: map[string]invoke.Template{
			PredictPipeline: {
				Name:    PredictPipeline,
				Program: "{python}",
				Args:    []string{"-m", "woa_tool.cli", "predict", "--model", "{model}", "--image", "{image}"},
				Dir:     "{workdir}",
				Env:     map[string]string{"PYTHONPATH": "{workdir}"},
				Timeout: 2 * time.Minute,
			},
			ComparePipeline: {
				Name:    ComparePipeline,
				Program: "{python}",
				Args: []string{
					"{workdir}/woa_tool/compare_predict.py",
					"--image", "{image}",
					"--ewoa", "{ewoa_model}",
					"--woa", "{woa_model}",
				},
				Dir:     "{workdir}",
				Env:     map[string]string{"PYTHONPATH": "{workdir}"},
				Timeout: 3 * time.Minute,
			},
		},
	}
}

// Load builds a Config. path may be empty, in which case MAMMOSCOPE_CONFIG and
// then <config dir>/config.yaml are tried; a missing default file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("MAMMOSCOPE_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		if dir, err := DefaultConfigDir(); err == nil {
			path = filepath.Join(dir, "config.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := cfg.applyYAML(data); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg.source = path
		case explicit || !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse builds a Config from YAML bytes without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.applyYAML(data); err != nil {
		return Config{}, err
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyYAML(data []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	if f.Server.Addr != "" {
		c.Server.Addr = f.Server.Addr
	}
	if f.Server.MaxUploadBytes != 0 {
		c.Server.MaxUploadBytes = f.Server.MaxUploadBytes
	}
	if f.Uploads.Dir != "" {
		c.Uploads.Dir = f.Uploads.Dir
	}
	if f.Uploads.Retention != 0 {
		c.Uploads.Retention = f.Uploads.Retention
	}
	if f.Engine.Python != "" {
		c.python = f.Engine.Python
	}
	if f.Engine.Workdir != "" {
		c.workdir = f.Engine.Workdir
	}
	maps.Copy(c.models, f.Engine.Models)
	for name, tmpl := range f.Pipelines {
		tmpl.Name = name
		c.pipelines[name] = tmpl
	}
	if hasKey(data, "mock", "enabled") {
		c.Mock.Enabled = f.Mock.Enabled
	}
	if f.Mock.Delay != 0 {
		c.Mock.Delay = f.Mock.Delay
	}
	if f.Debug {
		c.Debug = true
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.Runner.MaxOutputBytes != 0 {
		c.Runner.MaxOutputBytes = f.Runner.MaxOutputBytes
	}
	if f.Runner.KillGrace != 0 {
		c.Runner.KillGrace = f.Runner.KillGrace
	}
	return nil
}

// hasKey reports whether a nested mapping key is explicitly present, so an
// explicit false can be told apart from an omitted field.
func hasKey(data []byte, section, key string) bool {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	sub, ok := raw[section].(map[string]any)
	if !ok {
		return false
	}
	_, ok = sub[key]
	return ok
}

func (c *Config) applyEnv() error {
	if v := nonEmptyEnv("MAMMOSCOPE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := nonEmptyEnv("MAMMOSCOPE_UPLOAD_DIR"); v != "" {
		c.Uploads.Dir = v
	}
	if v := nonEmptyEnv("MAMMOSCOPE_WORKDIR"); v != "" {
		c.workdir = v
	}
	if v := nonEmptyEnv("MAMMOSCOPE_PYTHON"); v != "" {
		c.python = v
	}
	if v := nonEmptyEnv("MAMMOSCOPE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := nonEmptyEnv("MAMMOSCOPE_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MAMMOSCOPE_DEBUG=%q is not a boolean", ErrInvalidConfig, v)
		}
		c.Debug = b
	}
	if v := nonEmptyEnv("MAMMOSCOPE_MOCK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MAMMOSCOPE_MOCK=%q is not a boolean", ErrInvalidConfig, v)
		}
		c.Mock.Enabled = b
	}
	return nil
}

// finalize fills derived defaults and validates every template.
func (c *Config) finalize() error {
	if c.Uploads.Dir == "" {
		dataDir, err := DefaultDataDir()
		if err != nil {
			return err
		}
		c.Uploads.Dir = filepath.Join(dataDir, "uploads")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: server.max_upload_bytes must be positive", ErrInvalidConfig)
	}
	if c.Uploads.Retention < 0 {
		return fmt.Errorf("%w: uploads.retention must not be negative", ErrInvalidConfig)
	}
	if c.Mock.Delay < 0 {
		return fmt.Errorf("%w: mock.delay must not be negative", ErrInvalidConfig)
	}
	if c.Runner.MaxOutputBytes <= 0 || c.Runner.KillGrace <= 0 {
		return fmt.Errorf("%w: runner limits must be positive", ErrInvalidConfig)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if abs, err := filepath.Abs(c.workdir); err == nil {
		c.workdir = abs
	}
	for _, name := range c.PipelineNames() {
		tmpl, err := c.Pipeline(name)
		if err != nil {
			return err
		}
		if err := tmpl.Validate(); err != nil {
			return fmt.Errorf("%w: pipeline %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// Python returns the engine interpreter path.
func (c Config) Python() string { return c.python }

// Workdir returns the absolute engine working directory.
func (c Config) Workdir() string { return c.workdir }

// Source returns the config file that was loaded, or "" for defaults only.
func (c Config) Source() string { return c.source }

// Model resolves a named model to an absolute path under the workdir.
func (c Config) Model(name string) (string, bool) {
	p, ok := c.models[name]
	if !ok {
		return "", false
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.workdir, p)
	}
	return p, true
}

// PipelineNames lists configured pipelines in sorted order.
func (c Config) PipelineNames() []string {
	return slices.Sorted(maps.Keys(c.pipelines))
}

// Pipeline returns a copy of the named template with engine variables bound:
// {python}, {workdir}, {model} (the default model) and {<name>_model} for every model.
// Variables set explicitly on the template take precedence.
func (c Config) Pipeline(name string) (invoke.Template, error) {
	tmpl, ok := c.pipelines[name]
	if !ok {
		return invoke.Template{}, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}
	tmpl = tmpl.Clone()

	vars := map[string]string{
		"python":  c.python,
		"workdir": c.workdir,
	}
	for model := range c.models {
		p, _ := c.Model(model)
		vars[strings.ToLower(model)+"_model"] = p
	}
	if p, ok := c.Model("default"); ok {
		vars["model"] = p
	}
	maps.Copy(vars, tmpl.Vars)
	tmpl.Vars = vars
	return tmpl, nil
}
