package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-template-script/internal/log"
)

// Config holds all configuration for go-template-script
type Config struct {
	// ModuleNamespace is the root identifier of capability module calls
	ModuleNamespace string `yaml:"module_namespace" env:"GTS_MODULE_NAMESPACE"`

	// Execution ceilings
	MaxLoopIterations int `yaml:"max_loop_iterations" env:"GTS_MAX_LOOP_ITERATIONS"`
	MaxCallDepth      int `yaml:"max_call_depth" env:"GTS_MAX_CALL_DEPTH"`

	// Compiled-expression cache
	ExpressionCache bool   `yaml:"expression_cache" env:"GTS_EXPRESSION_CACHE"`
	CacheSize       int    `yaml:"cache_size" env:"GTS_CACHE_SIZE"`
	CacheFile       string `yaml:"cache_file" env:"GTS_CACHE_FILE"`

	// TraceSnapshots records the variable store on every statement step
	TraceSnapshots bool `yaml:"trace_snapshots" env:"GTS_TRACE_SNAPSHOTS"`

	// WriteHazards makes the dependency analyzer also split on
	// write-after-read and write-after-write
	WriteHazards bool `yaml:"write_hazards" env:"GTS_WRITE_HAZARDS"`

	// TemplateExtensions are the file extensions treated as templates when
	// scanning a directory
	TemplateExtensions []string `yaml:"template_extensions" env:"GTS_TEMPLATE_EXTENSIONS"`

	// Logging
	LogLevel string `yaml:"log_level" env:"GTS_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"GTS_LOG_JSON"`
	Verbose  bool   `yaml:"verbose" env:"GTS_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ModuleNamespace:    "tp",
		MaxLoopIterations:  10000,
		MaxCallDepth:       200,
		ExpressionCache:    true,
		CacheSize:          1024,
		CacheFile:          "",
		TraceSnapshots:     false,
		WriteHazards:       false,
		TemplateExtensions: []string{".md", ".gts"},
		LogLevel:           "info",
		LogJSON:            false,
		Verbose:            false,
	}
}

// globalConfigFilePath returns the global config file path (~/.gts/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gts/config.yaml"
	}
	return filepath.Join(home, ".gts", "config.yaml")
}

// projectConfigFilePath returns the project-level config file path (./.gts/config.yaml)
func projectConfigFilePath() string {
	return ".gts/config.yaml"
}

// ProjectConfigPath returns the project-level config file path under dir.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, projectConfigFilePath())
}

// GlobalConfigPath returns the global config file path.
func GlobalConfigPath() string {
	return globalConfigFilePath()
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Project-level config (./.gts/config.yaml)
// 2. Environment variables
// 3. Global config (~/.gts/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	return load(projectConfigFilePath(), globalConfigFilePath())
}

func load(projectPath, globalPath string) (*Config, error) {
	cfg := DefaultConfig()

	// 1. Global config
	if data, err := os.ReadFile(globalPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", globalPath, err)
		}
	}

	// 2. Environment variables override global
	applyEnvOverrides(cfg)

	// 3. Project-level config overrides both
	if data, err := os.ReadFile(projectPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", projectPath, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GTS_MODULE_NAMESPACE"); v != "" {
		cfg.ModuleNamespace = v
	}
	if v := os.Getenv("GTS_MAX_LOOP_ITERATIONS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxLoopIterations = i
		}
	}
	if v := os.Getenv("GTS_MAX_CALL_DEPTH"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxCallDepth = i
		}
	}
	if v := os.Getenv("GTS_EXPRESSION_CACHE"); v != "" {
		cfg.ExpressionCache = parseBool(v)
	}
	if v := os.Getenv("GTS_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("GTS_CACHE_FILE"); v != "" {
		cfg.CacheFile = v
	}
	if v := os.Getenv("GTS_TRACE_SNAPSHOTS"); v != "" {
		cfg.TraceSnapshots = parseBool(v)
	}
	if v := os.Getenv("GTS_WRITE_HAZARDS"); v != "" {
		cfg.WriteHazards = parseBool(v)
	}
	if v := os.Getenv("GTS_TEMPLATE_EXTENSIONS"); v != "" {
		var exts []string
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
		cfg.TemplateExtensions = exts
	}
	if v := os.Getenv("GTS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GTS_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("GTS_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.ModuleNamespace == "" {
		return fmt.Errorf("module_namespace must not be empty")
	}
	if c.MaxLoopIterations <= 0 {
		return fmt.Errorf("max_loop_iterations must be positive")
	}
	if c.MaxCallDepth <= 0 {
		return fmt.Errorf("max_call_depth must be positive")
	}
	if c.ExpressionCache && c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive when expression_cache is enabled")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	for _, ext := range c.TemplateExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("template extension %q must start with a dot", ext)
		}
	}
	return nil
}

// Level returns the configured log level, with Verbose forcing debug.
func (c *Config) Level() log.Level {
	if c.Verbose {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// parseBool accepts true/1/yes as true
func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
