package model

import (
	"runtime"
	"time"
)

// Config is the complete astproof configuration.
// Precedence (highest first): CLI flags, ASTPROOF_* environment, config file, defaults.
type Config struct {
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer" mapstructure:"analyzer"`
	Verify      VerifyConfig      `yaml:"verify" mapstructure:"verify"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" mapstructure:"telemetry"`
}

// RulesConfig locates the rule document
type RulesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// KnownFields lists extra analyzer record keys that rules may reference,
	// as literal names or regular expressions. Used only by rule linting.
	KnownFields []string `yaml:"known_fields,omitempty" mapstructure:"known_fields"`
}

// AnalyzerConfig controls the external AST analyzer process
type AnalyzerConfig struct {
	Path       string        `yaml:"path" mapstructure:"path"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`       // per source unit
	Extensions []string      `yaml:"extensions" mapstructure:"extensions"` // source files to discover
	SpawnRate  float64       `yaml:"spawn_rate" mapstructure:"spawn_rate"` // analyzer launches per second, 0 = unlimited
}

// VerifyConfig is the decision policy handed to the verifier
type VerifyConfig struct {
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	Strict        bool    `yaml:"strict" mapstructure:"strict"`
	Duplicates    string  `yaml:"duplicates" mapstructure:"duplicates"` // keep-last, keep-first, keep-all
	PerFile       bool    `yaml:"per_file" mapstructure:"per_file"`     // scope candidates to their source unit
}

// ConcurrencyConfig bounds parallel work
type ConcurrencyConfig struct {
	Workers       int `yaml:"workers" mapstructure:"workers"`               // files processed in parallel
	VerifyWorkers int `yaml:"verify_workers" mapstructure:"verify_workers"` // candidates per file, 1 = sequential
}

// CacheConfig controls caching of analyzer output
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LLMConfig configures the optional candidate predictor
type LLMConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"` // openai, ollama
	Model             string        `yaml:"model" mapstructure:"model"`
	APIKey            string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens         int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxSourceBytes    int           `yaml:"max_source_bytes" mapstructure:"max_source_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Markdown bool   `yaml:"markdown" mapstructure:"markdown"`
	Verbose  bool   `yaml:"verbose" mapstructure:"verbose"`
	Color    bool   `yaml:"color" mapstructure:"color"`
}

// LoggingConfig selects the zap encoder and level
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// TelemetryConfig selects OpenTelemetry exporters. Both default to "none".
type TelemetryConfig struct {
	Metrics        string `yaml:"metrics" mapstructure:"metrics"`                 // none, stdout, prometheus
	Traces         string `yaml:"traces" mapstructure:"traces"`                   // none, stdout
	File           string `yaml:"file,omitempty" mapstructure:"file"`             // stdout exporter target, default stderr
	PrometheusAddr string `yaml:"prometheus_addr" mapstructure:"prometheus_addr"` // listen address for /metrics
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Rules: RulesConfig{
			Path: "rules/swift_exclusion_rules.yaml",
		},
		Analyzer: AnalyzerConfig{
			Path:       "SwiftASTAnalyzer/.build/release/SwiftASTAnalyzer",
			Timeout:    30 * time.Second,
			Extensions: []string{".swift"},
		},
		Verify: VerifyConfig{
			MinConfidence: 1.0,
			Strict:        true,
			Duplicates:    "keep-last",
		},
		Concurrency: ConcurrencyConfig{
			Workers:       runtime.NumCPU(),
			VerifyWorkers: 1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".astproof/cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:          "",
			Model:             "gpt-4o-mini",
			Timeout:           60 * time.Second,
			MaxTokens:         2000,
			MaxSourceBytes:    48_000,
			RequestsPerSecond: 1,
			Burst:             2,
		},
		Output: OutputConfig{
			Dir:   "data/results",
			Color: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Metrics:        "none",
			Traces:         "none",
			PrometheusAddr: "127.0.0.1:9464",
		},
	}
}
