// Package config holds the runtime configuration of the demo command.
// The file format is a deliberately small YAML subset: flat key: value
// pairs with # comments.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Mode       string  `yaml:"mode"`
	Iterations int     `yaml:"iterations"`
	BatchSize  int     `yaml:"batch_size"`
	Offline    bool    `yaml:"offline"`
	Prefetch   int     `yaml:"prefetch"`
	Seed       int64   `yaml:"seed"`
	LogEvery   int     `yaml:"log_every"`
	ClipValue  float64 `yaml:"clip_value"`
	ClipMethod string  `yaml:"clip_method"`
	Smoothing  int     `yaml:"smoothing"`
	OutDir     string  `yaml:"out_dir"`
	RunLog     string  `yaml:"run_log"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Mode       string
	Iterations int
	BatchSize  int
	Seed       int64
	LogEvery   int
	OutDir     string
	RunLog     string
}

// Default returns a runnable configuration.
func Default() *Config {
	return &Config{
		Mode:       "flow",
		Iterations: 500,
		BatchSize:  64,
		Prefetch:   4,
		Seed:       42,
		LogEvery:   50,
		ClipValue:  5.0,
		ClipMethod: "global_norm",
		Smoothing:  100,
		OutDir:     "out",
	}
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	if o.Iterations > 0 {
		c.Iterations = o.Iterations
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.OutDir != "" {
		c.OutDir = o.OutDir
	}
	if o.RunLog != "" {
		c.RunLog = o.RunLog
	}
}

// Validate verifies the config is runnable, filling derivable defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Mode {
	case "":
		c.Mode = "flow"
	case "flow", "model_comparison":
	default:
		return fmt.Errorf("mode must be flow or model_comparison (got %q)", c.Mode)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be > 0 (got %d)", c.Iterations)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 4
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	switch c.ClipMethod {
	case "":
		c.ClipMethod = "global_norm"
	case "global_norm", "value":
	default:
		return fmt.Errorf("clip_method must be global_norm or value (got %q)", c.ClipMethod)
	}
	if c.Smoothing <= 0 {
		c.Smoothing = 100
	}
	if c.OutDir == "" {
		c.OutDir = "out"
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: missing ':'", lineNo)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, "\"'")
		var err error
		switch key {
		case "mode":
			cfg.Mode = value
		case "iterations":
			cfg.Iterations, err = strconv.Atoi(value)
		case "batch_size":
			cfg.BatchSize, err = strconv.Atoi(value)
		case "offline":
			cfg.Offline, err = strconv.ParseBool(value)
		case "prefetch":
			cfg.Prefetch, err = strconv.Atoi(value)
		case "seed":
			cfg.Seed, err = strconv.ParseInt(value, 10, 64)
		case "log_every":
			cfg.LogEvery, err = strconv.Atoi(value)
		case "clip_value":
			cfg.ClipValue, err = strconv.ParseFloat(value, 64)
		case "clip_method":
			cfg.ClipMethod = value
		case "smoothing":
			cfg.Smoothing, err = strconv.Atoi(value)
		case "out_dir":
			cfg.OutDir = value
		case "run_log":
			cfg.RunLog = value
		default:
			return nil, fmt.Errorf("line %d: unknown key %s", lineNo, key)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}
