// Package config loads the optional flow.hcl project file.
//
//	entry    = "docs/main.flow"
//	output   = "${env.OUT_DIR}/README.md"
//	mode     = "collect"
//
//	log {
//	  level  = "debug"
//	  format = "json"
//	}
//
//	graph {
//	  tier   = 0
//	  format = "mermaid"
//	  badges = { page = "layout" }
//	}
//
// Environment variables are visible to expressions as env.NAME.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// DefaultFile is looked up in the working directory when no file is named.
const DefaultFile = "flow.hcl"

type Config struct {
	Entry    string `hcl:"entry,optional"`
	Output   string `hcl:"output,optional"`
	Library  bool   `hcl:"library,optional"`
	Tolerant bool   `hcl:"tolerant,optional"`
	Mode     string `hcl:"mode,optional"`

	Log     *LogConfig     `hcl:"log,block"`
	Graph   *GraphConfig   `hcl:"graph,block"`
	Metrics *MetricsConfig `hcl:"metrics,block"`

	// Dir is the directory of the file the config came from; relative
	// paths in the config are taken relative to it.
	Dir string
}

type LogConfig struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

type GraphConfig struct {
	Tier   *int              `hcl:"tier,optional"`
	Format string            `hcl:"format,optional"`
	Output string            `hcl:"output,optional"`
	Badges map[string]string `hcl:"badges,optional"`
}

type MetricsConfig struct {
	File string `hcl:"file,optional"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.fill()
	return c
}

// fill sets defaults for everything left empty.
func (c *Config) fill() {
	if c.Mode == "" {
		c.Mode = "failfast"
	}
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Graph == nil {
		c.Graph = &GraphConfig{}
	}
	if c.Graph.Tier == nil {
		tier := 1
		c.Graph.Tier = &tier
	}
	if c.Graph.Format == "" {
		c.Graph.Format = "dot"
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Mode) {
	case "failfast", "fail-fast", "collect":
	default:
		errs = append(errs, fmt.Errorf("mode: %q is not one of failfast, collect", c.Mode))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: %q is not one of text, json", c.Log.Format))
	}
	switch c.Graph.Format {
	case "dot", "mermaid", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("graph.format: %q is not one of dot, mermaid, json, yaml", c.Graph.Format))
	}
	if t := *c.Graph.Tier; t != 0 && t != 1 {
		errs = append(errs, fmt.Errorf("graph.tier: %d is not 0 or 1", t))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// Path resolves p against the config's directory. Absolute and empty
// paths are returned unchanged.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// envObject exposes the environment as a cty object.
func envObject(env []string) cty.Value {
	vals := make(map[string]cty.Value, len(env))
	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vals[name] = cty.StringVal(value)
	}
	return cty.ObjectVal(vals)
}

// Parse decodes src. env is a list of NAME=value pairs made visible as env.NAME.
func Parse(src []byte, filename string, env []string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config %s: %s", filename, diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envObject(env)},
	}

	var c Config
	diags = gohcl.DecodeBody(file.Body, evalCtx, &c)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config %s: %s", filename, diags.Error())
	}
	c.Dir = filepath.Dir(filename)
	c.fill()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &c, nil
}

// Load reads path with the process environment. A missing file is not an
// error when path is the default name; the defaults are returned instead.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(src, path, os.Environ())
}
