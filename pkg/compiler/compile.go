package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flowc/pkg/graph"
	"flowc/pkg/metrics"
	"flowc/pkg/vfs"
)

// Controller chains the four stages for whole-file calls. The zero value
// reads from disk, resolves fail-fast, requires an entry node and logs to
// slog.Default().
type Controller struct {
	FS     vfs.FS
	Logger *slog.Logger
	Mode   Mode

	// Library compiles a file without @out to "" instead of failing.
	Library bool
	// Tolerant resolves in Collect mode, logs every error and renders what
	// could be resolved.
	Tolerant bool

	Metrics  metrics.Recorder
	Handlers []StyleHandler
}

func (c *Controller) init() {
	if c.FS == nil {
		c.FS = vfs.OSDisk{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop{}
	}
}

// timed runs one stage, recording its duration and any error kind.
func (c *Controller) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.Metrics.ObserveStage(stage, time.Since(start))
	if err != nil {
		c.countErrors(stage, err)
	}
	return err
}

func (c *Controller) countErrors(stage string, err error) {
	var list ErrorList
	if errors.As(err, &list) {
		for _, e := range list {
			c.countErrors(stage, e)
		}
		return
	}
	kind := "other"
	var fe *Error
	if errors.As(err, &fe) {
		kind = fe.Kind.String()
	}
	c.Metrics.CountError(stage, kind)
}

func withPath(err error, path string) error {
	var fe *Error
	if path != "" && errors.As(err, &fe) && fe.Path == "" {
		fe.Path = path
	}
	return err
}

// Parse tokenizes and parses src. path is only used in error messages.
func (c *Controller) Parse(src, path string) (*FlowFile, error) {
	c.init()
	var tokens []Token
	err := c.timed("tokenize", func() error {
		var err error
		tokens, err = Tokenize(src)
		return err
	})
	if err != nil {
		return nil, withPath(err, path)
	}

	var ff *FlowFile
	err = c.timed("parse", func() error {
		var err error
		ff, err = NewParser(tokens, c.Logger).Parse()
		return err
	})
	if err != nil {
		return nil, withPath(err, path)
	}
	return ff, nil
}

func (c *Controller) resolver() *Resolver {
	mode := c.Mode
	if c.Tolerant {
		mode = Collect
	}
	return &Resolver{Mode: mode, FS: c.FS, Logger: c.Logger}
}

// Resolve parses and resolves src. In tolerant mode resolver errors are
// logged and the best-effort result is returned without an error.
func (c *Controller) Resolve(src, path string) (*ResolvedFlowFile, *Resolver, error) {
	ff, err := c.Parse(src, path)
	if err != nil {
		return nil, nil, err
	}

	r := c.resolver()
	var rf *ResolvedFlowFile
	err = c.timed("resolve", func() error {
		var err error
		rf, err = r.Resolve(ff, "", path)
		return err
	})
	if err != nil && c.Tolerant && rf != nil {
		for _, e := range r.Errors() {
			c.Logger.Warn("resolve error ignored", "error", e.Error())
		}
		err = nil
	}
	if err != nil {
		return nil, r, withPath(err, path)
	}
	return rf, r, nil
}

// CompileSource runs the whole pipeline over src. path locates imports and
// labels errors; it may be empty for imports relative to the working
// directory.
func (c *Controller) CompileSource(src, path string) (string, error) {
	c.init()
	out, err := c.compile(src, path)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Metrics.CountCompile(outcome)
	return out, err
}

func (c *Controller) compile(src, path string) (string, error) {
	rf, _, err := c.Resolve(src, path)
	if err != nil {
		return "", err
	}

	if !c.Library {
		if unused := Unused(rf); len(unused) > 0 {
			c.Logger.Debug("nodes not reachable from @out", "nodes", unused, "file", path)
		}
	}

	comp := &Compiler{Logger: c.Logger, Handlers: c.Handlers}
	var out string
	err = c.timed("compile", func() error {
		var err error
		out, err = comp.Compile(rf, !c.Library)
		return err
	})
	if err != nil {
		return "", withPath(err, path)
	}
	return out, nil
}

func (c *Controller) read(path string) (string, error) {
	c.init()
	src, err := c.FS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(src), nil
}

// CompileFile reads path through the controller's file system and compiles it.
func (c *Controller) CompileFile(path string) (string, error) {
	src, err := c.read(path)
	if err != nil {
		c.Metrics.CountCompile("error")
		return "", err
	}
	return c.CompileSource(src, path)
}

// ValidateSource reports every error in src without rendering. Tokenizer
// and parser errors stop the run, so at most one of those is returned.
func (c *Controller) ValidateSource(src, path string) []error {
	ff, err := c.Parse(src, path)
	if err != nil {
		return []error{err}
	}
	r := &Resolver{FS: c.FS, Logger: c.Logger}
	var errs []error
	_ = c.timed("resolve", func() error {
		_, errs = r.Validate(ff, "", path)
		return ErrorList(errs).Err()
	})
	for _, e := range errs {
		withPath(e, path)
	}
	return errs
}

// Validate reads path and reports every error found in it and its imports.
func (c *Controller) Validate(path string) []error {
	src, err := c.read(path)
	if err != nil {
		return []error{err}
	}
	return c.ValidateSource(src, path)
}

// Graph resolves each file and returns the union of their dependency graphs.
func (c *Controller) Graph(paths ...string) (*graph.Graph, error) {
	var graphs []*graph.Graph
	for _, path := range paths {
		src, err := c.read(path)
		if err != nil {
			return nil, err
		}
		_, r, err := c.Resolve(src, path)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, r.Graph())
	}
	return graph.Merge(graphs...), nil
}

// CompileSource compiles src with a default Controller.
func CompileSource(src, path string) (string, error) {
	var c Controller
	return c.CompileSource(src, path)
}

// CompileFile compiles the file at path with a default Controller.
func CompileFile(path string) (string, error) {
	var c Controller
	return c.CompileFile(path)
}
