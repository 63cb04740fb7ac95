package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"flowc/pkg/compiler"
	"flowc/pkg/ctxlog"
	"flowc/pkg/graph"
	"flowc/pkg/vfs"
)

// writeOutput writes data to path, or to stdout when path is empty.
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (a *app) compileCmd() *cobra.Command {
	var output string
	var library, tolerant bool

	cmd := &cobra.Command{
		Use:   "compile [FILE]",
		Short: "Render the @out node of a Flow file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.inputs(args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("library") {
				a.cfg.Library = library
			}
			if cmd.Flags().Changed("tolerant") {
				a.cfg.Tolerant = tolerant
			}
			if !cmd.Flags().Changed("output") {
				output = a.cfg.Path(a.cfg.Output)
			}

			logger := ctxlog.FromContext(cmd.Context())
			logger.Debug("compiling", "file", files[0], "library", a.cfg.Library, "tolerant", a.cfg.Tolerant)

			out, err := a.controller(cmd.Context()).CompileFile(files[0])
			if err != nil {
				return err
			}
			if output == "" && !strings.HasSuffix(out, "\n") {
				out += "\n"
			}
			return a.writeOutput(output, []byte(out))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result to this file instead of stdout")
	cmd.Flags().BoolVar(&library, "library", false, "compile files without @out to empty output")
	cmd.Flags().BoolVar(&tolerant, "tolerant", false, "render despite resolve errors, with placeholders")
	return cmd
}

// expandDirs replaces each directory argument with the Flow files below it.
// Those files are preloaded into disk, so imports between them are served
// from memory.
func expandDirs(disk *vfs.VirtualDisk, args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			out = append(out, arg)
			continue
		}
		root, _, err := vfs.PathInfo(arg)
		if err != nil {
			return nil, err
		}
		if err := disk.LoadFrom(root); err != nil {
			return nil, fmt.Errorf("load %s: %w", arg, err)
		}
		for _, p := range disk.List() {
			if strings.HasPrefix(p, root+string(filepath.Separator)) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE|DIR...]",
		Short: "Report every error in the given files",
		Long:  "Report every error in the given files. A directory stands for every " + vfs.SourceExt + " file below it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.inputs(args)
			if err != nil {
				return err
			}
			disk := &vfs.VirtualDisk{Files: make(map[string]*vfs.FileEntry), Lower: vfs.OSDisk{}}
			if files, err = expandDirs(disk, files); err != nil {
				return err
			}

			logger := ctxlog.FromContext(cmd.Context())
			ctl := a.controller(cmd.Context())
			ctl.FS = disk
			problems := 0
			for _, f := range files {
				if mod, err := disk.Modified(f); err == nil {
					logger.Debug("validating preloaded file", "file", f, "modified", mod)
				}
				errs := ctl.Validate(f)
				for _, e := range errs {
					a.diag.Error(e)
				}
				problems += len(errs)
			}
			a.diag.Summary(len(files), problems)
			if problems > 0 {
				return errProblems
			}
			return nil
		},
	}
}

func (a *app) graphCmd() *cobra.Command {
	var format, output string
	var tier int
	var badges map[string]string

	cmd := &cobra.Command{
		Use:   "graph [FILE...]",
		Short: "Export the dependency graph",
		Long: "Export the dependency graph of one or more files as dot, mermaid, json or yaml.\n" +
			"Tier 0 folds slots into their owner; tier 1 shows every slot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.inputs(args)
			if err != nil {
				return err
			}
			gc := a.cfg.Graph
			if cmd.Flags().Changed("format") {
				gc.Format = format
			}
			if cmd.Flags().Changed("tier") {
				gc.Tier = &tier
			}
			if cmd.Flags().Changed("output") {
				gc.Output = output
			}
			if gc.Badges == nil {
				gc.Badges = map[string]string{}
			}
			for id, text := range badges {
				gc.Badges[id] = text
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			g, err := a.controller(cmd.Context()).Graph(files...)
			if err != nil {
				return err
			}
			data, err := g.Export(gc.Format, graph.Options{
				Tier:    *gc.Tier,
				Badges:  gc.Badges,
				Primary: absOrSelf(files[0]),
			})
			if err != nil {
				return err
			}
			return a.writeOutput(a.cfg.Path(gc.Output), data)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "dot, mermaid, json or yaml")
	cmd.Flags().IntVar(&tier, "tier", 1, "0 folds slots into their owner, 1 shows everything")
	cmd.Flags().StringToStringVar(&badges, "badge", nil, "badge for a collapsed node, id=text (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the graph to this file instead of stdout")
	return cmd
}

func (a *app) tokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens FILE",
		Short: "Dump the tokens, nodes and symbols of a Flow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := vfs.OSDisk{}.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			w := a.stdout

			tokens, err := compiler.Tokenize(string(data))
			fmt.Fprintf(w, "Tokens (%d)\n", len(tokens))
			for _, tok := range tokens {
				fmt.Fprintln(w, " ", tok)
			}
			fmt.Fprintln(w)
			if err != nil {
				return err
			}

			logger := ctxlog.FromContext(cmd.Context())
			ff, err := compiler.NewParser(tokens, logger).Parse()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "Nodes")
			for _, imp := range ff.Imports {
				fmt.Fprintln(w, " ", imp)
			}
			for _, id := range ff.Order {
				fmt.Fprintln(w, " ", ff.Nodes[id])
			}
			for _, as := range ff.Assignments {
				fmt.Fprintln(w, " ", as)
			}
			fmt.Fprintln(w)

			r := compiler.NewResolver(nil, logger)
			rf, errs := r.Validate(ff, "", path)
			fmt.Fprintln(w, "Symbols")
			for _, line := range r.Symbols().Dump() {
				fmt.Fprintln(w, " ", line)
			}
			if rf != nil {
				fmt.Fprintln(w, "Order:", strings.Join(rf.Order, " "))
				fmt.Fprintln(w, "Reachable:", strings.Join(compiler.Closure(rf), " "))
			}
			for _, e := range errs {
				a.diag.Error(e)
			}
			if len(errs) > 0 {
				return errProblems
			}
			return nil
		},
	}
}

func absOrSelf(path string) string {
	full, _, err := vfs.PathInfo(path)
	if err != nil {
		return path
	}
	return full
}
