package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"flowc/pkg/compiler"
)

// diagPrinter writes errors as path:line:col: kind: message.
type diagPrinter struct {
	w        io.Writer
	location lipgloss.Style
	kind     lipgloss.Style
	note     lipgloss.Style
}

func newDiagPrinter(w io.Writer) *diagPrinter {
	return &diagPrinter{
		w:        w,
		location: lipgloss.NewStyle().Bold(true),
		kind:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		note:     lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
	}
}

// displayPath shows path relative to the working directory when it is below it.
func displayPath(path string) string {
	if path == "" {
		return "<input>"
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func location(fe *compiler.Error) string {
	loc := displayPath(fe.Path)
	if fe.Pos.Line > 0 {
		loc += fmt.Sprintf(":%d:%d", fe.Pos.Line, fe.Pos.Column)
	}
	return loc
}

// diagParts splits err into the location, kind and message of its line.
// Errors that are not compiler errors have no location.
func diagParts(err error) (loc, kind, msg string) {
	var fe *compiler.Error
	if !errors.As(err, &fe) {
		return "", "error", err.Error()
	}
	return location(fe), fe.Kind.String(), fe.Msg
}

// Error prints err as loc: kind: message, one line per entry when it is an
// ErrorList.
func (p *diagPrinter) Error(err error) {
	var list compiler.ErrorList
	if errors.As(err, &list) {
		for _, e := range list {
			p.Error(e)
		}
		return
	}

	loc, kind, msg := diagParts(err)
	if loc == "" {
		fmt.Fprintln(p.w, p.kind.Render(kind+":"), msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.location.Render(loc+":"), p.kind.Render(kind+":"), msg)

	var fe *compiler.Error
	if !errors.As(err, &fe) {
		return
	}
	if fe.Related != nil {
		fmt.Fprintln(p.w, p.note.Render(fmt.Sprintf("  note: first defined at %s", fe.Related)))
	}
	if len(fe.Chain) > 0 && errors.Is(fe, compiler.ErrCircularImport) {
		for _, step := range fe.Chain {
			fmt.Fprintln(p.w, p.note.Render("  via "+displayPath(step)))
		}
	}
}

// Summary prints the closing line of a validate run.
func (p *diagPrinter) Summary(files, problems int) {
	if problems == 0 {
		fmt.Fprintln(p.w, p.note.Render(fmt.Sprintf("%d file(s) ok", files)))
		return
	}
	fmt.Fprintln(p.w, p.kind.Render(fmt.Sprintf("%d problem(s) in %d file(s)", problems, files)))
}
