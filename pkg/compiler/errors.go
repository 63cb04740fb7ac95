package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tells which pipeline stage raised an Error.
type ErrorKind int

const (
	TokenizerError ErrorKind = iota
	ParserError
	ResolverError
	CompilerError
)

func (k ErrorKind) String() string {
	switch k {
	case TokenizerError:
		return "tokenizer"
	case ParserError:
		return "parser"
	case ResolverError:
		return "resolver"
	case CompilerError:
		return "compiler"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Reasons. Every *Error wraps exactly one of these so callers can branch with
// errors.Is without parsing messages.
var (
	ErrUnclosedString     = errors.New("unclosed string")
	ErrInvalidCharacter   = errors.New("invalid character")
	ErrMissingName        = errors.New("missing identifier or path")
	ErrUnexpectedToken    = errors.New("unexpected token")
	ErrDuplicateNode      = errors.New("duplicate node")
	ErrDuplicateSlot      = errors.New("duplicate slot")
	ErrUndefinedReference = errors.New("undefined reference")
	ErrUndefinedSlot      = errors.New("undefined slot")
	ErrCircularDependency = errors.New("circular dependency")
	ErrImportNotFound     = errors.New("import not found")
	ErrCircularImport     = errors.New("circular import")
	ErrUnknownSelector    = errors.New("unknown import selector")
	ErrInvalidAssignment  = errors.New("invalid assignment")
	ErrMissingEntry       = errors.New("missing entry node")
)

// Error is the single error type produced by the tokenizer, parser, resolver
// and compiler. Pos is always set for source-level problems; Path is the file
// the problem was found in when the stage knows it.
type Error struct {
	Kind   ErrorKind
	Reason error
	Msg    string
	Pos    Position
	Path   string

	// Related is the second location for duplicate definitions.
	Related *Position
	// Direction is set on undefined-reference errors.
	Direction Direction
	// Chain lists node ids (cycles) or file paths (circular imports).
	Chain []string
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteByte(':')
	}
	if e.Pos.Line > 0 {
		fmt.Fprintf(&sb, "%d:%d: ", e.Pos.Line, e.Pos.Column)
	} else if e.Path != "" {
		sb.WriteByte(' ')
	}
	fmt.Fprintf(&sb, "%s error: %s", e.Kind, e.Msg)
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Reason }

func newError(kind ErrorKind, reason error, pos Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	var list ErrorList
	if errors.As(err, &list) {
		for _, item := range list {
			if IsKind(item, kind) {
				return true
			}
		}
	}
	return false
}

// ErrorList is the result of a collect-mode run: every independently
// discoverable error, in discovery order.
type ErrorList []error

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors:\n  %s", len(l), strings.Join(msgs, "\n  "))
}

func (l ErrorList) Unwrap() []error { return l }

// Err returns nil for an empty list and the list itself otherwise.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
