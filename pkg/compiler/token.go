package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Line-leading forms
	COMMENT // #comment
	IMPORT  // +path

	// Directives
	DEFINE     // @name
	BACKREF    // $name[.slot]
	FORWARDREF // ^name[.slot]
	FILEREF    // ++path
	IDENTIFIER // parameter key, e.g. style.title
	VALUE      // raw parameter value after '='
	STRING     // <<< ... >>> (any opener/closer combination)
	PIPE       // |
	TERMINATOR // |.
	ASSIGN     // =
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:        "EOF",
	COMMENT:    "COMMENT",
	IMPORT:     "IMPORT",
	DEFINE:     "DEFINE",
	BACKREF:    "BACKREF",
	FORWARDREF: "FORWARDREF",
	FILEREF:    "FILEREF",
	IDENTIFIER: "IDENTIFIER",
	VALUE:      "VALUE",
	STRING:     "STRING",
	PIPE:       "PIPE",
	TERMINATOR: "TERMINATOR",
	ASSIGN:     "ASSIGN",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Position is a 1-based line/column pair pointing at the first character of a
// construct in the source.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a single lexical unit produced by the Lexer.
//
// For STRING tokens Lexeme holds the raw block body (delimiters stripped,
// escapes decoded). TrimLeading records whether the opener was "<<<" and
// TrimTrailing whether the closer was ">>>".
type Token struct {
	Type         TokenType
	Lexeme       string
	Pos          Position
	TrimLeading  bool
	TrimTrailing bool
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-24q  %s", t.Type, t.Lexeme, t.Pos)
}
