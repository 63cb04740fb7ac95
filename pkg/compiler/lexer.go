package compiler

import (
	"strings"
	"unicode"
)

const bom = "\uFEFF"

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
	col  int // current 1-based column

	// atLineStart is true while only blanks have been seen on the current line.
	atLineStart bool
	// afterAssign is set after '=' so the next token may be a raw VALUE.
	afterAssign bool
}

func newLexer(src string) *Lexer {
	src = strings.TrimPrefix(src, bom)
	return &Lexer{src: []rune(src), line: 1, col: 1, atLineStart: true}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	return l.peekAt(0)
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	return l.peekAt(1)
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

// hasPrefix reports whether the unread input starts with s.
func (l *Lexer) hasPrefix(s string) bool {
	i := 0
	for _, r := range s {
		if l.peekAt(i) != r {
			return false
		}
		i++
	}
	return true
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src) }

func (l *Lexer) position() Position { return Position{Line: l.line, Column: l.col} }

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
		l.atLineStart = true
	} else {
		l.col++
		if r != ' ' && r != '\t' && r != '\r' {
			l.atLineStart = false
		}
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) errorf(reason error, pos Position, format string, args ...any) *Error {
	return newError(TokenizerError, reason, pos, format, args...)
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9') || r == '-'
}

// scanName collects a bare identifier: [A-Za-z_][A-Za-z0-9_-]*.
func (l *Lexer) scanName() string {
	if !isIdentStart(l.peek()) {
		return ""
	}
	start := l.pos
	for !l.atEnd() && isIdentPart(l.peek()) {
		l.advance()
	}
	return string(l.src[start:l.pos])
}

// scanRefPath collects a dotted reference target such as page.header.
// A dot is only consumed when an identifier follows it.
func (l *Lexer) scanRefPath() string {
	first := l.scanName()
	if first == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(first)
	for l.peek() == '.' && isIdentStart(l.peek2()) {
		l.advance()
		sb.WriteByte('.')
		sb.WriteString(l.scanName())
	}
	return sb.String()
}

// scanPath collects an import or file path: everything up to whitespace or '|'.
func (l *Lexer) scanPath() string {
	start := l.pos
	for !l.atEnd() {
		r := l.peek()
		if unicode.IsSpace(r) || r == '|' {
			break
		}
		l.advance()
	}
	return string(l.src[start:l.pos])
}

// scanParamKey collects a parameter key, dots included (style.title).
func (l *Lexer) scanParamKey() string {
	start := l.pos
	for !l.atEnd() {
		r := l.peek()
		if !isIdentPart(r) && r != '.' {
			break
		}
		l.advance()
	}
	return string(l.src[start:l.pos])
}

// scanComment consumes a line comment. The '#' is still at l.peek().
func (l *Lexer) scanComment() Token {
	pos := l.position()
	l.advance() // #
	start := l.pos
	for !l.atEnd() && l.peek() != '\n' {
		l.advance()
	}
	text := strings.TrimSpace(string(l.src[start:l.pos]))
	return Token{Type: COMMENT, Lexeme: text, Pos: pos}
}

// scanValue collects the raw text of a parameter value up to '|' or end of line.
func (l *Lexer) scanValue() Token {
	pos := l.position()
	start := l.pos
	for !l.atEnd() && l.peek() != '|' && l.peek() != '\n' {
		l.advance()
	}
	return Token{Type: VALUE, Lexeme: strings.TrimRight(string(l.src[start:l.pos]), " \t\r"), Pos: pos}
}

// valueFollows reports whether the text after '=' is a raw value rather than
// another token (reference, string block, node definition, separator).
func (l *Lexer) valueFollows() bool {
	if l.atEnd() {
		return false
	}
	switch l.peek() {
	case '\n', '$', '^', '@', '<', '|':
		return false
	case '+':
		return l.peek2() != '+'
	}
	return true
}

// scanString collects a string block. The opener is still at l.peek().
//
// Inside the block a closer immediately followed by `\|` is literal text as
// long as more input follows the escape; at end of input the closer wins and
// the dangling escape is dropped.
func (l *Lexer) scanString() (Token, error) {
	pos := l.position()
	trimLeading := l.hasPrefix("<<<")
	if trimLeading {
		l.advance()
	}
	l.advance() // <
	l.advance() // <

	var val strings.Builder
	for !l.atEnd() {
		if l.peek() != '>' || l.peek2() != '>' {
			val.WriteRune(l.advance())
			continue
		}

		closer := ">>"
		if l.peekAt(2) == '>' {
			closer = ">>>"
		}
		n := len(closer)
		escaped := l.peekAt(n) == '\\' && l.peekAt(n+1) == '|'
		if escaped && l.pos+n+2 < len(l.src) {
			for i := 0; i < n; i++ {
				l.advance()
			}
			l.advance() // \
			l.advance() // |
			val.WriteString(closer)
			continue
		}

		for i := 0; i < n; i++ {
			l.advance()
		}
		if escaped {
			l.advance()
			l.advance()
		}
		return Token{
			Type:         STRING,
			Lexeme:       val.String(),
			Pos:          pos,
			TrimLeading:  trimLeading,
			TrimTrailing: n == 3,
		}, nil
	}

	opener := "<<"
	if trimLeading {
		opener = "<<<"
	}
	return Token{}, l.errorf(ErrUnclosedString, pos, "unclosed string: %q opened at %s has no closing '>>' or '>>>'", opener, pos)
}

// directive scans the operand of a prefixed directive ('@', '$', '^', '+', '++').
// The prefix has already been consumed.
func (l *Lexer) directive(tt TokenType, prefix string, pos Position, scan func() string) (Token, error) {
	name := scan()
	if name == "" {
		what := "identifier"
		if tt == IMPORT || tt == FILEREF {
			what = "path"
		}
		found := "end of input"
		if !l.atEnd() {
			found = string(l.peek())
		}
		return Token{}, l.errorf(ErrMissingName, pos, "expected %s after %q, found %q", what, prefix, found)
	}
	return Token{Type: tt, Lexeme: name, Pos: pos}, nil
}

// nextToken skips whitespace and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	if l.afterAssign {
		l.afterAssign = false
		for l.peek() == ' ' || l.peek() == '\t' {
			l.advance()
		}
		if l.valueFollows() {
			return l.scanValue(), nil
		}
	}

	l.skipWhitespace()
	if l.atEnd() {
		return Token{Type: EOF, Pos: l.position()}, nil
	}

	ch := l.peek()
	pos := l.position()

	switch {
	case ch == '#' && l.atLineStart:
		return l.scanComment(), nil

	case ch == '+' && l.peek2() == '+':
		l.advance()
		l.advance()
		return l.directive(FILEREF, "++", pos, l.scanPath)

	case ch == '+' && l.atLineStart:
		l.advance()
		return l.directive(IMPORT, "+", pos, l.scanPath)

	case ch == '@':
		l.advance()
		return l.directive(DEFINE, "@", pos, l.scanName)

	case ch == '$':
		l.advance()
		return l.directive(BACKREF, "$", pos, l.scanRefPath)

	case ch == '^':
		l.advance()
		return l.directive(FORWARDREF, "^", pos, l.scanRefPath)

	case ch == '|':
		l.advance()
		if l.peek() == '.' {
			l.advance()
			return Token{Type: TERMINATOR, Lexeme: "|.", Pos: pos}, nil
		}
		return Token{Type: PIPE, Lexeme: "|", Pos: pos}, nil

	case ch == '=':
		l.advance()
		l.afterAssign = true
		return Token{Type: ASSIGN, Lexeme: "=", Pos: pos}, nil

	case ch == '<' && l.peek2() == '<':
		return l.scanString()

	case ch == '>':
		return Token{}, l.errorf(ErrInvalidCharacter, pos, "stray '>' at %s is not part of a string closer", pos)

	case isIdentStart(ch):
		return Token{Type: IDENTIFIER, Lexeme: l.scanParamKey(), Pos: pos}, nil
	}

	return Token{}, l.errorf(ErrInvalidCharacter, pos, "unexpected character %q at %s", ch, pos)
}

// Tokenize scans src and returns all tokens including the final EOF token.
// It stops at the first lexical error.
func Tokenize(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
