package compiler

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds a FlowFile.
//
// Grammar:
//
//	document   = ( import | definition | assignment )* EOF
//	import     = IMPORT ( BACKREF | rename )*
//	rename     = DEFINE TERMINATOR ASSIGN ( BACKREF | FORWARDREF )
//	definition = DEFINE ( PIPE section? )* TERMINATOR
//	section    = param | definition | STRING | BACKREF | FORWARDREF | FILEREF
//	param      = IDENTIFIER ASSIGN ( VALUE | STRING )
//	assignment = BACKREF ASSIGN ( BACKREF | FORWARDREF )
//
// Comments are dropped before parsing. Nested definitions are tracked on an
// explicit stack, so nesting depth is bounded only by memory.
type Parser struct {
	tokens []Token
	pos    int
	logger *slog.Logger

	file      *FlowFile
	anonCount int
}

// NewParser returns a parser over tokens. A nil logger means slog.Default().
func NewParser(tokens []Token, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	filtered := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Type != COMMENT {
			filtered = append(filtered, tok)
		}
	}
	return &Parser{tokens: filtered, logger: logger}
}

func (p *Parser) errorf(reason error, pos Position, format string, args ...any) *Error {
	return newError(ParserError, reason, pos, format, args...)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		if len(p.tokens) > 0 {
			return Token{Type: EOF, Pos: p.tokens[len(p.tokens)-1].Pos}
		}
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func describe(tok Token) string {
	if tok.Type == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%s (%q)", tok.Type, tok.Lexeme)
}

// expect consumes the current token if it matches one of tts, otherwise returns an error.
func (p *Parser) expect(tts ...TokenType) (Token, error) {
	tok := p.advance()
	for _, tt := range tts {
		if tok.Type == tt {
			return tok, nil
		}
	}
	want := make([]string, len(tts))
	for i, tt := range tts {
		want[i] = tt.String()
	}
	return tok, p.errorf(ErrUnexpectedToken, tok.Pos, "expected %s, got %s", strings.Join(want, " or "), describe(tok))
}

// Parse builds the FlowFile for the whole token stream.
func (p *Parser) Parse() (*FlowFile, error) {
	p.file = &FlowFile{Nodes: make(map[string]*FlowNode)}
	p.anonCount = 0

	for p.peek().Type != EOF {
		tok := p.peek()
		switch tok.Type {
		case IMPORT:
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			p.file.Imports = append(p.file.Imports, imp)

		case DEFINE:
			node, err := p.parseDefinition()
			if err != nil {
				return nil, err
			}
			if first, dup := p.file.Nodes[node.ID]; dup {
				related := first.Pos
				e := p.errorf(ErrDuplicateNode, node.Pos, "duplicate node @%s at %s (first defined at %s)", node.ID, node.Pos, first.Pos)
				e.Related = &related
				return nil, e
			}
			p.file.Nodes[node.ID] = node
			p.file.Order = append(p.file.Order, node.ID)
			if node.ID == "out" {
				p.file.Out = node
			}

		case BACKREF:
			a, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			p.file.Assignments = append(p.file.Assignments, a)

		default:
			p.advance()
			return nil, p.errorf(ErrUnexpectedToken, tok.Pos, "unexpected token %s at top level", describe(tok))
		}
	}
	return p.file, nil
}

// parseImport parses +path and the selector/rename items that follow it.
func (p *Parser) parseImport() (*ImportNode, error) {
	tok := p.advance()
	imp := &ImportNode{Path: tok.Lexeme, Pos: tok.Pos}
	for {
		switch {
		case p.peek().Type == BACKREF && p.peekAt(1).Type != ASSIGN:
			sel := p.advance()
			if strings.Contains(sel.Lexeme, ".") {
				return nil, p.errorf(ErrUnexpectedToken, sel.Pos, "import selector $%s must name a node, not a slot", sel.Lexeme)
			}
			imp.Selectors = append(imp.Selectors, sel.Lexeme)

		case p.peek().Type == DEFINE && p.peekAt(1).Type == TERMINATOR && p.peekAt(2).Type == ASSIGN:
			alias := p.advance()
			p.advance() // |.
			p.advance() // =
			orig, err := p.expect(BACKREF, FORWARDREF)
			if err != nil {
				return nil, err
			}
			if imp.Renames == nil {
				imp.Renames = make(map[string]string)
			}
			imp.Renames[orig.Lexeme] = alias.Lexeme

		default:
			return imp, nil
		}
	}
}

// parseAssignment parses $parent.slot = $child.
func (p *Parser) parseAssignment() (*Assignment, error) {
	target := p.advance()
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	source, err := p.expect(BACKREF, FORWARDREF)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(target.Lexeme, ".") {
		return nil, p.errorf(ErrUnexpectedToken, target.Pos, "assignment target $%s must name a slot ($node.slot)", target.Lexeme)
	}
	if strings.Contains(source.Lexeme, ".") {
		return nil, p.errorf(ErrUnexpectedToken, source.Pos, "assignment source $%s must name a node", source.Lexeme)
	}
	return &Assignment{Target: target.Lexeme, Source: source.Lexeme, Pos: target.Pos}, nil
}

// startNode creates the node for a DEFINE token, generating an id for @_.
func (p *Parser) startNode(tok Token, layer int) *FlowNode {
	id := tok.Lexeme
	anonymous := id == "_"
	if anonymous {
		p.anonCount++
		id = fmt.Sprintf("_anon_%d_%d_%d", tok.Pos.Line, tok.Pos.Column, p.anonCount)
	}
	n := newFlowNode(id, layer, tok.Pos)
	n.Anonymous = anonymous
	return n
}

// parseDefinition parses a top-level @name ... |. including nested slots.
func (p *Parser) parseDefinition() (*FlowNode, error) {
	root := p.startNode(p.advance(), 0)
	stack := []*FlowNode{root}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		sep, err := p.expect(PIPE, TERMINATOR)
		if err != nil {
			return nil, err
		}
		if sep.Type == TERMINATOR {
			stack = stack[:len(stack)-1]
			continue
		}

		tok := p.peek()
		switch tok.Type {
		case PIPE, TERMINATOR:
			// empty section

		case IDENTIFIER:
			if err := p.parseParam(cur); err != nil {
				return nil, err
			}

		case DEFINE:
			child := p.startNode(p.advance(), cur.Layer+1)
			if _, dup := cur.Slots[child.ID]; dup {
				return nil, p.errorf(ErrDuplicateSlot, child.Pos, "duplicate slot @%s in @%s", child.ID, cur.ID)
			}
			cur.Slots[child.ID] = child
			cur.Content = append(cur.Content, ContentItem{Kind: ItemNode, Node: child})
			stack = append(stack, child)

		case STRING:
			p.advance()
			cur.Content = append(cur.Content, ContentItem{Kind: ItemString, Str: StringLit{
				Raw:          tok.Lexeme,
				TrimLeading:  tok.TrimLeading,
				TrimTrailing: tok.TrimTrailing,
				Pos:          tok.Pos,
			}})

		case BACKREF, FORWARDREF:
			p.advance()
			dir := Backward
			if tok.Type == FORWARDREF {
				dir = Forward
			}
			cur.Content = append(cur.Content, ContentItem{Kind: ItemRef, Ref: &NodeRef{Target: tok.Lexeme, Direction: dir, Pos: tok.Pos}})

		case FILEREF:
			p.advance()
			cur.Content = append(cur.Content, ContentItem{Kind: ItemFile, File: &FileRef{Path: tok.Lexeme, Pos: tok.Pos}})

		default:
			p.advance()
			return nil, p.errorf(ErrUnexpectedToken, tok.Pos, "unexpected %s in @%s", describe(tok), cur.ID)
		}
	}
	return root, nil
}

// parseParam parses key=value inside a node and applies it.
func (p *Parser) parseParam(n *FlowNode) error {
	key := p.advance()
	if _, err := p.expect(ASSIGN); err != nil {
		return err
	}
	val, err := p.expect(VALUE, STRING)
	if err != nil {
		return err
	}
	value := val.Lexeme
	if val.Type == STRING {
		value = StringLit{Raw: val.Lexeme, TrimLeading: val.TrimLeading, TrimTrailing: val.TrimTrailing}.Text()
	}

	name, isStyle := strings.CutPrefix(key.Lexeme, "style.")
	if !isStyle {
		n.Params[key.Lexeme] = value
		return nil
	}
	p.applyStyle(n, name, value, key.Pos)
	return nil
}

// applyStyle sets one style field. Out-of-vocabulary values are kept and
// logged; malformed numbers and booleans are logged and left unset.
func (p *Parser) applyStyle(n *FlowNode, name, value string, pos Position) {
	warn := func(msg string) {
		p.logger.Warn(msg, "node", n.ID, "key", "style."+name, "value", value, "pos", pos.String())
	}

	switch name {
	case "title":
		n.Style.Title = value
	case "divider":
		b, err := strconv.ParseBool(value)
		if err != nil {
			warn("invalid divider flag ignored")
			return
		}
		n.Style.Divider = b
	case "list":
		kind := ListKind(value)
		switch kind {
		case ListBullet, ListNumbered, ListTask, ListTaskDone:
		default:
			warn("unknown list kind")
		}
		n.Style.List = kind
	case "wrap":
		kind := WrapKind(value)
		switch kind {
		case WrapXML, WrapCodeBlock, WrapBlockquote, WrapDetails:
		default:
			warn("unknown wrap kind")
		}
		n.Style.Wrap = kind
	case "tag":
		n.Style.Tag = value
	case "summary":
		n.Style.Summary = value
	case "level":
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			warn("malformed heading level ignored")
			return
		}
		if strings.HasPrefix(value, "+") || strings.HasPrefix(value, "-") {
			n.Style.LevelOffset = v
			return
		}
		n.Style.Level = v
	default:
		warn("unknown style parameter ignored")
	}
}

// Parse parses a token stream with the default logger.
func Parse(tokens []Token) (*FlowFile, error) {
	return NewParser(tokens, nil).Parse()
}
