// Package lexer implements the tokenizer for the protocol description
// language. The scanner is byte-based; identifiers are ASCII letters,
// digits and underscores, which covers role and label names.
package lexer

import (
	"fmt"

	"github.com/scribal-lang/scribal/internal/source"
)

// TokenType represents the type of a token.
type TokenType int

// String returns a string representation of the token type.
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(tt))
}

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenIdentifier
	TokenString

	// Keywords
	TokenModule
	TokenProtocol
	TokenRole
	TokenChoice
	TokenAt
	TokenOr
	TokenPar
	TokenAnd
	TokenRec
	TokenContinue
	TokenDo
	TokenInvite

	// Symbols
	TokenLBrace
	TokenRBrace
	TokenLParen
	TokenRParen
	TokenComma
	TokenSemicolon
	TokenColon
	TokenArrow
	TokenLAngle
	TokenRAngle
	TokenAtSign
)

// tokenNames provides string representations for token types.
var tokenNames = map[TokenType]string{
	TokenEOF:   "EOF",
	TokenError: "ERROR",

	TokenIdentifier: "IDENTIFIER",
	TokenString:     "STRING",

	TokenModule:   "MODULE",
	TokenProtocol: "PROTOCOL",
	TokenRole:     "ROLE",
	TokenChoice:   "CHOICE",
	TokenAt:       "AT",
	TokenOr:       "OR",
	TokenPar:      "PAR",
	TokenAnd:      "AND",
	TokenRec:      "REC",
	TokenContinue: "CONTINUE",
	TokenDo:       "DO",
	TokenInvite:   "INVITE",

	TokenLBrace:    "LBRACE",
	TokenRBrace:    "RBRACE",
	TokenLParen:    "LPAREN",
	TokenRParen:    "RPAREN",
	TokenComma:     "COMMA",
	TokenSemicolon: "SEMICOLON",
	TokenColon:     "COLON",
	TokenArrow:     "ARROW",
	TokenLAngle:    "LANGLE",
	TokenRAngle:    "RANGLE",
	TokenAtSign:    "AT_SIGN",
}

// keywords maps string keywords to their token types.
var keywords = map[string]TokenType{
	"module":   TokenModule,
	"protocol": TokenProtocol,
	"role":     TokenRole,
	"choice":   TokenChoice,
	"at":       TokenAt,
	"or":       TokenOr,
	"par":      TokenPar,
	"and":      TokenAnd,
	"rec":      TokenRec,
	"continue": TokenContinue,
	"do":       TokenDo,
	"invite":   TokenInvite,
}

// Token represents a lexical token with position information.
type Token struct {
	Type    TokenType
	Literal string
	Span    source.Span
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %q, Pos: %s}", t.Type, t.Literal, t.Span.Start)
}

// Lexer scans protocol source text into tokens.
type Lexer struct {
	input        string
	filename     string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number
	column       int  // current column number
}

// New creates a lexer over in-memory input.
func New(input string) *Lexer {
	return NewWithFilename(input, "")
}

// NewWithFilename creates a lexer carrying a filename for error reporting.
func NewWithFilename(input, filename string) *Lexer {
	l := &Lexer{input: input, filename: filename, line: 1, column: 0}
	l.readChar()
	return l
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // NUL represents EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) pos() source.Position {
	return source.Position{File: l.filename, Line: l.line, Column: l.column, Offset: l.position}
}

// NextToken scans and returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSpaceAndComments()

	start := l.pos()
	var tok Token

	switch l.ch {
	case 0:
		tok = l.token(TokenEOF, "", start)
	case '{':
		tok = l.token(TokenLBrace, "{", start)
	case '}':
		tok = l.token(TokenRBrace, "}", start)
	case '(':
		tok = l.token(TokenLParen, "(", start)
	case ')':
		tok = l.token(TokenRParen, ")", start)
	case ',':
		tok = l.token(TokenComma, ",", start)
	case ';':
		tok = l.token(TokenSemicolon, ";", start)
	case ':':
		tok = l.token(TokenColon, ":", start)
	case '<':
		tok = l.token(TokenLAngle, "<", start)
	case '>':
		tok = l.token(TokenRAngle, ">", start)
	case '@':
		tok = l.token(TokenAtSign, "@", start)
	case '-':
		if l.peekChar() == '>' {
			l.readChar()
			tok = l.token(TokenArrow, "->", start)
		} else {
			tok = l.token(TokenError, string(l.ch), start)
		}
	case '"':
		return l.readString(start)
	default:
		if isLetter(l.ch) {
			return l.readIdentifier(start)
		}
		tok = l.token(TokenError, string(l.ch), start)
	}

	l.readChar()
	return tok
}

// token builds a single- or double-character token ending at the current char.
func (l *Lexer) token(tt TokenType, literal string, start source.Position) Token {
	end := l.pos()
	end.Column++
	end.Offset++
	return Token{Type: tt, Literal: literal, Span: source.NewSpan(start, end)}
}

func (l *Lexer) readIdentifier(start source.Position) Token {
	begin := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	literal := l.input[begin:l.position]
	tt := TokenIdentifier
	if kw, ok := keywords[literal]; ok {
		tt = kw
	}
	return Token{Type: tt, Literal: literal, Span: source.NewSpan(start, l.pos())}
}

// readString scans a double-quoted string without escape processing;
// strings only carry version constraints, which never contain quotes.
func (l *Lexer) readString(start source.Position) Token {
	l.readChar() // consume opening quote
	begin := l.position
	for l.ch != '"' && l.ch != 0 && l.ch != '\n' {
		l.readChar()
	}
	literal := l.input[begin:l.position]
	if l.ch != '"' {
		return Token{Type: TokenError, Literal: literal, Span: source.NewSpan(start, l.pos())}
	}
	l.readChar() // consume closing quote
	return Token{Type: TokenString, Literal: literal, Span: source.NewSpan(start, l.pos())}
}

func (l *Lexer) skipSpaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
