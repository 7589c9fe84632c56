// Package parser turns protocol source text into the AST consumed by the
// core. It is the front-end collaborator: everything from the CFG builder
// down operates on ast values and never sees source text.
//
// The parser is recursive descent over a two-token window. Syntax errors
// are collected as diagnostics; after an error the parser re-synchronizes
// at the next ';' or '}' so one malformed interaction does not hide the
// rest of the file.
package parser

import (
	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/diag"
	"github.com/scribal-lang/scribal/internal/lexer"
	"github.com/scribal-lang/scribal/internal/source"
)

// Parser holds the scanning state for one source file.
type Parser struct {
	l *lexer.Lexer

	curToken  lexer.Token
	peekToken lexer.Token

	diags []diag.Diagnostic
}

// New creates a parser over an existing lexer.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	// Load the two-token window.
	p.nextToken()
	p.nextToken()
	return p
}

// Parse is the convenience entry point: source text to module.
// The returned diagnostics contain every syntax error found; the module
// is non-nil even when errors occurred, holding whatever parsed cleanly.
func Parse(input, filename string) (*ast.Module, []diag.Diagnostic) {
	p := New(lexer.NewWithFilename(input, filename))
	m := p.ParseModule()
	return m, p.Diagnostics()
}

// Diagnostics returns the syntax errors collected so far.
func (p *Parser) Diagnostics() []diag.Diagnostic { return p.diags }

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) errorf(span source.Span, format string, args ...interface{}) {
	p.diags = append(p.diags, diag.Errorf("SYN001", span, format, args...))
}

// expect consumes the current token if it has the wanted type, otherwise
// records an error and returns false without consuming.
func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, bool) {
	if p.curToken.Type != tt {
		p.errorf(p.curToken.Span, "expected %s, found %s %q", tt, p.curToken.Type, p.curToken.Literal)
		return p.curToken, false
	}
	tok := p.curToken
	p.nextToken()
	return tok, true
}

// sync skips tokens until just past the next ';' (or until '}' or EOF),
// the smallest point where parsing an interaction list can resume.
func (p *Parser) sync() {
	for p.curToken.Type != lexer.TokenEOF {
		if p.curToken.Type == lexer.TokenSemicolon {
			p.nextToken()
			return
		}
		if p.curToken.Type == lexer.TokenRBrace {
			return
		}
		p.nextToken()
	}
}

// ParseModule parses an optional module header and all protocols in the file.
func (p *Parser) ParseModule() *ast.Module {
	m := &ast.Module{Span: p.curToken.Span}

	if p.curToken.Type == lexer.TokenModule {
		p.nextToken()
		name, ok := p.expect(lexer.TokenIdentifier)
		if ok {
			m.Name = name.Literal
		}
		p.expect(lexer.TokenSemicolon)
	}

	for p.curToken.Type != lexer.TokenEOF {
		if p.curToken.Type != lexer.TokenProtocol {
			p.errorf(p.curToken.Span, "expected protocol declaration, found %s %q",
				p.curToken.Type, p.curToken.Literal)
			p.nextToken()
			continue
		}
		if decl := p.parseProtocol(); decl != nil {
			m.Protocols = append(m.Protocols, decl)
			m.Span = m.Span.Union(decl.Span)
		}
	}
	return m
}

func (p *Parser) parseProtocol() *ast.Protocol {
	start := p.curToken.Span
	p.nextToken() // consume 'protocol'

	name, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}
	decl := &ast.Protocol{Name: name.Literal}

	if _, ok := p.expect(lexer.TokenLParen); !ok {
		p.sync()
		return nil
	}
	for {
		if _, ok := p.expect(lexer.TokenRole); !ok {
			p.sync()
			return nil
		}
		r, ok := p.expect(lexer.TokenIdentifier)
		if !ok {
			p.sync()
			return nil
		}
		role := ast.Role(r.Literal)
		if decl.HasRole(role) {
			p.errorf(r.Span, "duplicate role %q in protocol %s", r.Literal, decl.Name)
		} else {
			decl.Roles = append(decl.Roles, role)
		}
		if p.curToken.Type != lexer.TokenComma {
			break
		}
		p.nextToken()
	}
	p.expect(lexer.TokenRParen)

	decl.Body = p.parseBlock()
	end := p.curToken.Span
	decl.Span = start.Union(end)
	return decl
}

func (p *Parser) parseBlock() *ast.Block {
	b := &ast.Block{Span: p.curToken.Span}
	if _, ok := p.expect(lexer.TokenLBrace); !ok {
		return b
	}
	for p.curToken.Type != lexer.TokenRBrace && p.curToken.Type != lexer.TokenEOF {
		in := p.parseInteraction()
		if in != nil {
			b.Interactions = append(b.Interactions, in)
			b.Span = b.Span.Union(in.GetSpan())
		}
	}
	if tok, ok := p.expect(lexer.TokenRBrace); ok {
		b.Span = b.Span.Union(tok.Span)
	}
	return b
}

func (p *Parser) parseInteraction() ast.Interaction {
	switch p.curToken.Type {
	case lexer.TokenIdentifier:
		return p.parseTransfer()
	case lexer.TokenChoice:
		return p.parseChoice()
	case lexer.TokenPar:
		return p.parseParallel()
	case lexer.TokenRec:
		return p.parseRecursion()
	case lexer.TokenContinue:
		return p.parseContinue()
	case lexer.TokenDo:
		return p.parseDo()
	case lexer.TokenInvite:
		return p.parseInvite()
	default:
		p.errorf(p.curToken.Span, "expected interaction, found %s %q",
			p.curToken.Type, p.curToken.Literal)
		p.sync()
		return nil
	}
}

// parseTransfer parses `From -> To[, To]*: Label(payload?);`.
func (p *Parser) parseTransfer() ast.Interaction {
	start := p.curToken.Span
	from, _ := p.expect(lexer.TokenIdentifier)

	if _, ok := p.expect(lexer.TokenArrow); !ok {
		p.sync()
		return nil
	}

	t := &ast.Transfer{From: ast.Role(from.Literal)}
	for {
		to, ok := p.expect(lexer.TokenIdentifier)
		if !ok {
			p.sync()
			return nil
		}
		t.To = append(t.To, ast.Role(to.Literal))
		if p.curToken.Type != lexer.TokenComma {
			break
		}
		p.nextToken()
	}

	if _, ok := p.expect(lexer.TokenColon); !ok {
		p.sync()
		return nil
	}

	label, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}
	t.Msg.Label = label.Literal

	if _, ok := p.expect(lexer.TokenLParen); !ok {
		p.sync()
		return nil
	}
	if p.curToken.Type != lexer.TokenRParen {
		for {
			payload, ok := p.parsePayload()
			if !ok {
				p.sync()
				return nil
			}
			t.Msg.Payloads = append(t.Msg.Payloads, payload)
			if p.curToken.Type != lexer.TokenComma {
				break
			}
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen)

	end, _ := p.expect(lexer.TokenSemicolon)
	t.Span = start.Union(end.Span)
	return t
}

// parsePayload parses `[name :] typeRef`.
func (p *Parser) parsePayload() (ast.Payload, bool) {
	var out ast.Payload
	if p.curToken.Type == lexer.TokenIdentifier && p.peekToken.Type == lexer.TokenColon {
		out.Name = p.curToken.Literal
		p.nextToken() // name
		p.nextToken() // colon
	}
	ref, ok := p.parseTypeRef()
	if !ok {
		return out, false
	}
	out.Type = ref
	return out, true
}

// parseTypeRef parses `ident` or `ident<typeRef, ...>` recursively.
func (p *Parser) parseTypeRef() (ast.TypeRef, bool) {
	name, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		return ast.TypeRef{}, false
	}
	ref := ast.TypeRef{Name: name.Literal}
	if p.curToken.Type != lexer.TokenLAngle {
		return ref, true
	}
	p.nextToken() // consume '<'
	for {
		param, ok := p.parseTypeRef()
		if !ok {
			return ref, false
		}
		ref.Params = append(ref.Params, param)
		if p.curToken.Type != lexer.TokenComma {
			break
		}
		p.nextToken()
	}
	if _, ok := p.expect(lexer.TokenRAngle); !ok {
		return ref, false
	}
	return ref, true
}

// parseChoice parses `choice at R block (or block)+`.
func (p *Parser) parseChoice() ast.Interaction {
	start := p.curToken.Span
	p.nextToken() // consume 'choice'

	if _, ok := p.expect(lexer.TokenAt); !ok {
		p.sync()
		return nil
	}
	at, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}

	c := &ast.Choice{At: ast.Role(at.Literal)}
	c.Branches = append(c.Branches, p.parseBlock())
	for p.curToken.Type == lexer.TokenOr {
		p.nextToken()
		c.Branches = append(c.Branches, p.parseBlock())
	}
	if len(c.Branches) < 2 {
		p.errorf(start, "choice at %s needs at least two branches", at.Literal)
	}
	c.Span = start.Union(c.Branches[len(c.Branches)-1].Span)
	return c
}

// parseParallel parses `par block (and block)+`.
func (p *Parser) parseParallel() ast.Interaction {
	start := p.curToken.Span
	p.nextToken() // consume 'par'

	par := &ast.Parallel{}
	par.Branches = append(par.Branches, p.parseBlock())
	for p.curToken.Type == lexer.TokenAnd {
		p.nextToken()
		par.Branches = append(par.Branches, p.parseBlock())
	}
	if len(par.Branches) < 2 {
		p.errorf(start, "par needs at least two branches")
	}
	par.Span = start.Union(par.Branches[len(par.Branches)-1].Span)
	return par
}

func (p *Parser) parseRecursion() ast.Interaction {
	start := p.curToken.Span
	p.nextToken() // consume 'rec'

	label, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}
	body := p.parseBlock()
	return &ast.Recursion{Span: start.Union(body.Span), Label: label.Literal, Body: body}
}

func (p *Parser) parseContinue() ast.Interaction {
	start := p.curToken.Span
	p.nextToken() // consume 'continue'

	label, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}
	end, _ := p.expect(lexer.TokenSemicolon)
	return &ast.Continue{Span: start.Union(end.Span), Label: label.Literal}
}

// parseDo parses `do Name[@"constraint"](roles);`.
func (p *Parser) parseDo() ast.Interaction {
	start := p.curToken.Span
	p.nextToken() // consume 'do'

	name, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}
	d := &ast.Do{Protocol: name.Literal}

	if p.curToken.Type == lexer.TokenAtSign {
		p.nextToken()
		constraint, ok := p.expect(lexer.TokenString)
		if !ok {
			p.sync()
			return nil
		}
		d.Constraint = constraint.Literal
	}

	if _, ok := p.expect(lexer.TokenLParen); !ok {
		p.sync()
		return nil
	}
	for {
		arg, ok := p.expect(lexer.TokenIdentifier)
		if !ok {
			p.sync()
			return nil
		}
		d.Args = append(d.Args, ast.Role(arg.Literal))
		if p.curToken.Type != lexer.TokenComma {
			break
		}
		p.nextToken()
	}
	p.expect(lexer.TokenRParen)

	end, _ := p.expect(lexer.TokenSemicolon)
	d.Span = start.Union(end.Span)
	return d
}

func (p *Parser) parseInvite() ast.Interaction {
	start := p.curToken.Span
	p.nextToken() // consume 'invite'

	inviter, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}
	if _, ok := p.expect(lexer.TokenArrow); !ok {
		p.sync()
		return nil
	}
	invitee, ok := p.expect(lexer.TokenIdentifier)
	if !ok {
		p.sync()
		return nil
	}
	end, _ := p.expect(lexer.TokenSemicolon)
	return &ast.Invite{
		Span:    start.Union(end.Span),
		Inviter: ast.Role(inviter.Literal),
		Invitee: ast.Role(invitee.Literal),
	}
}
