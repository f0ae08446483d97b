package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var endstream = []byte("endstream")

// Parser reads PDF objects from a lexer
type Parser struct {
	lexer *Lexer
	ahead []Token

	// lengthOf resolves an indirect stream /Length
	lengthOf func(ref Reference) (int, bool)
}

// NewParser creates a parser reading from lexer
func NewParser(lexer *Lexer) *Parser {
	return &Parser{lexer: lexer}
}

// NewParserFromBytes creates a parser over data
func NewParserFromBytes(data []byte) *Parser {
	return NewParser(NewLexerFromBytes(data))
}

func (p *Parser) next() (Token, error) {
	if len(p.ahead) > 0 {
		tok := p.ahead[0]
		p.ahead = p.ahead[1:]
		return tok, nil
	}
	return p.lexer.NextToken()
}

// peek returns the token n places ahead without consuming it
func (p *Parser) peek(n int) (Token, error) {
	for len(p.ahead) <= n {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return Token{}, err
		}
		p.ahead = append(p.ahead, tok)
	}
	return p.ahead[n], nil
}

// ParseObject parses the next direct object
func (p *Parser) ParseObject() (Object, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	return p.object(tok)
}

func (p *Parser) object(tok Token) (Object, error) {
	switch tok.Type {
	case TokenEOF:
		return nil, io.EOF
	case TokenInteger:
		if ref, ok := p.reference(tok); ok {
			return ref, nil
		}
	}
	return assemble(tok, p.next, p.object)
}

// reference consumes "gen R" after num when both follow
func (p *Parser) reference(num Token) (Reference, bool) {
	gen, err := p.peek(0)
	if err != nil || gen.Type != TokenInteger {
		return Reference{}, false
	}
	r, err := p.peek(1)
	if err != nil || r.Type != TokenRef {
		return Reference{}, false
	}
	p.ahead = p.ahead[2:]
	return Reference{
		ObjectNumber:     int(num.Value.(int64)),
		GenerationNumber: int(gen.Value.(int64)),
	}, true
}

// assemble builds the object opened by tok. Members of arrays and
// dictionaries are read with next and turned into objects by member.
func assemble(tok Token, next func() (Token, error), member func(Token) (Object, error)) (Object, error) {
	switch tok.Type {
	case TokenArrayStart:
		arr := Array{}
		for {
			t, err := next()
			if err != nil {
				return nil, err
			}
			switch t.Type {
			case TokenArrayEnd:
				return arr, nil
			case TokenEOF:
				return nil, fmt.Errorf("unterminated array at offset %d", tok.Pos)
			}
			obj, err := member(t)
			if err != nil {
				return nil, err
			}
			arr = append(arr, obj)
		}

	case TokenDictStart:
		dict := Dictionary{}
		for {
			key, err := next()
			if err != nil {
				return nil, err
			}
			if key.Type == TokenDictEnd {
				return dict, nil
			}
			if key.Type != TokenName {
				return nil, fmt.Errorf("dictionary key at offset %d is not a name", key.Pos)
			}
			t, err := next()
			if err != nil {
				return nil, err
			}
			val, err := member(t)
			if err != nil {
				return nil, err
			}
			dict[Name(key.Value.(string))] = val
		}
	}
	return scalar(tok)
}

func scalar(tok Token) (Object, error) {
	switch tok.Type {
	case TokenNull:
		return Null{}, nil
	case TokenBoolean:
		return Boolean(tok.Value.(bool)), nil
	case TokenInteger:
		return Integer(tok.Value.(int64)), nil
	case TokenReal:
		return Real(tok.Value.(float64)), nil
	case TokenString:
		return String{Value: tok.Value.([]byte)}, nil
	case TokenHexString:
		return String{Value: tok.Value.([]byte), IsHex: true}, nil
	case TokenName:
		return Name(tok.Value.(string)), nil
	}
	return nil, fmt.Errorf("unexpected token %v at offset %d", tok.Value, tok.Pos)
}

// ParseIndirectObject parses "num gen obj ... endobj". A missing endobj
// is tolerated.
func (p *Parser) ParseIndirectObject() (num, gen int, obj Object, err error) {
	var head [3]Token
	for i := range head {
		if head[i], err = p.next(); err != nil {
			return 0, 0, nil, err
		}
	}
	if head[0].Type != TokenInteger || head[1].Type != TokenInteger || head[2].Type != TokenObjStart {
		return 0, 0, nil, fmt.Errorf("no object header at offset %d", head[0].Pos)
	}
	num, gen = int(head[0].Value.(int64)), int(head[1].Value.(int64))

	if obj, err = p.ParseObject(); err != nil {
		return 0, 0, nil, err
	}

	if t, perr := p.peek(0); perr == nil && t.Type == TokenStreamStart {
		p.ahead = p.ahead[1:]
		dict, ok := obj.(Dictionary)
		if !ok {
			return 0, 0, nil, fmt.Errorf("stream at offset %d has no dictionary", t.Pos)
		}
		data, err := p.streamBody(dict)
		if err != nil {
			return 0, 0, nil, err
		}
		obj = Stream{Dictionary: dict, Data: data}
	}
	return num, gen, obj, nil
}

// streamBody reads the bytes between the stream keyword and endstream.
// /Length is used only when endstream really follows it.
func (p *Parser) streamBody(dict Dictionary) ([]byte, error) {
	lx := p.lexer
	switch {
	case bytes.HasPrefix(lx.data[lx.pos:], []byte("\r\n")):
		lx.pos += 2
	case lx.pos < len(lx.data) && (lx.data[lx.pos] == '\n' || lx.data[lx.pos] == '\r'):
		lx.pos++
	}
	rest := lx.data[lx.pos:]

	var data []byte
	if n := p.declaredLength(dict); n >= 0 && n <= len(rest) &&
		bytes.HasPrefix(bytes.TrimLeft(rest[n:], " \t\r\n"), endstream) {
		data = rest[:n]
		lx.pos += n
	} else {
		end := bytes.Index(rest, endstream)
		if end < 0 {
			return nil, errors.New("stream without endstream")
		}
		data = bytes.TrimRight(rest[:end], "\r\n")
		lx.pos += end
	}

	lx.skipWhitespace()
	if bytes.HasPrefix(lx.data[lx.pos:], endstream) {
		lx.pos += len(endstream)
	}
	return data, nil
}

func (p *Parser) declaredLength(dict Dictionary) int {
	switch l := dict.Get("Length").(type) {
	case Integer:
		return int(l)
	case Reference:
		if p.lengthOf != nil {
			if n, ok := p.lengthOf(l); ok {
				return n
			}
		}
	}
	return -1
}

// Operation is one content stream operator with its operands
type Operation struct {
	Operator string
	Operands []Object
}

// ContentStreamParser splits a content stream into operations
type ContentStreamParser struct {
	lexer *Lexer
}

// NewContentStreamParser creates a parser over content stream data
func NewContentStreamParser(data []byte) *ContentStreamParser {
	return &ContentStreamParser{lexer: NewLexerFromBytes(data)}
}

// ParseOperations returns every operation of the stream. Malformed tokens
// are skipped so a damaged stream still yields its readable part.
func (p *ContentStreamParser) ParseOperations() ([]Operation, error) {
	var ops []Operation
	var operands []Object

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			p.lexer.pos++
			operands = nil
			continue
		}

		switch tok.Type {
		case TokenEOF:
			return ops, nil
		case TokenOperator:
			name := tok.Value.(string)
			if name == "BI" {
				ops = append(ops, p.inlineImage())
			} else {
				ops = append(ops, Operation{Operator: name, Operands: operands})
			}
			operands = nil
		default:
			if obj, err := p.operand(tok); err == nil {
				operands = append(operands, obj)
			} else {
				operands = nil
			}
		}
	}
}

func (p *ContentStreamParser) operand(tok Token) (Object, error) {
	return assemble(tok, p.lexer.NextToken, p.operand)
}

// inlineImage consumes BI <key value ...> ID <data> EI. The image comes
// back as a BI operation whose single operand is a Stream.
func (p *ContentStreamParser) inlineImage() Operation {
	dict := Dictionary{}
	for {
		tok, err := p.lexer.NextToken()
		if err != nil || tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenOperator && tok.Value.(string) == "ID" {
			data := p.lexer.ReadInlineImageData()
			return Operation{Operator: "BI", Operands: []Object{Stream{Dictionary: dict, Data: data}}}
		}
		if tok.Type != TokenName {
			continue
		}
		vt, err := p.lexer.NextToken()
		if err != nil {
			break
		}
		if val, err := p.operand(vt); err == nil {
			dict[Name(tok.Value.(string))] = val
		}
	}
	return Operation{Operator: "BI", Operands: []Object{Stream{Dictionary: dict}}}
}
