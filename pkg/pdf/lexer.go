package pdf

import (
	"bytes"
	"fmt"
	"strconv"
)

// TokenType is the kind of a lexical token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNull
	TokenBoolean
	TokenInteger
	TokenReal
	TokenString
	TokenHexString
	TokenName
	TokenArrayStart
	TokenArrayEnd
	TokenDictStart
	TokenDictEnd
	TokenStreamStart
	TokenObjStart
	TokenRef
	// TokenOperator covers every other bare keyword: content stream
	// operators as well as endobj, xref, trailer and friends.
	TokenOperator
)

// Token is one lexical unit; Value depends on Type
type Token struct {
	Type  TokenType
	Value interface{}
	Pos   int64
}

// keywords that get a token type of their own
var keywordTokens = map[string]Token{
	"true":   {Type: TokenBoolean, Value: true},
	"false":  {Type: TokenBoolean, Value: false},
	"null":   {Type: TokenNull},
	"obj":    {Type: TokenObjStart},
	"stream": {Type: TokenStreamStart},
	"R":      {Type: TokenRef},
}

// Lexer splits an in-memory PDF byte slice into tokens
type Lexer struct {
	data []byte
	pos  int
}

// NewLexerFromBytes creates a lexer over data
func NewLexerFromBytes(data []byte) *Lexer {
	return &Lexer{data: data}
}

func (l *Lexer) peek() (byte, bool) {
	if l.pos >= len(l.data) {
		return 0, false
	}
	return l.data[l.pos], true
}

// accept consumes b if it is next
func (l *Lexer) accept(b byte) bool {
	if c, ok := l.peek(); ok && c == b {
		l.pos++
		return true
	}
	return false
}

// skipWhitespace skips whitespace and comments
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.data) {
		switch b := l.data[l.pos]; {
		case isWhitespace(b):
			l.pos++
		case b == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\r' && l.data[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func isWhitespace(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(b byte) bool {
	return !isWhitespace(b) && !isDelimiter(b)
}

// NextToken returns the next token; at the end of data it returns
// TokenEOF with a nil error.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()
	pos := int64(l.pos)
	b, ok := l.peek()
	if !ok {
		return Token{Type: TokenEOF, Pos: pos}, nil
	}
	l.pos++

	tok := Token{Pos: pos}
	switch {
	case b == '[':
		tok.Type = TokenArrayStart
	case b == ']':
		tok.Type = TokenArrayEnd
	case b == '<' && l.accept('<'):
		tok.Type = TokenDictStart
	case b == '<':
		return l.hexString(pos)
	case b == '>' && l.accept('>'):
		tok.Type = TokenDictEnd
	case b == '(':
		return l.literalString(pos)
	case b == '/':
		tok.Type, tok.Value = TokenName, l.name()
	case b == '{' || b == '}' || b == '\'' || b == '"':
		// braces only occur in PostScript calculator functions
		tok.Type, tok.Value = TokenOperator, string(b)
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		l.pos--
		return l.number(pos)
	case isRegular(b):
		l.pos--
		return l.keyword(pos), nil
	default:
		return Token{}, fmt.Errorf("unexpected %q at offset %d", b, pos)
	}
	return tok, nil
}

// literal string escapes with a fixed replacement
var escapes = map[byte]byte{
	'n': '\n', 'r': '\r', 't': '\t', 'b': '\b', 'f': '\f',
	'(': '(', ')': ')', '\\': '\\',
}

// literalString reads up to the balancing ')'
func (l *Lexer) literalString(pos int64) (Token, error) {
	var buf bytes.Buffer
	for depth := 1; ; {
		b, ok := l.peek()
		if !ok {
			return Token{}, fmt.Errorf("unterminated string at offset %d", pos)
		}
		l.pos++

		switch b {
		case '(':
			depth++
		case ')':
			if depth--; depth == 0 {
				return Token{Type: TokenString, Value: buf.Bytes(), Pos: pos}, nil
			}
		case '\\':
			l.escape(&buf)
			continue
		case '\r':
			// any EOL inside a literal reads as \n
			l.accept('\n')
			b = '\n'
		}
		buf.WriteByte(b)
	}
}

func (l *Lexer) escape(buf *bytes.Buffer) {
	b, ok := l.peek()
	if !ok {
		return
	}
	l.pos++

	if r, ok := escapes[b]; ok {
		buf.WriteByte(r)
		return
	}
	switch {
	case b == '\r':
		l.accept('\n')
	case b == '\n':
	case b >= '0' && b <= '7':
		v := b - '0'
		for i := 0; i < 2; i++ {
			d, ok := l.peek()
			if !ok || d < '0' || d > '7' {
				break
			}
			l.pos++
			v = v<<3 | (d - '0')
		}
		buf.WriteByte(v)
	default:
		// unknown escapes drop the backslash
		buf.WriteByte(b)
	}
}

// hexString reads up to '>'; an odd final digit is padded with 0
func (l *Lexer) hexString(pos int64) (Token, error) {
	end := bytes.IndexByte(l.data[l.pos:], '>')
	if end < 0 {
		return Token{}, fmt.Errorf("unterminated hex string at offset %d", pos)
	}
	body := l.data[l.pos : l.pos+end]
	l.pos += end + 1

	out := make([]byte, 0, len(body)/2+1)
	digits := 0
	for _, c := range body {
		if isWhitespace(c) {
			continue
		}
		v, ok := unhex(c)
		if !ok {
			return Token{}, fmt.Errorf("invalid hex digit %q at offset %d", c, pos)
		}
		if digits%2 == 0 {
			out = append(out, v<<4)
		} else {
			out[len(out)-1] |= v
		}
		digits++
	}
	return Token{Type: TokenHexString, Value: out, Pos: pos}, nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// name reads the characters after '/', decoding #XX escapes
func (l *Lexer) name() string {
	var sb bytes.Buffer
	for l.pos < len(l.data) && isRegular(l.data[l.pos]) {
		c := l.data[l.pos]
		l.pos++
		if c == '#' && l.pos+1 < len(l.data) {
			hi, ok1 := unhex(l.data[l.pos])
			lo, ok2 := unhex(l.data[l.pos+1])
			if ok1 && ok2 {
				sb.WriteByte(hi<<4 | lo)
				l.pos += 2
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// number reads an integer or real. A sign or dot without digits reads as
// 0, which is what viewers do with such damaged operands.
func (l *Lexer) number(pos int64) (Token, error) {
	start := l.pos
	if c := l.data[l.pos]; c == '+' || c == '-' {
		l.pos++
	}
	digits, dot := 0, false
	for ; l.pos < len(l.data); l.pos++ {
		c := l.data[l.pos]
		if c == '.' && !dot {
			dot = true
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		digits++
	}

	if digits == 0 {
		if l.pos == start {
			l.pos++
		}
		return Token{Type: TokenInteger, Value: int64(0), Pos: pos}, nil
	}

	text := string(l.data[start:l.pos])
	if dot {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Token{}, fmt.Errorf("invalid real %q at offset %d", text, pos)
		}
		return Token{Type: TokenReal, Value: v, Pos: pos}, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid integer %q at offset %d", text, pos)
	}
	return Token{Type: TokenInteger, Value: v, Pos: pos}, nil
}

func (l *Lexer) keyword(pos int64) Token {
	start := l.pos
	for l.pos < len(l.data) && isRegular(l.data[l.pos]) {
		l.pos++
	}
	word := string(l.data[start:l.pos])
	if tok, ok := keywordTokens[word]; ok {
		tok.Pos = pos
		return tok
	}
	return Token{Type: TokenOperator, Value: word, Pos: pos}
}

// ReadLine returns the bytes up to the next EOL (CR, LF or CRLF) and
// moves past it. ok is false at the end of data.
func (l *Lexer) ReadLine() (line []byte, ok bool) {
	if l.pos >= len(l.data) {
		return nil, false
	}
	rest := l.data[l.pos:]
	i := bytes.IndexAny(rest, "\r\n")
	if i < 0 {
		l.pos = len(l.data)
		return rest, true
	}
	l.pos += i + 1
	if rest[i] == '\r' {
		l.accept('\n')
	}
	return rest[:i], true
}

// ReadInlineImageData returns the raw bytes of an inline image, leaving
// the lexer after EI. It must be called right after the ID operator.
func (l *Lexer) ReadInlineImageData() []byte {
	// one whitespace byte separates ID from the data
	if b, ok := l.peek(); ok && isWhitespace(b) {
		l.pos++
	}
	start := l.pos

	// EI counts only as a standalone word after whitespace
	for i := start; i+1 < len(l.data); i++ {
		if l.data[i] != 'E' || l.data[i+1] != 'I' {
			continue
		}
		if i > start && !isWhitespace(l.data[i-1]) {
			continue
		}
		if i+2 < len(l.data) && isRegular(l.data[i+2]) {
			continue
		}
		end := i
		if end > start {
			end--
		}
		l.pos = i + 2
		return l.data[start:end]
	}

	l.pos = len(l.data)
	return l.data[start:]
}
