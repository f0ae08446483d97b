package pdf

// CodespaceRange is a range of valid codes of one byte length
type CodespaceRange struct {
	Low  []byte
	High []byte
}

// CMap maps character codes to Unicode text for a ToUnicode stream
type CMap struct {
	codespaces []CodespaceRange
	toUnicode  map[uint32]string
}

// ParseCMap parses a ToUnicode CMap program. Only the codespace and bf*
// sections are interpreted; everything else is skipped.
func ParseCMap(data []byte) *CMap {
	cm := &CMap{toUnicode: make(map[uint32]string)}
	lexer := NewLexerFromBytes(data)

	for {
		tok, err := lexer.NextToken()
		if err != nil {
			lexer.pos++
			continue
		}
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type != TokenOperator {
			continue
		}

		switch tok.Value.(string) {
		case "begincodespacerange":
			cm.parseCodespace(lexer)
		case "beginbfchar":
			cm.parseBfChar(lexer)
		case "beginbfrange":
			cm.parseBfRange(lexer)
		}
	}
	return cm
}

// collectSection reads tokens until the named end operator
func collectSection(lexer *Lexer, end string) []Token {
	var toks []Token
	for {
		tok, err := lexer.NextToken()
		if err != nil {
			lexer.pos++
			continue
		}
		if tok.Type == TokenEOF {
			return toks
		}
		if tok.Type == TokenOperator && tok.Value.(string) == end {
			return toks
		}
		toks = append(toks, tok)
	}
}

func (cm *CMap) parseCodespace(lexer *Lexer) {
	toks := collectSection(lexer, "endcodespacerange")
	for i := 0; i+1 < len(toks); i += 2 {
		lo, ok1 := toks[i].Value.([]byte)
		hi, ok2 := toks[i+1].Value.([]byte)
		if ok1 && ok2 && len(lo) == len(hi) && len(lo) > 0 {
			cm.codespaces = append(cm.codespaces, CodespaceRange{Low: lo, High: hi})
		}
	}
}

func (cm *CMap) parseBfChar(lexer *Lexer) {
	toks := collectSection(lexer, "endbfchar")
	for i := 0; i+1 < len(toks); i += 2 {
		src, ok1 := toks[i].Value.([]byte)
		dst, ok2 := toks[i+1].Value.([]byte)
		if !ok1 || !ok2 {
			continue
		}
		cm.toUnicode[bytesToCode(src)] = decodeUTF16BE(dst)
	}
}

func (cm *CMap) parseBfRange(lexer *Lexer) {
	toks := collectSection(lexer, "endbfrange")
	for i := 0; i+2 < len(toks); {
		lo, ok1 := toks[i].Value.([]byte)
		hi, ok2 := toks[i+1].Value.([]byte)
		if !ok1 || !ok2 {
			i++
			continue
		}
		start, end := bytesToCode(lo), bytesToCode(hi)
		if end < start || end-start > 0xFFFF {
			i += 3
			continue
		}

		// <lo> <hi> [<dst1> <dst2> ...]
		if toks[i+2].Type == TokenArrayStart {
			j := i + 3
			code := start
			for ; j < len(toks) && toks[j].Type != TokenArrayEnd; j++ {
				if dst, ok := toks[j].Value.([]byte); ok && code <= end {
					cm.toUnicode[code] = decodeUTF16BE(dst)
				}
				code++
			}
			i = j + 1
			continue
		}

		// <lo> <hi> <dst>: the last UTF-16 unit increments across the range
		dst, ok := toks[i+2].Value.([]byte)
		if ok && len(dst) >= 2 {
			base := []rune(decodeUTF16BE(dst))
			if len(base) > 0 {
				for code := start; code <= end; code++ {
					r := make([]rune, len(base))
					copy(r, base)
					r[len(r)-1] += rune(code - start)
					cm.toUnicode[code] = string(r)
				}
			}
		} else if ok && len(dst) == 1 {
			for code := start; code <= end; code++ {
				cm.toUnicode[code] = string(rune(uint32(dst[0]) + code - start))
			}
		}
		i += 3
	}
}

// bytesToCode packs a big-endian byte sequence into a code
func bytesToCode(b []byte) uint32 {
	var code uint32
	for _, c := range b {
		code = code<<8 | uint32(c)
	}
	return code
}

// Lookup returns the Unicode text for code
func (cm *CMap) Lookup(code uint32) (string, bool) {
	s, ok := cm.toUnicode[code]
	return s, ok
}

// Len returns the number of mapped codes
func (cm *CMap) Len() int {
	return len(cm.toUnicode)
}

// NextCode splits the next character code from data using the codespace
// ranges, falling back to the given default width.
func (cm *CMap) NextCode(data []byte, defaultWidth int) (code uint32, n int) {
	if cm != nil {
		for _, cs := range cm.codespaces {
			w := len(cs.Low)
			if w > len(data) {
				continue
			}
			match := true
			for i := 0; i < w; i++ {
				if data[i] < cs.Low[i] || data[i] > cs.High[i] {
					match = false
					break
				}
			}
			if match {
				return bytesToCode(data[:w]), w
			}
		}
	}
	if defaultWidth > len(data) {
		defaultWidth = len(data)
	}
	return bytesToCode(data[:defaultWidth]), defaultWidth
}
