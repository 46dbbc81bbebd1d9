package parser

import "math"

// Lexer tokenizes SMVM assembly source. It is a deterministic finite
// automaton over the byte stream; each token class has its own state
// method.
type Lexer struct {
	input    string
	filename string
	pos      int
	line     int
	column   int
	tokens   []Token
}

// NewLexer creates a new lexer for the given input
func NewLexer(input, filename string) *Lexer {
	return &Lexer{
		input:    input,
		filename: filename,
		line:     1,
		column:   1,
	}
}

// Tokenize lexes the whole input and returns the token stream. Consecutive
// NEWLINE tokens are never emitted and trailing NEWLINE tokens are removed.
// On failure it reports the position of the first offending byte.
func Tokenize(input, filename string) ([]Token, *LexError) {
	return NewLexer(input, filename).Tokenize()
}

// Tokenize runs the automaton over the whole input.
func (l *Lexer) Tokenize() ([]Token, *LexError) {
	if err := l.skipByteOrderMark(); err != nil {
		return nil, err
	}

	for l.pos < len(l.input) {
		var err *LexError
		switch c := l.input[l.pos]; {
		case c == '\n':
			if n := len(l.tokens); n > 0 && l.tokens[n-1].Type != TokenNewline {
				l.tokens = append(l.tokens, Token{Type: TokenNewline, Text: "\n", Pos: l.here()})
			}
			l.advance()
		case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
			l.advance()
		case c == '#':
			l.skipComment()
		case c == '.':
			err = l.lexDirective()
		case c == '+' || c == '-' || c == '0':
			err = l.lexNumber()
		case c == '"':
			err = l.lexString()
		case c == ':':
			err = l.lexLabel()
		case isIdentHead(c):
			err = l.lexKeyword()
		default:
			err = l.errHere()
		}
		if err != nil {
			return nil, err
		}
	}

	return PopTrailingNewlines(l.tokens), nil
}

// skipByteOrderMark consumes an optional UTF-8 BOM (exactly EF BB BF).
func (l *Lexer) skipByteOrderMark() *LexError {
	if len(l.input) == 0 || l.input[0] != 0xef {
		return nil
	}
	l.advance()
	if l.pos >= len(l.input) || l.input[l.pos] != 0xbb {
		return l.errHere()
	}
	l.advance()
	if l.pos >= len(l.input) || l.input[l.pos] != 0xbf {
		return l.errHere()
	}
	l.advance()
	return nil
}

// skipComment consumes "# …" up to but not including the line feed.
func (l *Lexer) skipComment() {
	for l.pos < len(l.input) && l.input[l.pos] != '\n' {
		l.advance()
	}
}

// lexNumber handles "[+-]0x…" (HEX) and "0x…" (UHEX).
func (l *Lexer) lexNumber() *LexError {
	pos := l.here()
	start := l.pos

	var sign byte
	if c := l.input[l.pos]; c == '+' || c == '-' {
		sign = c
		l.advance()
		if l.pos >= len(l.input) || l.input[l.pos] != '0' {
			return l.errHere()
		}
	}
	l.advance() // '0'
	if l.pos >= len(l.input) || l.input[l.pos] != 'x' {
		return l.errHere()
	}
	l.advance()

	if err := l.consumeHexDigits(sign); err != nil {
		return err
	}
	if !l.atTokenBoundary() {
		return l.errHere()
	}

	text := l.input[start:l.pos]
	if sign != 0 {
		l.tokens = append(l.tokens, newHexToken(text, pos))
	} else {
		l.tokens = append(l.tokens, newUhexToken(text, pos))
	}
	return nil
}

// consumeHexDigits consumes 1-16 hex digits. For signed mantissas (sign is
// '+' or '-') a sixteen-digit value is bounds-checked so it fits int64;
// the minimum -0x8000000000000000 is accepted.
func (l *Lexer) consumeHexDigits(sign byte) *LexError {
	if l.pos >= len(l.input) || !isHexDigit(l.input[l.pos]) {
		return l.errHere()
	}
	digitStart := l.pos
	digits := 0
	for l.pos < len(l.input) && isHexDigit(l.input[l.pos]) {
		digits++
		if digits > 16 {
			return l.errHere()
		}
		if digits == 16 && sign != 0 {
			v := ReadHex(l.input[digitStart : digitStart+16])
			if sign == '-' && v > 1<<63 {
				return l.errHere()
			}
			if sign == '+' && v > math.MaxInt64 {
				return l.errHere()
			}
		}
		l.advance()
	}
	return nil
}

// lexString reads a '"…"' literal. Backslash consumes the next byte
// verbatim; escape resolution happens at token construction. The literal
// may span lines.
func (l *Lexer) lexString() *LexError {
	pos := l.here()
	start := l.pos
	l.advance() // opening quote
	for {
		if l.pos >= len(l.input) {
			return l.errHere()
		}
		c := l.input[l.pos]
		l.advance()
		if c == '\\' {
			if l.pos >= len(l.input) {
				return l.errHere()
			}
			l.advance()
			continue
		}
		if c == '"' {
			break
		}
	}
	l.tokens = append(l.tokens, newStringToken(l.input[start:l.pos], pos))
	return nil
}

// lexDirective reads "." followed by an identifier.
func (l *Lexer) lexDirective() *LexError {
	pos := l.here()
	start := l.pos
	l.advance() // '.'
	if l.pos >= len(l.input) || !isIdentHead(l.input[l.pos]) {
		return l.errHere()
	}
	if err := l.consumeIdent(); err != nil {
		return err
	}
	text := l.input[start:l.pos]
	l.tokens = append(l.tokens, Token{Type: TokenDirective, Text: text, Pos: pos, Str: text[1:]})
	return nil
}

// lexKeyword reads a bare identifier.
func (l *Lexer) lexKeyword() *LexError {
	pos := l.here()
	start := l.pos
	if err := l.consumeIdent(); err != nil {
		return err
	}
	text := l.input[start:l.pos]
	l.tokens = append(l.tokens, Token{Type: TokenKeyword, Text: text, Pos: pos, Str: text})
	return nil
}

// lexLabel reads ":" + identifier, optionally promoted to LABEL_O by a
// "±0xHEX" offset suffix.
func (l *Lexer) lexLabel() *LexError {
	pos := l.here()
	start := l.pos
	l.advance() // ':'
	if l.pos >= len(l.input) || !isIdentHead(l.input[l.pos]) {
		return l.errHere()
	}
	l.advance()

	dotted := false
	offsetStart := 0
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if isIdentTail(c) {
			l.advance()
			continue
		}
		if c == '.' && !dotted {
			l.advance()
			if l.pos >= len(l.input) || !isIdentHead(l.input[l.pos]) {
				return l.errHere()
			}
			dotted = true
			l.advance()
			continue
		}
		if c == '+' || c == '-' {
			offsetStart = l.pos - start
			l.advance()
			if l.pos >= len(l.input) || l.input[l.pos] != '0' {
				return l.errHere()
			}
			l.advance()
			if l.pos >= len(l.input) || l.input[l.pos] != 'x' {
				return l.errHere()
			}
			l.advance()
			if err := l.consumeHexDigits(c); err != nil {
				return err
			}
		}
		break
	}
	if !l.atTokenBoundary() {
		return l.errHere()
	}
	l.tokens = append(l.tokens, newLabelToken(l.input[start:l.pos], offsetStart, pos))
	return nil
}

// consumeIdent consumes an identifier starting at the current position:
// an identifier head, identifier tail characters, and at most one "."
// separated segment.
func (l *Lexer) consumeIdent() *LexError {
	l.advance() // identifier head
	dotted := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if isIdentTail(c) {
			l.advance()
			continue
		}
		if c == '.' && !dotted {
			l.advance()
			if l.pos >= len(l.input) || !isIdentHead(l.input[l.pos]) {
				return l.errHere()
			}
			dotted = true
			l.advance()
			continue
		}
		break
	}
	if !l.atTokenBoundary() {
		return l.errHere()
	}
	return nil
}

// atTokenBoundary reports whether the current byte may legally follow a
// hex, label, keyword or directive token.
func (l *Lexer) atTokenBoundary() bool {
	if l.pos >= len(l.input) {
		return true
	}
	switch l.input[l.pos] {
	case ' ', '\t', '\r', '\v', '\f', '\n':
		return true
	}
	return false
}

// advance consumes the current byte, maintaining line and column counters.
func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
}

func (l *Lexer) here() Position {
	return Position{Filename: l.filename, Line: l.line, Column: l.column}
}

func (l *Lexer) errHere() *LexError {
	return &LexError{Pos: l.here()}
}

func isIdentHead(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentTail(c byte) bool {
	return isIdentHead(c) || (c >= '0' && c <= '9')
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
