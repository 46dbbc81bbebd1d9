// Package assembler transforms a token stream into an in-memory executable
// in a single pass, back-patching forward label references as their
// definitions appear.
package assembler

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/sharemind-vm/smas/exe"
	"github.com/sharemind-vm/smas/instr"
	"github.com/sharemind-vm/smas/parser"
)

// Assemble consumes the token stream and produces an executable, consulting
// the instruction directory for mnemonics. The token slice is borrowed
// read-only. On failure the returned error is an *Error carrying the
// offending token; an unexpected end of stream carries no token.
func Assemble(tokens []parser.Token, set instr.Set) (*exe.Executable, error) {
	a := &assembler{
		tokens:  tokens,
		set:     set,
		x:       exe.NewExecutable(),
		section: exe.SectionText,
		labels:  newLabelTable(),
		pending: make(map[string][]labelSlot),
	}
	if err := a.run(); err != nil {
		return nil, err
	}
	return a.x, nil
}

type assembler struct {
	tokens []parser.Token
	pos    int
	set    instr.Set

	x         *exe.Executable
	unitIndex int
	section   exe.SectionType

	labels  map[string]labelLocation
	pending map[string][]labelSlot

	// pendingOrder preserves first-reference order so the undefined-label
	// report is deterministic.
	pendingOrder []string
}

func (a *assembler) run() *Error {
	for a.pos < len(a.tokens) {
		t := &a.tokens[a.pos]
		var err *Error
		switch t.Type {
		case parser.TokenNewline:
			a.pos++
		case parser.TokenLabel:
			err = a.defineLabel(t)
			a.pos++
		case parser.TokenDirective:
			err = a.directive(t)
		case parser.TokenKeyword:
			err = a.instruction(t)
		default:
			err = errAt(ErrUnexpectedToken, t)
		}
		if err != nil {
			return err
		}
	}
	return a.checkUndefined()
}

func (a *assembler) unit() *exe.LinkingUnit {
	return a.x.Units[a.unitIndex]
}

// writeOffset is the position a label defined here would resolve to: code
// blocks in TEXT, reserved bytes in BSS, the binding ordinal in BIND and
// PDBIND, and the byte length elsewhere.
func (a *assembler) writeOffset() uint64 {
	sec := a.unit().Section(a.section)
	if a.section == exe.SectionBind || a.section == exe.SectionPdBind {
		return uint64(len(sec.Bindings))
	}
	return sec.Length(a.section)
}

func (a *assembler) defineLabel(t *parser.Token) *Error {
	name := t.Str
	if _, exists := a.labels[name]; exists {
		return errAt(ErrDuplicateLabel, t)
	}
	loc := labelLocation{unit: a.unitIndex, section: a.section, offset: a.writeOffset()}
	a.labels[name] = loc

	for i := range a.pending[name] {
		if err := a.patchSlot(&a.pending[name][i], loc); err != nil {
			return err
		}
	}
	delete(a.pending, name)
	return nil
}

// patchSlot overwrites the slot's placeholder code block now that its label
// has resolved to loc.
func (a *assembler) patchSlot(s *labelSlot, loc labelLocation) *Error {
	absTarget := loc.offset
	if !AddSignedToUnsigned(&absTarget, s.extraOffset) {
		return errAt(ErrInvalidLabel, s.token)
	}
	code := a.x.Units[s.unit].Section(s.section).Code
	if !s.jumpRelative {
		code[s.index] = absTarget
		return nil
	}
	if s.unit != loc.unit || s.section != loc.section {
		return errAt(ErrInvalidLabel, s.token)
	}
	v, ok := SignedDifference(absTarget, s.jumpOrigin)
	if !ok {
		return errAt(ErrInvalidLabel, s.token)
	}
	code[s.index] = uint64(v)
	return nil
}

// next advances to the next token, returning nil at end of stream.
func (a *assembler) next() *parser.Token {
	a.pos++
	if a.pos >= len(a.tokens) {
		return nil
	}
	return &a.tokens[a.pos]
}

// expectEndOfLine requires the next token to be a NEWLINE (left for the
// main loop to consume) or the end of the stream.
func (a *assembler) expectEndOfLine() *Error {
	a.pos++
	if a.pos < len(a.tokens) && a.tokens[a.pos].Type != parser.TokenNewline {
		return errAt(ErrUnexpectedToken, &a.tokens[a.pos])
	}
	return nil
}

func (a *assembler) directive(t *parser.Token) *Error {
	switch t.Str {
	case "linking_unit":
		return a.linkingUnit()
	case "section":
		return a.sectionSwitch()
	case "data":
		if a.section == exe.SectionText || a.section == exe.SectionBind ||
			a.section == exe.SectionPdBind {
			return errAt(ErrUnexpectedToken, t)
		}
		return a.dataOrFill(1)
	case "fill":
		if a.section == exe.SectionText || a.section == exe.SectionBind ||
			a.section == exe.SectionPdBind {
			return errAt(ErrUnexpectedToken, t)
		}
		c := a.next()
		if c == nil {
			return &Error{Kind: ErrUnexpectedEOF}
		}
		if c.Type != parser.TokenUhex {
			return errAt(ErrInvalidParameter, c)
		}
		if c.Uint >= 65536 {
			return errAt(ErrInvalidParameter, c)
		}
		return a.dataOrFill(c.Uint)
	case "bind":
		return a.bind(t)
	default:
		return errAt(ErrUnknownDirective, t)
	}
}

func (a *assembler) linkingUnit() *Error {
	v := a.next()
	if v == nil {
		return &Error{Kind: ErrUnexpectedEOF}
	}
	if v.Type != parser.TokenUhex {
		return errAt(ErrInvalidParameter, v)
	}
	n := v.Uint
	if n > math.MaxUint8 {
		return errAt(ErrInvalidParameter, v)
	}
	if int(n) != a.unitIndex {
		switch {
		case n > uint64(len(a.x.Units)):
			return errAt(ErrInvalidParameter, v)
		case n == uint64(len(a.x.Units)):
			a.x.AddUnit()
		}
		a.unitIndex = int(n)
		a.section = exe.SectionText
	}
	return a.expectEndOfLine()
}

func (a *assembler) sectionSwitch() *Error {
	v := a.next()
	if v == nil {
		return &Error{Kind: ErrUnexpectedEOF}
	}
	if v.Type != parser.TokenKeyword {
		return errAt(ErrInvalidParameter, v)
	}
	st, ok := exe.SectionTypeByName(v.Str)
	if !ok {
		return errAt(ErrInvalidParameter, v)
	}
	a.section = st
	return a.expectEndOfLine()
}

func (a *assembler) bind(t *parser.Token) *Error {
	if a.section != exe.SectionBind && a.section != exe.SectionPdBind {
		return errAt(ErrUnexpectedToken, t)
	}
	v := a.next()
	if v == nil {
		return &Error{Kind: ErrUnexpectedEOF}
	}
	if v.Type != parser.TokenString {
		return errAt(ErrInvalidParameter, v)
	}
	sec := a.unit().Section(a.section)
	sec.Bindings = append(sec.Bindings, v.Str)
	return a.expectEndOfLine()
}

var dataWidths = map[string]struct {
	width    uint64
	signed   bool
	isString bool
}{
	"uint8":  {width: 1},
	"uint16": {width: 2},
	"uint32": {width: 4},
	"uint64": {width: 8},
	"int8":   {width: 1, signed: true},
	"int16":  {width: 2, signed: true},
	"int32":  {width: 4, signed: true},
	"int64":  {width: 8, signed: true},
	"string": {isString: true},
}

// dataOrFill implements ".data TYPE [VALUE]" and ".fill COUNT TYPE [VALUE]".
// A missing VALUE reserves zeroes of the element width (nothing for
// string). In BSS only the reserved size grows; no bytes are stored.
func (a *assembler) dataOrFill(multiplier uint64) *Error {
	tt := a.next()
	if tt == nil {
		return &Error{Kind: ErrUnexpectedEOF}
	}
	if tt.Type != parser.TokenKeyword {
		return errAt(ErrInvalidParameter, tt)
	}
	dt, ok := dataWidths[tt.Str]
	if !ok {
		return errAt(ErrInvalidParameter, tt)
	}

	var data []byte
	haveValue := false
	if v := a.next(); v != nil && v.Type != parser.TokenNewline {
		var err *Error
		data, err = encodeDataValue(dt.width, dt.signed, dt.isString, v)
		if err != nil {
			return err
		}
		haveValue = true
		if err := a.expectEndOfLine(); err != nil {
			return err
		}
	}

	elemLen := dt.width
	if haveValue {
		elemLen = uint64(len(data))
	} else if dt.isString {
		elemLen = 0
	}

	sec := a.unit().Section(a.section)
	if a.section == exe.SectionBss {
		sec.Size += multiplier * elemLen
		return nil
	}
	if data == nil {
		data = make([]byte, elemLen)
	}
	for i := uint64(0); i < multiplier; i++ {
		sec.Data = append(sec.Data, data...)
	}
	return nil
}

// encodeDataValue range-checks a .data/.fill value token against the
// element type and renders it as little-endian bytes.
func encodeDataValue(width uint64, signed, isString bool, v *parser.Token) ([]byte, *Error) {
	switch v.Type {
	case parser.TokenString:
		if !isString {
			return nil, errAt(ErrInvalidParameter, v)
		}
		return []byte(v.Str), nil
	case parser.TokenUhex:
		if isString {
			return nil, errAt(ErrInvalidParameter, v)
		}
		limit := uint64(math.MaxUint64)
		if signed {
			limit = uint64(math.MaxInt64) >> (64 - width*8)
		} else if width < 8 {
			limit = 1<<(width*8) - 1
		}
		if v.Uint > limit {
			return nil, errAt(ErrInvalidParameter, v)
		}
		return encodeLE(v.Uint, width), nil
	case parser.TokenHex:
		if isString {
			return nil, errAt(ErrInvalidParameter, v)
		}
		i := v.Int
		if signed {
			min := int64(math.MinInt64)
			max := int64(math.MaxInt64)
			if width < 8 {
				max = 1<<(width*8-1) - 1
				min = -max - 1
			}
			if i < min || i > max {
				return nil, errAt(ErrInvalidParameter, v)
			}
		} else {
			if i < 0 {
				return nil, errAt(ErrInvalidParameter, v)
			}
			if width < 8 && uint64(i) > 1<<(width*8)-1 {
				return nil, errAt(ErrInvalidParameter, v)
			}
		}
		return encodeLE(uint64(i), width), nil
	default:
		return nil, errAt(ErrInvalidParameter, v)
	}
}

func encodeLE(v uint64, width uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	out := make([]byte, width)
	copy(out, buf[:width])
	return out
}

// instruction assembles one instruction line: consecutive keywords join
// into the mnemonic with underscores, remaining tokens are arguments.
func (a *assembler) instruction(first *parser.Token) *Error {
	if a.section != exe.SectionText {
		return errAt(ErrUnexpectedToken, first)
	}

	var name strings.Builder
	name.WriteString(first.Str)
	args := 0
	lineEnd := a.pos + 1
	for lineEnd < len(a.tokens) && a.tokens[lineEnd].Type != parser.TokenNewline {
		tok := &a.tokens[lineEnd]
		switch tok.Type {
		case parser.TokenKeyword:
			name.WriteByte('_')
			name.WriteString(tok.Str)
		case parser.TokenHex, parser.TokenUhex, parser.TokenLabel, parser.TokenLabelO:
			args++
		default:
			return errAt(ErrInvalidParameter, tok)
		}
		lineEnd++
	}

	mnemonic := name.String()
	ins, ok := a.set.Lookup(mnemonic)
	if !ok {
		return &Error{Kind: ErrUnknownInstruction, Token: first, Detail: mnemonic}
	}
	if ins.NumArgs != args {
		return &Error{Kind: ErrInvalidNumberOfParameters, Token: first, Detail: mnemonic}
	}

	sec := a.unit().Section(a.section)
	jumpRelative := ins.RelativeJump()
	jumpOrigin := uint64(len(sec.Code))
	sec.Code = append(sec.Code, ins.Code)

	for i := a.pos + 1; i < lineEnd; i++ {
		tok := &a.tokens[i]
		switch tok.Type {
		case parser.TokenKeyword:
			// Part of the mnemonic, already encoded in the opcode.
			continue
		case parser.TokenUhex:
			sec.Code = append(sec.Code, tok.Uint)
		case parser.TokenHex:
			sec.Code = append(sec.Code, uint64(tok.Int))
		default: // LABEL, LABEL_O
			if err := a.labelArgument(tok, sec, jumpRelative, jumpOrigin); err != nil {
				return err
			}
		}
		jumpRelative = false // only the first argument is jump-relative
	}

	a.pos = lineEnd
	return nil
}

// labelArgument writes one label operand slot: immediately when the label
// is already defined, otherwise a zero placeholder plus a pending slot.
func (a *assembler) labelArgument(tok *parser.Token, sec *exe.Section, jumpRelative bool, jumpOrigin uint64) *Error {
	name, off := tok.Str, tok.Int
	loc, defined := a.labels[name]
	if !defined {
		index := uint64(len(sec.Code))
		sec.Code = append(sec.Code, 0)
		if _, seen := a.pending[name]; !seen {
			a.pendingOrder = append(a.pendingOrder, name)
		}
		a.pending[name] = append(a.pending[name], labelSlot{
			unit:         a.unitIndex,
			section:      a.section,
			index:        index,
			extraOffset:  off,
			jumpRelative: jumpRelative,
			jumpOrigin:   jumpOrigin,
			token:        tok,
		})
		return nil
	}

	if jumpRelative {
		if loc.pseudo || loc.section != exe.SectionText || loc.unit != a.unitIndex {
			return errAt(ErrInvalidLabel, tok)
		}
		absTarget := loc.offset
		if !AddSignedToUnsigned(&absTarget, off) {
			return errAt(ErrInvalidLabelOffset, tok)
		}
		v, ok := SignedDifference(absTarget, jumpOrigin)
		if !ok {
			return errAt(ErrInvalidLabelOffset, tok)
		}
		sec.Code = append(sec.Code, uint64(v))
		return nil
	}

	if loc.pseudo {
		if off != 0 {
			return errAt(ErrInvalidLabelOffset, tok)
		}
		sec.Code = append(sec.Code, loc.offset)
		return nil
	}

	absTarget := loc.offset
	if !AddSignedToUnsigned(&absTarget, off) {
		return errAt(ErrInvalidLabelOffset, tok)
	}
	sec.Code = append(sec.Code, absTarget)
	return nil
}

func (a *assembler) checkUndefined() *Error {
	for _, name := range a.pendingOrder {
		if slots, ok := a.pending[name]; ok && len(slots) > 0 {
			return &Error{Kind: ErrUndefinedLabel, Token: slots[0].token, Detail: name}
		}
	}
	return nil
}
