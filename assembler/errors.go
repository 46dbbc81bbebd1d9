package assembler

import (
	"fmt"

	"github.com/sharemind-vm/smas/parser"
)

// ErrorKind categorizes assembly failures.
type ErrorKind int

const (
	ErrOutOfMemory ErrorKind = iota
	ErrUnexpectedToken
	ErrUnexpectedEOF
	ErrDuplicateLabel
	ErrUnknownDirective
	ErrUnknownInstruction
	ErrInvalidNumberOfParameters
	ErrInvalidParameter
	ErrUndefinedLabel
	ErrInvalidLabel
	ErrInvalidLabelOffset
)

var errorKindNames = map[ErrorKind]string{
	ErrOutOfMemory:               "out of memory",
	ErrUnexpectedToken:           "unexpected token",
	ErrUnexpectedEOF:             "unexpected end of file",
	ErrDuplicateLabel:            "duplicate label",
	ErrUnknownDirective:          "unknown directive",
	ErrUnknownInstruction:        "unknown instruction",
	ErrInvalidNumberOfParameters: "invalid number of parameters",
	ErrInvalidParameter:          "invalid parameter",
	ErrUndefinedLabel:            "undefined label",
	ErrInvalidLabel:              "invalid label",
	ErrInvalidLabelOffset:        "invalid label offset",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a structured assembly failure. Token points at the offending
// token when one is known; Detail carries a decoded string such as an
// unknown mnemonic. The assembler never prints; callers render the error
// against the source buffer.
type Error struct {
	Kind   ErrorKind
	Token  *parser.Token
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Token != nil {
		return fmt.Sprintf("%s: error: %s (near %q)", e.Token.Pos, msg, e.Token.Text)
	}
	return msg
}

func errAt(kind ErrorKind, t *parser.Token) *Error {
	return &Error{Kind: kind, Token: t}
}
