// Package tools provides the developer-facing helpers around the assembler
// core: the token stream pretty-printer and the executable dump listing.
package tools

import (
	"strings"

	"github.com/sharemind-vm/smas/parser"
)

// FormatTokens renders a token stream for inspection, one output line per
// logical source line. Each token prints as its type name, followed by the
// raw source span in parentheses for payload-carrying tokens.
func FormatTokens(tokens []parser.Token) string {
	var sb strings.Builder
	lineStart := true
	for _, t := range tokens {
		if !lineStart {
			sb.WriteByte(' ')
		}
		lineStart = false

		sb.WriteString(t.Type.String())
		if t.Type == parser.TokenNewline {
			sb.WriteByte('\n')
			lineStart = true
			continue
		}
		sb.WriteByte('(')
		sb.WriteString(t.Text)
		sb.WriteByte(')')
	}
	if !lineStart {
		sb.WriteByte('\n')
	}
	return sb.String()
}
