// Package instr is the SMVM instruction directory: a read-only mapping from
// instruction mnemonics to opcodes and argument counts.
package instr

// Instruction describes one SMVM instruction. Code occupies a full 8-byte
// code block; the low bytes carry the namespace and operand layout:
// byte 0 is the namespace, byte 1 the operation within it, and byte 2 the
// operand layout bits (0x01 marks an immediate first operand).
type Instruction struct {
	Name    string
	Code    uint64
	NumArgs int
}

// RelativeJump reports whether the first argument of this instruction is a
// jump-relative immediate: namespace 0x04 with the immediate-first-operand
// marker set.
func (i Instruction) RelativeJump() bool {
	return byte(i.Code) == 0x04 && byte(i.Code>>16) == 0x01
}

// Set is the read-only lookup interface consumed by the assembler.
type Set interface {
	Lookup(name string) (Instruction, bool)
}
