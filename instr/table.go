package instr

import "sort"

// Table is a concrete instruction directory with reverse lookup by opcode,
// used by the dump and inspector tooling.
type Table struct {
	byName map[string]Instruction
	byCode map[uint64]Instruction
}

// Lookup resolves a mnemonic.
func (t *Table) Lookup(name string) (Instruction, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// ByCode resolves an opcode back to its instruction.
func (t *Table) ByCode(code uint64) (Instruction, bool) {
	i, ok := t.byCode[code]
	return i, ok
}

// Names returns all mnemonics in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instruction namespaces (opcode byte 0).
const (
	nsControl = 0x00
	nsMove    = 0x01
	nsStack   = 0x02
	nsAlu     = 0x03
	nsJump    = 0x04
	nsProc    = 0x05
)

// immFirst marks an immediate first operand (opcode byte 2).
const immFirst = 0x01

func opcode(ns, op, olb byte) uint64 {
	return uint64(ns) | uint64(op)<<8 | uint64(olb)<<16
}

var builtin *Table

func init() {
	defs := []Instruction{
		{"nop", opcode(nsControl, 0x00, 0), 0},
		{"halt", opcode(nsControl, 0x01, immFirst), 1},
		{"user_except", opcode(nsControl, 0x02, immFirst), 1},

		{"mov_imm_reg", opcode(nsMove, 0x00, immFirst), 2},
		{"mov_reg_reg", opcode(nsMove, 0x01, 0), 2},
		{"mov_reg_stack", opcode(nsMove, 0x02, 0), 2},
		{"mov_stack_reg", opcode(nsMove, 0x03, 0), 2},
		{"mov_imm_mem", opcode(nsMove, 0x04, immFirst), 3},
		{"mov_mem_reg", opcode(nsMove, 0x05, 0), 3},
		{"mov_reg_mem", opcode(nsMove, 0x06, 0), 3},

		{"push_imm", opcode(nsStack, 0x00, immFirst), 1},
		{"push_reg", opcode(nsStack, 0x01, 0), 1},
		{"pushref_reg", opcode(nsStack, 0x02, 0), 1},
		{"pushcref_reg", opcode(nsStack, 0x03, 0), 1},
		{"pop_reg", opcode(nsStack, 0x04, 0), 1},
		{"resizestack_imm", opcode(nsStack, 0x05, immFirst), 1},

		{"add_reg_reg_reg", opcode(nsAlu, 0x00, 0), 3},
		{"add_imm_reg_reg", opcode(nsAlu, 0x01, immFirst), 3},
		{"sub_reg_reg_reg", opcode(nsAlu, 0x02, 0), 3},
		{"sub_imm_reg_reg", opcode(nsAlu, 0x03, immFirst), 3},
		{"mul_reg_reg_reg", opcode(nsAlu, 0x04, 0), 3},
		{"mul_imm_reg_reg", opcode(nsAlu, 0x05, immFirst), 3},
		{"udiv_reg_reg_reg", opcode(nsAlu, 0x06, 0), 3},
		{"udiv_imm_reg_reg", opcode(nsAlu, 0x07, immFirst), 3},
		{"umod_reg_reg_reg", opcode(nsAlu, 0x08, 0), 3},
		{"umod_imm_reg_reg", opcode(nsAlu, 0x09, immFirst), 3},
		{"and_reg_reg_reg", opcode(nsAlu, 0x0a, 0), 3},
		{"and_imm_reg_reg", opcode(nsAlu, 0x0b, immFirst), 3},
		{"or_reg_reg_reg", opcode(nsAlu, 0x0c, 0), 3},
		{"or_imm_reg_reg", opcode(nsAlu, 0x0d, immFirst), 3},
		{"xor_reg_reg_reg", opcode(nsAlu, 0x0e, 0), 3},
		{"xor_imm_reg_reg", opcode(nsAlu, 0x0f, immFirst), 3},
		{"shl_reg_reg_reg", opcode(nsAlu, 0x10, 0), 3},
		{"shl_imm_reg_reg", opcode(nsAlu, 0x11, immFirst), 3},
		{"shr_reg_reg_reg", opcode(nsAlu, 0x12, 0), 3},
		{"shr_imm_reg_reg", opcode(nsAlu, 0x13, immFirst), 3},
		{"teq_reg_reg_reg", opcode(nsAlu, 0x14, 0), 3},
		{"tne_reg_reg_reg", opcode(nsAlu, 0x15, 0), 3},
		{"tlt_reg_reg_reg", opcode(nsAlu, 0x16, 0), 3},
		{"tle_reg_reg_reg", opcode(nsAlu, 0x17, 0), 3},
		{"tgt_reg_reg_reg", opcode(nsAlu, 0x18, 0), 3},
		{"tge_reg_reg_reg", opcode(nsAlu, 0x19, 0), 3},

		{"jmp_imm", opcode(nsJump, 0x00, immFirst), 1},
		{"jmp_reg", opcode(nsJump, 0x00, 0), 1},
		{"jz_imm_reg", opcode(nsJump, 0x01, immFirst), 2},
		{"jnz_imm_reg", opcode(nsJump, 0x02, immFirst), 2},

		{"call_imm", opcode(nsProc, 0x00, immFirst), 1},
		{"call_reg", opcode(nsProc, 0x01, 0), 1},
		{"return", opcode(nsProc, 0x02, 0), 0},
		{"syscall_imm", opcode(nsProc, 0x03, immFirst), 1},
		{"syscall_reg", opcode(nsProc, 0x04, 0), 1},
	}

	builtin = &Table{
		byName: make(map[string]Instruction, len(defs)),
		byCode: make(map[uint64]Instruction, len(defs)),
	}
	for _, d := range defs {
		builtin.byName[d.Name] = d
		builtin.byCode[d.Code] = d
	}
}

// Builtin returns the built-in SMVM instruction directory.
func Builtin() *Table {
	return builtin
}
