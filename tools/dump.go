package tools

import (
	"fmt"
	"strings"

	"github.com/sharemind-vm/smas/exe"
	"github.com/sharemind-vm/smas/instr"
)

// Dump renders a human-readable listing of an executable: one block per
// linking unit, one sub-block per non-empty section. TEXT sections list
// 8-byte code blocks annotated with mnemonics from the instruction
// directory; byte sections print a hex dump.
func Dump(x *exe.Executable, table *instr.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "executable: %d linking unit(s), active unit %d\n",
		len(x.Units), x.ActiveUnit)

	for ui, lu := range x.Units {
		fmt.Fprintf(&sb, "\nlinking unit %d (%d section(s))\n", ui, lu.SectionCount())
		for t := exe.SectionType(0); t < exe.SectionTypeCount; t++ {
			sec := lu.Section(t)
			if sec.IsEmpty(t) {
				continue
			}
			dumpSection(&sb, t, sec, table)
		}
	}
	return sb.String()
}

func dumpSection(sb *strings.Builder, t exe.SectionType, sec *exe.Section, table *instr.Table) {
	switch t {
	case exe.SectionText:
		fmt.Fprintf(sb, "  %s: %d code block(s)\n", t, len(sec.Code))
		dumpCode(sb, sec.Code, table)
	case exe.SectionBss:
		fmt.Fprintf(sb, "  %s: %d byte(s) reserved\n", t, sec.Size)
	case exe.SectionBind, exe.SectionPdBind:
		fmt.Fprintf(sb, "  %s: %d binding(s)\n", t, len(sec.Bindings))
		for i, b := range sec.Bindings {
			fmt.Fprintf(sb, "    %4d  %s\n", i, b)
		}
	default:
		fmt.Fprintf(sb, "  %s: %d byte(s)\n", t, len(sec.Data))
		dumpBytes(sb, sec.Data)
	}
}

// dumpCode lists code blocks, consuming argument slots of each recognized
// instruction so immediates are not misread as opcodes.
func dumpCode(sb *strings.Builder, code []uint64, table *instr.Table) {
	for i := 0; i < len(code); {
		block := code[i]
		ins, ok := table.ByCode(block)
		if !ok || i+1+ins.NumArgs > len(code) {
			fmt.Fprintf(sb, "    %4d  0x%016x\n", i, block)
			i++
			continue
		}
		fmt.Fprintf(sb, "    %4d  0x%016x  %s\n", i, block, ins.Name)
		i++
		for a := 0; a < ins.NumArgs; a++ {
			fmt.Fprintf(sb, "    %4d  0x%016x\n", i, code[i])
			i++
		}
	}
}

const bytesPerLine = 16

func dumpBytes(sb *strings.Builder, data []byte) {
	for off := 0; off < len(data); off += bytesPerLine {
		end := off + bytesPerLine
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		fmt.Fprintf(sb, "    %08x  ", off)
		for i := 0; i < bytesPerLine; i++ {
			if i < len(line) {
				fmt.Fprintf(sb, "%02x ", line[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString(" |")
		for _, b := range line {
			if b >= 0x20 && b < 0x7f {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
}
