package linker

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/sharemind-vm/smas/assembler"
	"github.com/sharemind-vm/smas/exe"
	"github.com/sharemind-vm/smas/instr"
	"github.com/sharemind-vm/smas/parser"
)

func assemble(t *testing.T, source string) *exe.Executable {
	t.Helper()
	tokens, lexErr := parser.Tokenize(source, "test.sma")
	if lexErr != nil {
		t.Fatalf("Tokenize failed: %v", lexErr)
	}
	x, err := assembler.Assemble(tokens, instr.Builtin())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	return x
}

func link(t *testing.T, x *exe.Executable) []byte {
	t.Helper()
	image, err := Link(x, 0)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	return image
}

func TestCommonHeader(t *testing.T) {
	image := link(t, assemble(t, "nop\n"))

	wantMagic := make([]byte, 32)
	copy(wantMagic, "Sharemind Executable")
	if !bytes.Equal(image[:32], wantMagic) {
		t.Errorf("Magic mismatch: %q", image[:32])
	}
	if got := binary.LittleEndian.Uint64(image[32:40]); got != 0x0123456789ABCDEF {
		t.Errorf("Byte order marker: expected 0x0123456789ABCDEF, got 0x%x", got)
	}
	if got := binary.LittleEndian.Uint16(image[40:42]); got != 0 {
		t.Errorf("Version: expected 0, got %d", got)
	}
}

func TestHeader0x0(t *testing.T) {
	x := assemble(t, "nop\n.linking_unit 0x1\nhalt 0x0\n")
	x.ActiveUnit = 1
	image := link(t, x)

	hdr := image[commonHeaderSize : commonHeaderSize+header0x0Size]
	if hdr[0] != 1 {
		t.Errorf("numberOfUnitsMinusOne: expected 1, got %d", hdr[0])
	}
	if hdr[1] != 1 {
		t.Errorf("activeLinkingUnit: expected 1, got %d", hdr[1])
	}
	if !bytes.Equal(hdr[2:], []byte{0, 0, 0, 0}) {
		t.Errorf("Expected zero padding, got %v", hdr[2:])
	}
}

func TestUnitAndSectionHeaders(t *testing.T) {
	image := link(t, assemble(t, "nop\nhalt 0x0\n"))

	unit := image[commonHeaderSize+header0x0Size:]
	wantTag := make([]byte, 32)
	copy(wantTag, "Linking Unit")
	if !bytes.Equal(unit[:32], wantTag) {
		t.Errorf("Unit type tag mismatch: %q", unit[:32])
	}
	if unit[32] != 0 { // one section present
		t.Errorf("sectionsMinusOne: expected 0, got %d", unit[32])
	}

	section := unit[unitHeaderSize:]
	wantName := make([]byte, 32)
	copy(wantName, "TEXT")
	if !bytes.Equal(section[:32], wantName) {
		t.Errorf("Section type tag mismatch: %q", section[:32])
	}
	if got := binary.LittleEndian.Uint32(section[32:36]); got != 3 {
		t.Errorf("TEXT length: expected 3 code blocks, got %d", got)
	}

	// TEXT payload is exactly length*8 bytes with no trailing padding.
	payload := section[sectionHeaderSize:]
	if len(payload) != 3*8 {
		t.Errorf("Expected 24 payload bytes, got %d", len(payload))
	}
	if got := binary.LittleEndian.Uint64(payload[:8]); got != 0 {
		t.Errorf("First code block: expected nop opcode 0, got 0x%x", got)
	}
}

func TestPaddingLaw(t *testing.T) {
	// 5 payload bytes need 3 zero bytes of padding.
	image := link(t, assemble(t, ".section RODATA\n.data uint32 0x11223344\n.data uint8 0xaa\n"))

	section := image[commonHeaderSize+header0x0Size+unitHeaderSize:]
	if got := binary.LittleEndian.Uint32(section[32:36]); got != 5 {
		t.Fatalf("RODATA length: expected 5, got %d", got)
	}
	payload := section[sectionHeaderSize:]
	want := []byte{0x44, 0x33, 0x22, 0x11, 0xaa, 0, 0, 0}
	if !bytes.Equal(payload, want) {
		t.Errorf("Expected payload+padding %#x, got %#x", want, payload)
	}
	if len(image)%8 != 0 { // 42+6 header bytes, 40-byte unit/section headers, padded payloads
		t.Errorf("Image length %d is not 8-aligned", len(image))
	}
}

func TestBssHasNoPayload(t *testing.T) {
	image := link(t, assemble(t, ".section BSS\n.fill 0x100 uint32\n"))

	section := image[commonHeaderSize+header0x0Size+unitHeaderSize:]
	wantName := make([]byte, 32)
	copy(wantName, "BSS")
	if !bytes.Equal(section[:32], wantName) {
		t.Fatalf("Section type tag mismatch: %q", section[:32])
	}
	if got := binary.LittleEndian.Uint32(section[32:36]); got != 1024 {
		t.Errorf("BSS length: expected 1024, got %d", got)
	}
	if rest := section[sectionHeaderSize:]; len(rest) != 0 {
		t.Errorf("BSS must have no payload bytes, got %d", len(rest))
	}
}

func TestSectionOrder(t *testing.T) {
	// Written in reverse source order; serialized in enumeration order.
	image := link(t, assemble(t,
		".section DEBUG\n.data uint8 0x1\n.section BSS\n.data uint8\n.section RODATA\n.data uint8 0x2\n.section TEXT\nnop\n"))

	var names []string
	pos := commonHeaderSize + header0x0Size + unitHeaderSize
	for pos < len(image) {
		name := string(bytes.TrimRight(image[pos:pos+32], "\x00"))
		names = append(names, name)
		length := binary.LittleEndian.Uint32(image[pos+32 : pos+36])
		pos += sectionHeaderSize + int(payloadSize(sectionType(t, name), uint64(length)))
	}
	want := []string{"TEXT", "RODATA", "BSS", "DEBUG"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected section order %v, got %v", want, names)
	}
}

func sectionType(t *testing.T, name string) exe.SectionType {
	t.Helper()
	st, ok := exe.SectionTypeByName(name)
	if !ok {
		t.Fatalf("Unknown section name %q", name)
	}
	return st
}

func TestBindPayload(t *testing.T) {
	image := link(t, assemble(t, ".section BIND\n.bind \"a\"\n.bind \"bc\"\n"))

	section := image[commonHeaderSize+header0x0Size+unitHeaderSize:]
	if got := binary.LittleEndian.Uint32(section[32:36]); got != 5 {
		t.Fatalf("BIND length: expected 5, got %d", got)
	}
	payload := section[sectionHeaderSize:]
	want := []byte{'a', 0, 'b', 'c', 0, 0, 0, 0}
	if !bytes.Equal(payload, want) {
		t.Errorf("Expected %#x, got %#x", want, payload)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	_, err := Link(assemble(t, "nop\n"), 1)
	if err == nil {
		t.Fatal("Expected error for version 1")
	}
	var linkErr *Error
	if !asLinkError(err, &linkErr) || linkErr.Kind != ErrUnsupportedVersion {
		t.Errorf("Expected UnsupportedVersion, got %v", err)
	}
}

func TestEmptyUnitRejected(t *testing.T) {
	_, err := Link(exe.NewExecutable(), 0)
	if err == nil {
		t.Fatal("Expected error for executable with an empty unit")
	}
	var linkErr *Error
	if !asLinkError(err, &linkErr) || linkErr.Kind != ErrEmptyLinkingUnit {
		t.Errorf("Expected EmptyLinkingUnit, got %v", err)
	}
}

func TestSectionTooLarge(t *testing.T) {
	x := exe.NewExecutable()
	x.Units[0].Section(exe.SectionBss).Size = 1 << 33
	_, err := Link(x, 0)
	if err == nil {
		t.Fatal("Expected error for oversized section")
	}
	var linkErr *Error
	if !asLinkError(err, &linkErr) || linkErr.Kind != ErrExecutableTooLarge {
		t.Errorf("Expected ExecutableTooLarge, got %v", err)
	}
}

func asLinkError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}

func TestRoundTrip(t *testing.T) {
	source := ":start nop\n" +
		"mov imm reg :msg 0x0\n" +
		"syscall imm 0x0\n" +
		"jmp imm :start\n" +
		".section RODATA\n:msg .data string \"hello\\0\"\n" +
		".section DATA\n.fill 0x4 uint64 0x1122334455667788\n" +
		".section BSS\n.fill 0x10 uint64\n" +
		".section BIND\n.bind \"sys_print\"\n" +
		".section PDBIND\n.bind \"pd_shared\"\n" +
		".section DEBUG\n.data string \"v1\"\n" +
		".linking_unit 0x1\nnop\nhalt 0x0\n"
	x := assemble(t, source)
	x.ActiveUnit = 1

	image := link(t, x)
	back, version, err := Read(image)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if version != 0 {
		t.Errorf("Expected version 0, got %d", version)
	}
	if !reflect.DeepEqual(x, back) {
		t.Errorf("Round trip mismatch:\n got %#v\nwant %#v", back, x)
	}
}

func TestReadRejectsCorruptImages(t *testing.T) {
	good := link(t, assemble(t, "nop\n.section RODATA\n.data uint8 0x1\n"))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad byte order", func(b []byte) []byte { b[33] ^= 0xff; return b }},
		{"future version", func(b []byte) []byte { b[40] = 9; return b }},
		{"nonzero padding", func(b []byte) []byte { b[len(b)-1] = 0xee; return b }},
		{"trailing garbage", func(b []byte) []byte { return append(b, 0) }},
	}
	for _, tt := range tests {
		mutated := tt.mutate(append([]byte(nil), good...))
		if _, _, err := Read(mutated); err == nil {
			t.Errorf("%s: expected read error", tt.name)
		}
	}
}
