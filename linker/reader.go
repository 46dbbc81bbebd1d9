package linker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/sharemind-vm/smas/exe"
)

// Read parses a serialized executable image back into its in-memory form,
// verifying the magic string, byte-order marker, version and all header
// fields. It returns the executable and the file format version.
func Read(data []byte) (*exe.Executable, uint16, error) {
	r := &reader{data: data}

	magic, err := r.take(32)
	if err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(magic, paddedTag(magicString)) {
		return nil, 0, &Error{Kind: ErrInvalidHeader, Detail: "magic string mismatch"}
	}
	marker, err := r.take(8)
	if err != nil {
		return nil, 0, err
	}
	if binary.LittleEndian.Uint64(marker) != byteOrderMarker {
		return nil, 0, &Error{Kind: ErrInvalidHeader, Detail: "byte order marker mismatch"}
	}
	versionBytes, err := r.take(2)
	if err != nil {
		return nil, 0, err
	}
	version := binary.LittleEndian.Uint16(versionBytes)
	if version > FormatVersionLatest {
		return nil, 0, &Error{Kind: ErrUnsupportedVersion, Detail: fmt.Sprintf("version %d", version)}
	}

	hdr, err := r.take(header0x0Size)
	if err != nil {
		return nil, 0, err
	}
	numUnits := int(hdr[0]) + 1
	x := &exe.Executable{ActiveUnit: hdr[1]}
	if int(x.ActiveUnit) >= numUnits {
		return nil, 0, &Error{Kind: ErrInvalidHeader, Detail: "active linking unit out of range"}
	}

	for ui := 0; ui < numUnits; ui++ {
		lu, err := r.readUnit(ui)
		if err != nil {
			return nil, 0, err
		}
		x.Units = append(x.Units, lu)
	}
	if len(r.data) != r.pos {
		return nil, 0, &Error{Kind: ErrInvalidHeader, Detail: "trailing bytes after last linking unit"}
	}
	return x, version, nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) take(n int) ([]byte, *Error) {
	if len(r.data)-r.pos < n {
		return nil, &Error{Kind: ErrTruncated}
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readUnit(ui int) (*exe.LinkingUnit, *Error) {
	hdr, err := r.take(unitHeaderSize)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(hdr[:32], paddedTag(unitTypeTag)) {
		return nil, &Error{Kind: ErrInvalidHeader, Detail: fmt.Sprintf("linking unit %d type tag", ui)}
	}
	numSections := int(hdr[32]) + 1

	lu := &exe.LinkingUnit{}
	for si := 0; si < numSections; si++ {
		if err := r.readSection(lu); err != nil {
			return nil, err
		}
	}
	return lu, nil
}

func (r *reader) readSection(lu *exe.LinkingUnit) *Error {
	hdr, err := r.take(sectionHeaderSize)
	if err != nil {
		return err
	}
	name := strings.TrimRight(string(hdr[:32]), "\x00")
	t, ok := exe.SectionTypeByName(name)
	if !ok {
		return &Error{Kind: ErrInvalidHeader, Detail: fmt.Sprintf("unknown section type %q", name)}
	}
	length := binary.LittleEndian.Uint32(hdr[32:36])
	sec := lu.Section(t)

	switch t {
	case exe.SectionText:
		payload, err := r.take(int(length) * 8)
		if err != nil {
			return err
		}
		sec.Code = make([]uint64, length)
		for i := range sec.Code {
			sec.Code[i] = binary.LittleEndian.Uint64(payload[i*8:])
		}
	case exe.SectionBss:
		sec.Size = uint64(length)
	case exe.SectionBind, exe.SectionPdBind:
		payload, err := r.take(int(length))
		if err != nil {
			return err
		}
		if length > 0 && payload[length-1] != 0 {
			return &Error{Kind: ErrInvalidHeader, Detail: fmt.Sprintf("%s section not NUL-terminated", t)}
		}
		for _, sig := range strings.Split(strings.TrimSuffix(string(payload), "\x00"), "\x00") {
			sec.Bindings = append(sec.Bindings, sig)
		}
		if err := r.skipPadding(uint64(length), t); err != nil {
			return err
		}
	default:
		payload, err := r.take(int(length))
		if err != nil {
			return err
		}
		sec.Data = append([]byte(nil), payload...)
		if err := r.skipPadding(uint64(length), t); err != nil {
			return err
		}
	}
	return nil
}

// skipPadding consumes and verifies the zero bytes that align the next
// header to 8.
func (r *reader) skipPadding(length uint64, t exe.SectionType) *Error {
	pad, err := r.take(int(extraPadding[length%8]))
	if err != nil {
		return err
	}
	for _, b := range pad {
		if b != 0 {
			return &Error{Kind: ErrInvalidHeader, Detail: fmt.Sprintf("nonzero padding after %s section", t)}
		}
	}
	return nil
}

func paddedTag(s string) []byte {
	tag := make([]byte, 32)
	copy(tag, s)
	return tag
}
