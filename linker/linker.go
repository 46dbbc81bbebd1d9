// Package linker serializes an in-memory executable into the versioned
// binary file format, and parses such images back. It performs no I/O.
package linker

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sharemind-vm/smas/exe"
)

const (
	// magicString opens every executable file, NUL-padded to 32 bytes.
	magicString = "Sharemind Executable"

	// byteOrderMarker is stored little-endian; readers use it to verify
	// byte order.
	byteOrderMarker uint64 = 0x0123456789ABCDEF

	// unitTypeTag opens every linking unit header, NUL-padded to 32 bytes.
	unitTypeTag = "Linking Unit"

	// FormatVersionLatest is the highest file format version this linker
	// can produce.
	FormatVersionLatest uint16 = 0

	commonHeaderSize  = 32 + 8 + 2
	header0x0Size     = 6
	unitHeaderSize    = 32 + 1 + 7
	sectionHeaderSize = 32 + 4 + 4
)

// extraPadding[n] is the number of zero bytes appended after a payload of
// n mod 8 bytes so the next header aligns to 8.
var extraPadding = [8]uint64{0, 7, 6, 5, 4, 3, 2, 1}

// Link serializes the executable into a byte image of the given file
// format version. Only version 0 is defined.
func Link(x *exe.Executable, version uint16) ([]byte, error) {
	if version > FormatVersionLatest {
		return nil, &Error{Kind: ErrUnsupportedVersion, Detail: fmt.Sprintf("version %d", version)}
	}
	if len(x.Units) == 0 {
		return nil, &Error{Kind: ErrEmptyLinkingUnit, Detail: "executable has no linking units"}
	}
	if len(x.Units) > exe.MaxLinkingUnits {
		return nil, &Error{Kind: ErrExecutableTooLarge, Detail: "number of linking units"}
	}

	size, err := imageSize(x)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, size)
	buf = appendFixedString(buf, magicString, 32)
	buf = binary.LittleEndian.AppendUint64(buf, byteOrderMarker)
	buf = binary.LittleEndian.AppendUint16(buf, version)

	buf = append(buf, uint8(len(x.Units)-1), x.ActiveUnit, 0, 0, 0, 0)

	for _, lu := range x.Units {
		buf = appendUnit(buf, lu)
	}
	return buf, nil
}

// imageSize computes the total output size up front, with capacity checks
// on every dimension.
func imageSize(x *exe.Executable) (uint64, *Error) {
	size := uint64(commonHeaderSize + header0x0Size)
	for ui, lu := range x.Units {
		if lu.SectionCount() == 0 {
			return 0, &Error{Kind: ErrEmptyLinkingUnit, Detail: fmt.Sprintf("linking unit %d", ui)}
		}
		size, _ = addSize(size, unitHeaderSize)
		for t := exe.SectionType(0); t < exe.SectionTypeCount; t++ {
			sec := lu.Section(t)
			length := sec.Length(t)
			if length == 0 {
				continue
			}
			if length > math.MaxUint32 {
				return 0, &Error{
					Kind:   ErrExecutableTooLarge,
					Detail: fmt.Sprintf("%s section of linking unit %d", t, ui),
				}
			}
			var ok bool
			if size, ok = addSize(size, sectionHeaderSize+payloadSize(t, length)); !ok {
				return 0, &Error{Kind: ErrExecutableTooLarge, Detail: "total image size"}
			}
		}
	}
	return size, nil
}

// payloadSize is the number of payload-plus-padding bytes a section of the
// given length occupies in the image.
func payloadSize(t exe.SectionType, length uint64) uint64 {
	switch t {
	case exe.SectionText:
		return length * 8
	case exe.SectionBss:
		return 0
	default:
		return length + extraPadding[length%8]
	}
}

func addSize(a, b uint64) (uint64, bool) {
	if b > math.MaxUint64-a {
		return 0, false
	}
	return a + b, true
}

func appendUnit(buf []byte, lu *exe.LinkingUnit) []byte {
	buf = appendFixedString(buf, unitTypeTag, 32)
	buf = append(buf, uint8(lu.SectionCount()-1), 0, 0, 0, 0, 0, 0, 0)

	for t := exe.SectionType(0); t < exe.SectionTypeCount; t++ {
		sec := lu.Section(t)
		length := sec.Length(t)
		if length == 0 {
			continue
		}
		buf = appendFixedString(buf, t.String(), 32)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
		buf = append(buf, 0, 0, 0, 0)

		switch t {
		case exe.SectionText:
			for _, block := range sec.Code {
				buf = binary.LittleEndian.AppendUint64(buf, block)
			}
		case exe.SectionBss:
			// Size only, no payload bytes.
		case exe.SectionBind, exe.SectionPdBind:
			for _, b := range sec.Bindings {
				buf = append(buf, b...)
				buf = append(buf, 0)
			}
			buf = appendZeros(buf, extraPadding[length%8])
		default:
			buf = append(buf, sec.Data...)
			buf = appendZeros(buf, extraPadding[length%8])
		}
	}
	return buf
}

func appendFixedString(buf []byte, s string, n int) []byte {
	field := make([]byte, n)
	copy(field, s)
	return append(buf, field...)
}

func appendZeros(buf []byte, n uint64) []byte {
	for i := uint64(0); i < n; i++ {
		buf = append(buf, 0)
	}
	return buf
}
