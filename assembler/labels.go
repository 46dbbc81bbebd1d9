package assembler

import (
	"github.com/sharemind-vm/smas/exe"
	"github.com/sharemind-vm/smas/parser"
)

// labelLocation is the resolved position of a defined label. Pseudo
// built-in labels (RODATA, DATA, BSS) carry a sentinel offset that the VM
// interprets as a section selector; they belong to no unit or section.
type labelLocation struct {
	unit    int
	section exe.SectionType
	offset  uint64
	pseudo  bool
}

// labelSlot is a pending reference to an as-yet-undefined label. It records
// the index of the code block to overwrite once the label resolves; indices
// stay valid while the section grows.
type labelSlot struct {
	unit         int
	section      exe.SectionType
	index        uint64 // code block index within the TEXT section
	extraOffset  int64
	jumpRelative bool
	jumpOrigin   uint64
	token        *parser.Token
}

// newLabelTable returns the location map seeded with the three built-in
// pseudo-labels and their section-selector sentinels.
func newLabelTable() map[string]labelLocation {
	return map[string]labelLocation{
		"RODATA": {offset: 1, pseudo: true},
		"DATA":   {offset: 2, pseudo: true},
		"BSS":    {offset: 3, pseudo: true},
	}
}
