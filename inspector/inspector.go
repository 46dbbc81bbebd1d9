// Package inspector is an interactive terminal browser for assembled
// executables: linking units and sections on the left, payload detail on
// the right.
package inspector

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sharemind-vm/smas/exe"
	"github.com/sharemind-vm/smas/instr"
	"github.com/sharemind-vm/smas/tools"
)

// Inspector represents the text user interface for browsing an executable
type Inspector struct {
	Executable *exe.Executable
	Table      *instr.Table
	Title      string

	App        *tview.Application
	MainLayout *tview.Flex

	// View panels
	TreeView   *tview.TreeView
	DetailView *tview.TextView
	StatusBar  *tview.TextView
}

// New creates a new inspector for the given executable
func New(x *exe.Executable, table *instr.Table, title string) *Inspector {
	ins := &Inspector{
		Executable: x,
		Table:      table,
		Title:      title,
		App:        tview.NewApplication(),
	}

	ins.initializeViews()
	ins.buildLayout()
	ins.setupKeyBindings()

	return ins
}

// Run starts the interactive loop and blocks until the user quits.
func Run(x *exe.Executable, table *instr.Table, title string) error {
	ins := New(x, table, title)
	return ins.App.SetRoot(ins.MainLayout, true).SetFocus(ins.TreeView).Run()
}

// initializeViews creates all the view panels
func (ins *Inspector) initializeViews() {
	root := tview.NewTreeNode(ins.Title).SetColor(tcell.ColorYellow)
	ins.TreeView = tview.NewTreeView().SetRoot(root).SetCurrentNode(root)
	ins.TreeView.SetBorder(true).SetTitle(" Executable ")

	for ui, lu := range ins.Executable.Units {
		unitNode := tview.NewTreeNode(fmt.Sprintf("linking unit %d", ui)).
			SetReference(nodeRef{unit: ui, section: -1}).
			SetSelectable(true)
		if uint8(ui) == ins.Executable.ActiveUnit {
			unitNode.SetColor(tcell.ColorGreen)
		}
		for t := exe.SectionType(0); t < exe.SectionTypeCount; t++ {
			sec := lu.Section(t)
			if sec.IsEmpty(t) {
				continue
			}
			sectionNode := tview.NewTreeNode(
				fmt.Sprintf("%s (%d)", t, sec.Length(t))).
				SetReference(nodeRef{unit: ui, section: int(t)}).
				SetSelectable(true)
			unitNode.AddChild(sectionNode)
		}
		root.AddChild(unitNode)
	}

	ins.DetailView = tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(true).
		SetWrap(false)
	ins.DetailView.SetBorder(true).SetTitle(" Detail ")

	ins.StatusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ins.StatusBar.SetText("[yellow]enter[-] select  [yellow]tab[-] switch panel  [yellow]q[-] quit")

	ins.TreeView.SetSelectedFunc(ins.showNode)
	ins.TreeView.SetChangedFunc(ins.showNode)
}

// nodeRef identifies a tree node: a whole unit (section == -1) or one
// section within it.
type nodeRef struct {
	unit    int
	section int
}

// buildLayout arranges the panels
func (ins *Inspector) buildLayout() {
	body := tview.NewFlex().
		AddItem(ins.TreeView, 36, 0, true).
		AddItem(ins.DetailView, 0, 1, false)

	ins.MainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(ins.StatusBar, 1, 0, false)
}

// setupKeyBindings installs the global key handler
func (ins *Inspector) setupKeyBindings() {
	ins.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyTab:
			if ins.App.GetFocus() == ins.TreeView {
				ins.App.SetFocus(ins.DetailView)
			} else {
				ins.App.SetFocus(ins.TreeView)
			}
			return nil
		case event.Rune() == 'q', event.Key() == tcell.KeyEscape:
			ins.App.Stop()
			return nil
		}
		return event
	})
}

// showNode renders the selected unit or section into the detail panel
func (ins *Inspector) showNode(node *tview.TreeNode) {
	ref, ok := node.GetReference().(nodeRef)
	if !ok {
		ins.DetailView.SetText(tools.Dump(ins.Executable, ins.Table))
		return
	}
	lu := ins.Executable.Units[ref.unit]
	if ref.section < 0 {
		ins.DetailView.SetText(unitSummary(ref.unit, lu))
		return
	}
	ins.DetailView.SetText(sectionDetail(exe.SectionType(ref.section), lu, ins.Table))
	ins.DetailView.ScrollToBeginning()
}

func unitSummary(index int, lu *exe.LinkingUnit) string {
	s := fmt.Sprintf("linking unit %d\n\n", index)
	for t := exe.SectionType(0); t < exe.SectionTypeCount; t++ {
		sec := lu.Section(t)
		if sec.IsEmpty(t) {
			continue
		}
		s += fmt.Sprintf("  %-8s %d\n", t, sec.Length(t))
	}
	return s
}

func sectionDetail(t exe.SectionType, lu *exe.LinkingUnit, table *instr.Table) string {
	single := &exe.Executable{Units: []*exe.LinkingUnit{sectionOnly(t, lu)}}
	return tools.Dump(single, table)
}

// sectionOnly copies one section into an otherwise empty unit so the dump
// listing shows just that section.
func sectionOnly(t exe.SectionType, lu *exe.LinkingUnit) *exe.LinkingUnit {
	out := &exe.LinkingUnit{}
	out.Sections[t] = *lu.Section(t)
	return out
}
