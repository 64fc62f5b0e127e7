package emulator

import (
	"fmt"

	"github.com/google/uuid"
)

// Receipt is one sheet of paper: everything printed between a reset or cut
// and the next cut.
type Receipt struct {
	id      string
	profile PaperProfile

	state       PrintState
	lineSpacing int

	elements []Element
	current  *TextLine
}

func newReceipt(profile PaperProfile, state PrintState, lineSpacing int) *Receipt {
	return &Receipt{
		id:          uuid.New().String(),
		profile:     profile,
		state:       state,
		lineSpacing: lineSpacing,
	}
}

// ID returns the receipt's unique identifier
func (r *Receipt) ID() string { return r.id }

// IsEmpty reports whether nothing has been printed on the receipt
func (r *Receipt) IsEmpty() bool {
	return (r.current == nil || r.current.IsEmpty()) && len(r.elements) == 0
}

// Elements returns a copy of the finalized elements. The open line is not
// included until it is finalized.
func (r *Receipt) Elements() []Element {
	out := make([]Element, len(r.elements))
	copy(out, r.elements)
	return out
}

// OpenLine returns the line still being written, or nil
func (r *Receipt) OpenLine() *TextLine { return r.current }

// Margin returns the paper margin on each side, in dots
func (r *Receipt) Margin() int { return r.profile.Margin() }

// changeState finalizes the open line and makes state apply to new text
func (r *Receipt) changeState(state PrintState) {
	r.finalizeLine(false)
	r.state = state
}

func (r *Receipt) setLineSpacing(n int) {
	r.lineSpacing = n
}

// printText appends text to the open line, wrapping onto new lines as the
// print width is used up.
func (r *Receipt) printText(text string) {
	if r.current == nil {
		r.current = newTextLine(r.profile, r.state)
	}

	for _, ch := range text {
		if r.current.TryAppend(ch) {
			continue
		}

		r.finalizeLine(false)
		r.current = newTextLine(r.profile, r.state)
		if !r.current.TryAppend(ch) {
			panic(fmt.Sprintf("emulator: logic error, an empty line of %d dots cannot hold %q", r.profile.PrintWidthDots(), ch))
		}
	}
}

// finalizeLine moves a non-empty open line into the element list and
// optionally feeds one line spacing of blank paper.
func (r *Receipt) finalizeLine(insertSpacing bool) {
	if r.current != nil {
		if !r.current.IsEmpty() {
			r.elements = append(r.elements, r.current)
		}
		r.current = nil
	}

	if insertSpacing {
		r.elements = append(r.elements, NewSpacer(r.lineSpacing))
	}
}

// feedForCut finalizes the open line, feeding a spacer only if the line
// holds text
func (r *Receipt) feedForCut() {
	r.finalizeLine(r.current != nil && !r.current.IsEmpty())
}

// discardLine drops the open line without printing it
func (r *Receipt) discardLine() {
	r.current = nil
}

// Page returns an immutable view of the receipt's finalized content
func (r *Receipt) Page() Page {
	return Page{
		ID:       r.id,
		Profile:  r.profile,
		Elements: r.Elements(),
		Empty:    r.IsEmpty(),
	}
}

// Page is a point-in-time copy of a receipt that can be read or rendered
// without access to the printer that produced it.
type Page struct {
	ID       string
	Profile  PaperProfile
	Elements []Element
	Empty    bool
}

// PrintHeight is the summed height of all elements
func (p Page) PrintHeight() int {
	total := 0
	for _, e := range p.Elements {
		total += e.Height()
	}
	return total
}

// PaperHeight is the print height plus a margin above and below
func (p Page) PaperHeight() int {
	return p.PrintHeight() + 2*p.Profile.Margin()
}

// PaperWidth is the width of the paper in dots
func (p Page) PaperWidth() int {
	return p.Profile.PaperWidthDots()
}

// DrawInto paints the paper background and every element, top to bottom
func (p Page) DrawInto(c Canvas) {
	c.FillRect(Rect{X: 0, Y: 0, Width: p.PaperWidth(), Height: p.PaperHeight()})

	margin := p.Profile.Margin()
	y := margin
	for _, e := range p.Elements {
		e.DrawInto(c, margin, y)
		y += e.Height()
	}
}
