package emulator

// Element is one printable item stacked vertically on a receipt.
// The set is closed: an Element is either a *TextLine or a Spacer.
type Element interface {
	// Height is the vertical space the element occupies, in dots
	Height() int
	// DrawInto draws the element with its top-left corner at (x, y)
	DrawInto(c Canvas, x, y int)

	isElement()
}

// Spacer is blank paper fed by a line feed
type Spacer struct {
	height int
}

// NewSpacer returns a spacer of the given height in dots
func NewSpacer(height int) Spacer {
	if height < 0 {
		height = 0
	}
	return Spacer{height: height}
}

// Height implements Element
func (s Spacer) Height() int { return s.height }

// DrawInto implements Element; a spacer leaves the paper blank
func (s Spacer) DrawInto(Canvas, int, int) {}

func (Spacer) isElement()    {}
func (*TextLine) isElement() {}
