package emulator

import "fmt"

// FontID identifies a printer font as selected by the host
type FontID byte

// Printer fonts
const (
	FontA        FontID = 0
	FontB        FontID = 1
	FontC        FontID = 2
	FontD        FontID = 3
	FontE        FontID = 4
	SpecialFontA FontID = 97
	SpecialFontB FontID = 98
)

// PrimaryFont is the font every other font falls back to
const PrimaryFont = FontA

func (f FontID) String() string {
	switch f {
	case FontA:
		return "FontA"
	case FontB:
		return "FontB"
	case FontC:
		return "FontC"
	case FontD:
		return "FontD"
	case FontE:
		return "FontE"
	case SpecialFontA:
		return "SpecialFontA"
	case SpecialFontB:
		return "SpecialFontB"
	default:
		return fmt.Sprintf("Font(%d)", byte(f))
	}
}

// Justification is the horizontal alignment of a text line
type Justification byte

const (
	JustifyLeft   Justification = 0
	JustifyCenter Justification = 1
	JustifyRight  Justification = 2
)

func (j Justification) String() string {
	switch j {
	case JustifyLeft:
		return "left"
	case JustifyCenter:
		return "center"
	case JustifyRight:
		return "right"
	default:
		return fmt.Sprintf("justification(%d)", byte(j))
	}
}

// UnderlineMode selects the underline thickness
type UnderlineMode byte

const (
	UnderlineOff     UnderlineMode = 0
	UnderlineOneDot  UnderlineMode = 1
	UnderlineTwoDots UnderlineMode = 2
)

func (u UnderlineMode) String() string {
	switch u {
	case UnderlineOff:
		return "off"
	case UnderlineOneDot:
		return "one-dot"
	case UnderlineTwoDots:
		return "two-dots"
	default:
		return fmt.Sprintf("underline(%d)", byte(u))
	}
}

// Dots returns the stroke thickness of the underline, 0 when off
func (u UnderlineMode) Dots() int {
	switch u {
	case UnderlineOneDot:
		return 1
	case UnderlineTwoDots:
		return 2
	default:
		return 0
	}
}

// CutFunction is the cut variant requested by the host.
// The emulator treats every variant as an immediate page break.
type CutFunction byte

const (
	CutImmediate CutFunction = iota
	CutFeedAndCut
	CutSetPosition
	CutFeedCutAndReverse
)

func (c CutFunction) String() string {
	switch c {
	case CutImmediate:
		return "cut"
	case CutFeedAndCut:
		return "feed-and-cut"
	case CutSetPosition:
		return "set-cut-position"
	case CutFeedCutAndReverse:
		return "feed-cut-and-reverse"
	default:
		return fmt.Sprintf("cut-function(%d)", byte(c))
	}
}

// CutShape is a full or partial cut
type CutShape byte

const (
	CutFull    CutShape = 0
	CutPartial CutShape = 1
)

func (c CutShape) String() string {
	if c == CutPartial {
		return "partial"
	}
	return "full"
}

// PrintState is the set of character attributes applied to new text.
// It is a plain value: assigning it copies it, so a line keeps the state it
// was started with no matter what the printer does afterwards.
type PrintState struct {
	Font          FontID
	WidthScale    int
	HeightScale   int
	Justification Justification
	Emphasize     bool
	Italic        bool
	Underline     UnderlineMode
}

// DefaultPrintState returns the state after power-on or ESC @
func DefaultPrintState() PrintState {
	return PrintState{
		Font:          PrimaryFont,
		WidthScale:    1,
		HeightScale:   1,
		Justification: JustifyLeft,
		Emphasize:     false,
		Italic:        false,
		Underline:     UnderlineOff,
	}
}

// widthScale and heightScale never report less than 1
func (s PrintState) widthScale() int {
	if s.WidthScale < 1 {
		return 1
	}
	return s.WidthScale
}

func (s PrintState) heightScale() int {
	if s.HeightScale < 1 {
		return 1
	}
	return s.HeightScale
}
