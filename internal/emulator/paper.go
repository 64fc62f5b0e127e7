package emulator

import (
	"fmt"
	"math"
)

const mmToInch = 0.0393701

// FontMetrics is the character cell of one printer font, in dots
type FontMetrics struct {
	ID          FontID
	CellWidth   int
	CellHeight  int
	DisplayFace string // face used by renderers, e.g. "D2Coding"
}

// PaperProfile describes the paper roll and the print head.
// It is read-only once handed to a Printer.
type PaperProfile struct {
	DotsPerInch        float64
	PaperWidthMM       float64
	PrintWidthMM       float64
	DefaultLineSpacing int
	Fonts              map[FontID]FontMetrics
}

// DefaultPaperProfile returns a typical 80mm receipt printer: 76mm paper,
// 72mm printable, 180 dpi, 12x24 dot fonts.
func DefaultPaperProfile() PaperProfile {
	return PaperProfile{
		DotsPerInch:        180,
		PaperWidthMM:       76,
		PrintWidthMM:       72,
		DefaultLineSpacing: 10,
		Fonts: map[FontID]FontMetrics{
			FontA: {ID: FontA, CellWidth: 12, CellHeight: 24, DisplayFace: "D2Coding"},
			FontB: {ID: FontB, CellWidth: 12, CellHeight: 24, DisplayFace: "D2Coding"},
		},
	}
}

// PaperWidthDots returns the paper width in device dots
func (p PaperProfile) PaperWidthDots() int {
	return int(math.Ceil(p.PaperWidthMM * mmToInch * p.DotsPerInch))
}

// PrintWidthDots returns the printable width in device dots
func (p PaperProfile) PrintWidthDots() int {
	return int(math.Ceil(p.PrintWidthMM * mmToInch * p.DotsPerInch))
}

// Margin returns the unprintable border on each side of the paper
func (p PaperProfile) Margin() int {
	return (p.PaperWidthDots() - p.PrintWidthDots()) / 2
}

// Font resolves a font, falling back to the primary font when the profile
// has no entry for id. A profile without the primary font is a broken
// configuration and Font panics.
func (p PaperProfile) Font(id FontID) FontMetrics {
	if m, ok := p.Fonts[id]; ok {
		return m
	}
	if m, ok := p.Fonts[PrimaryFont]; ok {
		return m
	}
	panic(fmt.Sprintf("emulator: required font is missing from paper profile: %s", PrimaryFont))
}

// Validate checks the invariants a Printer relies on
func (p PaperProfile) Validate() error {
	if p.DotsPerInch <= 0 {
		return fmt.Errorf("dots per inch must be positive, got %v", p.DotsPerInch)
	}
	if p.PrintWidthMM <= 0 {
		return fmt.Errorf("print width must be positive, got %vmm", p.PrintWidthMM)
	}
	if p.PrintWidthMM > p.PaperWidthMM {
		return fmt.Errorf("print width %vmm exceeds paper width %vmm", p.PrintWidthMM, p.PaperWidthMM)
	}
	if p.DefaultLineSpacing < 0 {
		return fmt.Errorf("default line spacing must not be negative, got %d", p.DefaultLineSpacing)
	}

	if _, ok := p.Fonts[PrimaryFont]; !ok {
		return fmt.Errorf("primary font %s is missing", PrimaryFont)
	}

	for id, m := range p.Fonts {
		if m.CellWidth < 1 || m.CellHeight < 1 {
			return fmt.Errorf("font %s: cell must be at least 1x1, got %dx%d", id, m.CellWidth, m.CellHeight)
		}
		// a wide glyph at the largest width scale must still fit on an empty line
		if 2*m.CellWidth*maxScale >= p.PrintWidthDots() {
			return fmt.Errorf("font %s: print width %d dots cannot hold one character", id, p.PrintWidthDots())
		}
	}

	return nil
}

// maxScale is the largest width/height multiplier GS ! can select
const maxScale = 8
