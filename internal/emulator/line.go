package emulator

import (
	"strings"
	"sync"
)

// ChunkCells is the widest run, in cells, a rendered row of a text line
// may hold. It matches the 42-column limit of the emulated printer.
const ChunkCells = 42

const (
	hangulFirst = 0xAC00
	hangulLast  = 0xD7A3
)

// IsWide reports whether r is a Hangul syllable, which occupies two cells
func IsWide(r rune) bool {
	return r >= hangulFirst && r <= hangulLast
}

// Cells returns the width of r in cells: 2 for wide glyphs, 1 otherwise
func Cells(r rune) int {
	if IsWide(r) {
		return 2
	}
	return 1
}

// TextLine accumulates characters printed under one PrintState until the
// line is full or the state changes.
type TextLine struct {
	state      PrintState
	font       FontMetrics
	printWidth int
	charWidth  int
	charHeight int

	text  []rune
	width int

	mu     sync.Mutex // guards chunks; finalized lines are read by renderers
	chunks []string
}

func newTextLine(profile PaperProfile, state PrintState) *TextLine {
	font := profile.Font(state.Font)

	return &TextLine{
		state:      state,
		font:       font,
		printWidth: profile.PrintWidthDots(),
		charWidth:  max(1, font.CellWidth*state.widthScale()),
		charHeight: max(1, font.CellHeight*state.heightScale()),
	}
}

// TryAppend adds r to the line if it fits. A character fits only if the
// line's visual width stays strictly below the print width afterwards.
func (l *TextLine) TryAppend(r rune) bool {
	cost := l.charWidth * Cells(r)
	if l.width+cost >= l.printWidth {
		return false
	}

	l.text = append(l.text, r)
	l.width += cost

	l.mu.Lock()
	l.chunks = nil
	l.mu.Unlock()
	return true
}

// Text returns the characters on the line
func (l *TextLine) Text() string { return string(l.text) }

// IsEmpty reports whether no character has been appended
func (l *TextLine) IsEmpty() bool { return len(l.text) == 0 }

// VisualWidth returns the width of the line in dots
func (l *TextLine) VisualWidth() int { return l.width }

// State returns the print state the line was started with
func (l *TextLine) State() PrintState { return l.state }

// Font returns the resolved font of the line
func (l *TextLine) Font() FontMetrics { return l.font }

// Height implements Element. It is one row tall regardless of how many
// chunks the line renders as.
func (l *TextLine) Height() int { return l.charHeight }

// RenderedHeight is the height actually covered when every chunk is drawn
// on its own row.
func (l *TextLine) RenderedHeight() int { return l.charHeight * len(l.Chunks()) }

// Chunks splits the line into rows of at most ChunkCells cells. The result
// is computed on first use and cached until the line changes.
func (l *TextLine) Chunks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chunks != nil {
		return l.chunks
	}

	var (
		chunks []string
		sb     strings.Builder
		cells  int
	)
	for _, r := range l.text {
		c := Cells(r)
		if cells+c > ChunkCells {
			chunks = append(chunks, sb.String())
			sb.Reset()
			cells = 0
		}
		sb.WriteRune(r)
		cells += c
	}
	if sb.Len() > 0 {
		chunks = append(chunks, sb.String())
	}
	if chunks == nil {
		chunks = []string{}
	}

	l.chunks = chunks
	return chunks
}

// DrawInto implements Element
func (l *TextLine) DrawInto(c Canvas, x, y int) {
	style := TextStyle{
		Face:       l.font.DisplayFace,
		CellWidth:  l.charWidth,
		CellHeight: l.charHeight,
		Bold:       l.state.Emphasize,
		Italic:     l.state.Italic,
	}

	for _, chunk := range l.Chunks() {
		span := visualCells(chunk) * l.charWidth

		startX := x
		switch l.state.Justification {
		case JustifyCenter:
			startX = x + l.printWidth/2 - span/2
		case JustifyRight:
			startX = x + l.printWidth - span
		}

		rect := Rect{X: startX, Y: y, Width: l.printWidth, Height: l.charHeight}
		c.DrawText(chunk, style, rect)

		if dots := l.state.Underline.Dots(); dots > 0 {
			bottom := rect.Y + rect.Height
			c.DrawLine(rect.X, bottom, rect.X+rect.Width, bottom, dots)
		}

		y += l.charHeight
	}
}

func visualCells(s string) int {
	n := 0
	for _, r := range s {
		n += Cells(r)
	}
	return n
}
