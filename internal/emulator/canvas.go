package emulator

// Rect is an axis-aligned rectangle in device dots
type Rect struct {
	X, Y          int
	Width, Height int
}

// TextStyle carries the attributes a canvas needs to draw one run of text
type TextStyle struct {
	Face       string // display face from FontMetrics
	CellWidth  int    // scaled cell width in dots
	CellHeight int    // scaled cell height in dots
	Bold       bool
	Italic     bool
}

// Canvas is the drawing surface receipts render into. The emulator core has
// no graphics dependency; internal/renderer provides a raster implementation.
type Canvas interface {
	// DrawText draws text with its top-left corner at rect's origin
	DrawText(text string, style TextStyle, rect Rect)
	// DrawLine strokes a horizontal or vertical line of the given thickness
	DrawLine(x1, y1, x2, y2 int, thickness int)
	// FillRect paints rect with the paper background
	FillRect(rect Rect)
	// MeasureString reports the size text would occupy in style
	MeasureString(text string, style TextStyle) (width, height float64)
}
