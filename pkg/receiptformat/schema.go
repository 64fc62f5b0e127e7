// Package receiptformat defines the JSON snapshot of the emulator's
// receipt stack, as served by the API and written by the export command.
package receiptformat

// Version is the snapshot format version written by FromPages
const Version = "1.0"

// Element types
const (
	TypeText   = "text"
	TypeSpacer = "spacer"
)

// Stack is every receipt printed since the emulator started or was reset
type Stack struct {
	Version  string    `json:"version"`
	Paper    Paper     `json:"paper"`
	Receipts []Receipt `json:"receipts"`
}

// Paper describes the paper the receipts were laid out on
type Paper struct {
	DotsPerInch    float64 `json:"dpi"`
	PaperWidthMM   float64 `json:"paper_width_mm"`
	PrintWidthMM   float64 `json:"print_width_mm"`
	PaperWidthDots int     `json:"paper_width_dots"`
	PrintWidthDots int     `json:"print_width_dots"`
	Margin         int     `json:"margin"`
}

// Receipt is one sheet, cut or still being printed
type Receipt struct {
	ID          string    `json:"id"`
	Empty       bool      `json:"empty"`
	PrintHeight int       `json:"print_height"`
	PaperHeight int       `json:"paper_height"`
	Elements    []Element `json:"elements"`
}

// Element is a text line or a spacer
type Element struct {
	Type   string `json:"type"` // text, spacer
	Height int    `json:"height"`

	// Text line
	Text        string   `json:"text,omitempty"`
	Font        string   `json:"font,omitempty"`
	Width       int      `json:"width,omitempty"` // visual width in dots
	WidthScale  int      `json:"width_scale,omitempty"`
	HeightScale int      `json:"height_scale,omitempty"`
	Align       string   `json:"align,omitempty"` // left, center, right
	Bold        bool     `json:"bold,omitempty"`
	Italic      bool     `json:"italic,omitempty"`
	Underline   string   `json:"underline,omitempty"` // off, one-dot, two-dots
	Chunks      []string `json:"chunks,omitempty"`
}
