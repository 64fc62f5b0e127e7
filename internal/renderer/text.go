package renderer

import (
	"strings"

	"github.com/thereceipt/receipt-emulator/internal/emulator"
)

// PlainText renders page as monospaced text for terminals. Each rendered
// chunk becomes one row padded for its justification; a spacer becomes a
// blank row unless it directly follows a text line.
func PlainText(page emulator.Page) string {
	cols := Columns(page.Profile)

	var (
		sb       strings.Builder
		prevText bool
	)
	for _, e := range page.Elements {
		switch el := e.(type) {
		case *emulator.TextLine:
			scale := max(1, el.State().WidthScale)
			for _, chunk := range el.Chunks() {
				sb.WriteString(strings.Repeat(" ", padding(el.State().Justification, cols, cells(chunk)*scale)))
				sb.WriteString(chunk)
				sb.WriteByte('\n')
			}
			prevText = true

		case emulator.Spacer:
			if !prevText {
				sb.WriteByte('\n')
			}
			prevText = false
		}
	}

	return sb.String()
}

// Columns is the number of primary-font cells across the print width
func Columns(profile emulator.PaperProfile) int {
	return profile.PrintWidthDots() / profile.Font(emulator.PrimaryFont).CellWidth
}

func padding(j emulator.Justification, cols, span int) int {
	switch j {
	case emulator.JustifyCenter:
		return max(0, (cols-span)/2)
	case emulator.JustifyRight:
		return max(0, cols-span)
	default:
		return 0
	}
}

func cells(s string) int {
	n := 0
	for _, r := range s {
		n += emulator.Cells(r)
	}
	return n
}
