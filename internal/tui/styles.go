package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/thereceipt/receipt-emulator/internal/printer"
)

// Colors
var (
	Primary   = tcell.NewHexColor(0x7C3AED) // Purple
	Secondary = tcell.NewHexColor(0x06B6D4) // Cyan
	Success   = tcell.NewHexColor(0x10B981) // Green
	Warning   = tcell.NewHexColor(0xF59E0B) // Amber
	Error     = tcell.NewHexColor(0xEF4444) // Red
	Muted     = tcell.NewHexColor(0x6B7280) // Gray

	Paper = tcell.NewHexColor(0xF8FAFC) // Slate 50
	Ink   = tcell.NewHexColor(0x0F172A) // Slate 900
)

// Tags for tview dynamic colors
const (
	tagReset   = "[-:-:-]"
	tagMuted   = "[#6B7280]"
	tagInfo    = "[#06B6D4]"
	tagSuccess = "[#10B981]"
	tagWarning = "[#F59E0B]"
	tagError   = "[#EF4444]"
)

// panel applies the common border style
func panel(b *tview.Box, title string) {
	b.SetBorder(true).
		SetTitle(" " + title + " ").
		SetBorderColor(Muted)
}

// StatusTag returns a colored status label for a feed job
func StatusTag(status string) string {
	switch status {
	case printer.StatusApplied:
		return tagSuccess + "● " + status + tagReset
	case printer.StatusQueued:
		return tagWarning + "● " + status + tagReset
	default:
		return tagMuted + "● " + status + tagReset
	}
}

// LevelTag returns the color tag for a log line
func LevelTag(level string) string {
	switch level {
	case "error":
		return tagError
	case "warning":
		return tagWarning
	case "command":
		return tagInfo
	default:
		return "[white]"
	}
}

// Truncate shortens s to max runes
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
