// Package emulator models a thermal receipt printer: its print state, the
// paper it prints on and the stack of receipts it has produced.
//
// A Printer is not safe for concurrent use. Callers serialize access, see
// internal/printer.FeedQueue.
package emulator

import (
	"go.uber.org/zap"
)

// Printer is the emulated printer. It owns the active print state, the
// receipt currently being printed and every receipt printed since the
// printer was created or reset.
type Printer struct {
	profile PaperProfile
	logger  *zap.Logger

	state       PrintState
	lineSpacing int

	current *Receipt
	stack   []*Receipt
}

// Option configures a Printer
type Option func(*Printer)

// WithLogger sets the logger used for per-operation debug output
func WithLogger(logger *zap.Logger) Option {
	return func(p *Printer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPrinter creates a powered-on printer with one empty receipt.
// It panics if the profile lacks the primary font.
func NewPrinter(profile PaperProfile, opts ...Option) *Printer {
	p := &Printer{
		profile: profile,
		logger:  zap.NewNop(),
		state:   DefaultPrintState(),
	}
	for _, opt := range opts {
		opt(p)
	}

	profile.Font(PrimaryFont)

	p.StartNewReceipt()
	p.PowerCycle()

	return p
}

// Profile returns the paper profile
func (p *Printer) Profile() PaperProfile { return p.profile }

// State returns a copy of the active print state
func (p *Printer) State() PrintState { return p.state }

// LineSpacing returns the height of the spacer fed by the next line feed
func (p *Printer) LineSpacing() int { return p.lineSpacing }

// Current returns the receipt being printed
func (p *Printer) Current() *Receipt { return p.current }

// Receipts returns every receipt in print order, the current one last
func (p *Printer) Receipts() []*Receipt {
	out := make([]*Receipt, len(p.stack))
	copy(out, p.stack)
	return out
}

// Pages returns a snapshot of every receipt in print order
func (p *Printer) Pages() []Page {
	pages := make([]Page, 0, len(p.stack))
	for _, r := range p.stack {
		pages = append(pages, r.Page())
	}
	return pages
}

// Receipt looks up a receipt by id
func (p *Printer) Receipt(id string) (*Receipt, bool) {
	for _, r := range p.stack {
		if r.id == id {
			return r, true
		}
	}
	return nil, false
}

// StartNewReceipt begins a new sheet under the current state
func (p *Printer) StartNewReceipt() {
	p.current = newReceipt(p.profile, p.state, p.lineSpacing)
	p.stack = append(p.stack, p.current)

	p.logger.Info("Starting new receipt",
		zap.String("receipt_id", p.current.id),
		zap.Int("number", len(p.stack)),
	)
}

// PowerCycle emulates switching the printer off and on
func (p *Printer) PowerCycle() {
	p.Initialize()
}

// Reset drops every receipt and returns the printer to its power-on state
func (p *Printer) Reset() {
	p.logger.Info("Resetting printer", zap.Int("discarded_receipts", len(p.stack)))

	p.stack = nil
	p.Initialize()
	p.StartNewReceipt()
}

// Initialize restores the default print state and line spacing (ESC @).
// Text on the open line that was never fed is discarded.
func (p *Printer) Initialize() {
	p.current.discardLine()

	p.SelectFont(PrimaryFont)
	p.SelectJustification(JustifyLeft)
	p.SelectCharacterSize(1, 1)
	p.SelectEmphasizeMode(false)
	p.SelectItalicMode(false)
	p.SelectUnderlineMode(UnderlineOff)
	p.SetDefaultLineSpacing()
}

// PrintText places text on the current receipt
func (p *Printer) PrintText(text string) {
	p.logger.Debug("Print", zap.String("text", text))

	p.current.printText(text)
}

// PrintAndLineFeed prints text then feeds one line
func (p *Printer) PrintAndLineFeed(text string) {
	p.PrintText(text)
	p.LineFeed()
}

// LineFeed ends the current line and feeds the current line spacing
func (p *Printer) LineFeed() {
	p.logger.Debug("Line feed", zap.Int("spacing", p.lineSpacing))

	p.current.finalizeLine(true)
}

// Cut ends any open text line and starts a new receipt. Every cut variant
// is emulated as an immediate page break. The cut's feed only adds a spacer
// when it ends printed text, so "text LF cut" leaves one line and one spacer.
func (p *Printer) Cut(fn CutFunction, shape CutShape, n int) {
	p.logger.Info("Execute cut",
		zap.Stringer("function", fn),
		zap.Stringer("shape", shape),
		zap.Int("n", n),
	)

	p.current.feedForCut()
	p.StartNewReceipt()
}

// SelectFont selects the font for subsequent text
func (p *Printer) SelectFont(font FontID) {
	p.logger.Debug("Select font", zap.Stringer("font", font))

	p.state.Font = font
	p.current.changeState(p.state)
}

// SelectJustification selects the alignment of subsequent lines
func (p *Printer) SelectJustification(j Justification) {
	p.logger.Debug("Select justification", zap.Stringer("justification", j))

	p.state.Justification = j
	p.current.changeState(p.state)
}

// SelectCharacterSize sets the width and height multipliers
func (p *Printer) SelectCharacterSize(width, height int) {
	p.logger.Debug("Set character size scale", zap.Int("width", width), zap.Int("height", height))

	p.state.WidthScale = width
	p.state.HeightScale = height
	p.current.changeState(p.state)
}

// SelectEmphasizeMode turns bold printing on or off
func (p *Printer) SelectEmphasizeMode(enable bool) {
	p.logger.Debug("Set emphasize mode", zap.Bool("enable", enable))

	p.state.Emphasize = enable
	p.current.changeState(p.state)
}

// SelectItalicMode turns italic printing on or off
func (p *Printer) SelectItalicMode(enable bool) {
	p.logger.Debug("Set italic mode", zap.Bool("enable", enable))

	p.state.Italic = enable
	p.current.changeState(p.state)
}

// SelectUnderlineMode sets the underline mode
func (p *Printer) SelectUnderlineMode(mode UnderlineMode) {
	p.logger.Debug("Set underline mode", zap.Stringer("mode", mode))

	p.state.Underline = mode
	p.current.changeState(p.state)
}

// SetLineSpacing sets the height fed by subsequent line feeds
func (p *Printer) SetLineSpacing(n int) {
	p.logger.Debug("Set line spacing", zap.Int("value", n))

	p.lineSpacing = n
	p.current.setLineSpacing(n)
}

// SetDefaultLineSpacing restores the profile's line spacing
func (p *Printer) SetDefaultLineSpacing() {
	p.SetLineSpacing(p.profile.DefaultLineSpacing)
}
