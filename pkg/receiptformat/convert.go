package receiptformat

import (
	"github.com/thereceipt/receipt-emulator/internal/emulator"
)

// FromPages builds a snapshot from receipt pages in print order
func FromPages(pages []emulator.Page) *Stack {
	stack := &Stack{
		Version:  Version,
		Receipts: make([]Receipt, 0, len(pages)),
	}

	if len(pages) > 0 {
		stack.Paper = FromProfile(pages[0].Profile)
	}

	for _, page := range pages {
		stack.Receipts = append(stack.Receipts, FromPage(page))
	}

	return stack
}

// FromProfile describes a paper profile
func FromProfile(p emulator.PaperProfile) Paper {
	return Paper{
		DotsPerInch:    p.DotsPerInch,
		PaperWidthMM:   p.PaperWidthMM,
		PrintWidthMM:   p.PrintWidthMM,
		PaperWidthDots: p.PaperWidthDots(),
		PrintWidthDots: p.PrintWidthDots(),
		Margin:         p.Margin(),
	}
}

// FromPage converts one page
func FromPage(page emulator.Page) Receipt {
	r := Receipt{
		ID:          page.ID,
		Empty:       page.Empty,
		PrintHeight: page.PrintHeight(),
		PaperHeight: page.PaperHeight(),
		Elements:    make([]Element, 0, len(page.Elements)),
	}

	for _, e := range page.Elements {
		switch el := e.(type) {
		case *emulator.TextLine:
			state := el.State()
			r.Elements = append(r.Elements, Element{
				Type:        TypeText,
				Height:      el.Height(),
				Text:        el.Text(),
				Font:        el.Font().ID.String(),
				Width:       el.VisualWidth(),
				WidthScale:  state.WidthScale,
				HeightScale: state.HeightScale,
				Align:       state.Justification.String(),
				Bold:        state.Emphasize,
				Italic:      state.Italic,
				Underline:   state.Underline.String(),
				Chunks:      el.Chunks(),
			})
		case emulator.Spacer:
			r.Elements = append(r.Elements, Element{
				Type:   TypeSpacer,
				Height: el.Height(),
			})
		}
	}

	return r
}

// NonEmpty returns the receipts that have something printed on them
func (s *Stack) NonEmpty() []Receipt {
	out := make([]Receipt, 0, len(s.Receipts))
	for _, r := range s.Receipts {
		if !r.Empty {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the receipt with the given id
func (s *Stack) Find(id string) (*Receipt, bool) {
	for i := range s.Receipts {
		if s.Receipts[i].ID == id {
			return &s.Receipts[i], true
		}
	}
	return nil, false
}
