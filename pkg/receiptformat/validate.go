package receiptformat

import (
	"fmt"
)

var (
	validAligns     = []string{"left", "center", "right"}
	validUnderlines = []string{"off", "one-dot", "two-dots"}
)

// Validate validates a Stack structure
func Validate(s *Stack) error {
	if s.Version == "" {
		return fmt.Errorf("version is required")
	}
	if s.Version != Version {
		return fmt.Errorf("unsupported version: %s (expected %s)", s.Version, Version)
	}

	if s.Paper.PrintWidthDots > s.Paper.PaperWidthDots {
		return fmt.Errorf("paper: print width %d exceeds paper width %d", s.Paper.PrintWidthDots, s.Paper.PaperWidthDots)
	}

	ids := make(map[string]bool)
	for i, r := range s.Receipts {
		if r.ID == "" {
			return fmt.Errorf("receipt[%d]: 'id' is required", i)
		}
		if ids[r.ID] {
			return fmt.Errorf("receipt[%d]: duplicate id '%s'", i, r.ID)
		}
		ids[r.ID] = true

		if err := validateReceipt(&r, s.Paper); err != nil {
			return fmt.Errorf("receipt[%d] '%s': %w", i, r.ID, err)
		}
	}

	return nil
}

func validateReceipt(r *Receipt, paper Paper) error {
	total := 0
	for i, e := range r.Elements {
		if err := validateElement(&e, paper); err != nil {
			return fmt.Errorf("element[%d]: %w", i, err)
		}
		total += e.Height
	}

	if r.Empty && len(r.Elements) > 0 {
		return fmt.Errorf("marked empty but has %d elements", len(r.Elements))
	}
	if r.PrintHeight != 0 && r.PrintHeight != total {
		return fmt.Errorf("print_height %d does not match element heights %d", r.PrintHeight, total)
	}

	return nil
}

func validateElement(e *Element, paper Paper) error {
	if e.Height < 0 {
		return fmt.Errorf("height must not be negative")
	}

	switch e.Type {
	case TypeSpacer:
		if e.Text != "" {
			return fmt.Errorf("spacer must not carry text")
		}
		return nil

	case TypeText:
		if e.Text == "" {
			return fmt.Errorf("text line requires text")
		}
		if e.Align != "" && !oneOf(e.Align, validAligns) {
			return fmt.Errorf("invalid align '%s' (must be left, center, or right)", e.Align)
		}
		if e.Underline != "" && !oneOf(e.Underline, validUnderlines) {
			return fmt.Errorf("invalid underline '%s'", e.Underline)
		}
		if e.WidthScale < 0 || e.WidthScale > 8 || e.HeightScale < 0 || e.HeightScale > 8 {
			return fmt.Errorf("scale %dx%d out of range 1-8", e.WidthScale, e.HeightScale)
		}
		if paper.PrintWidthDots > 0 && e.Width >= paper.PrintWidthDots {
			return fmt.Errorf("width %d does not fit print width %d", e.Width, paper.PrintWidthDots)
		}
		return nil

	case "":
		return fmt.Errorf("element type is required")

	default:
		return fmt.Errorf("unsupported element type: %s", e.Type)
	}
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
