package escpos

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"golang.org/x/text/encoding/charmap"
)

// recorder is a Handler that logs every call
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) Initialize() { r.add("init") }
func (r *recorder) PrintText(text string) { r.add("text %s", text) }
func (r *recorder) LineFeed() { r.add("lf") }
func (r *recorder) SelectFont(f emulator.FontID) { r.add("font %d", f) }
func (r *recorder) SelectJustification(j emulator.Justification) { r.add("justify %s", j) }
func (r *recorder) SelectCharacterSize(w, h int) { r.add("size %dx%d", w, h) }
func (r *recorder) SelectEmphasizeMode(b bool) { r.add("bold %t", b) }
func (r *recorder) SelectUnderlineMode(m emulator.UnderlineMode) { r.add("underline %s", m) }
func (r *recorder) Cut(fn emulator.CutFunction, s emulator.CutShape, n int) {
	r.add("cut %s %s %d", fn, s, n)
}

func (r *recorder) String() string { return strings.Join(r.calls, "|") }

func TestDecoder_Calls(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"nul only", []byte{0, 0, 0}, ""},
		{"nul stripped", []byte("A\x00B"), "text AB"},
		{"lf", []byte("A\n"), "text A|lf"},
		{"crlf breaks once", []byte("A\r\nB"), "text A|lf|text B"},
		{"lone cr breaks", []byte("A\rB"), "text A|lf|text B"},
		{"empty break is spacer", []byte("\n\n"), "lf|lf"},
		{"initialize", []byte{ESC, '@'}, "init"},
		{"bold on", []byte{ESC, 'E', 1}, "bold true"},
		{"bold other value", []byte{ESC, 'E', 2}, "bold false"},
		{"underline on", []byte{ESC, '-', 1}, "underline one-dot"},
		{"underline two maps to off", []byte{ESC, '-', 2}, "underline off"},
		{"justify center", []byte{ESC, 'a', 1}, "justify center"},
		{"justify invalid ignored", []byte{ESC, 'a', 7}, ""},
		{"feed lines", []byte{ESC, 'd', 3}, "lf|lf|lf"},
		{"feed zero", []byte{ESC, 'd', 0}, ""},
		{"cut", []byte{ESC, 'i'}, "cut cut full 0"},
		{"reverse consumed", []byte{GS, 'B', 1, 'X'}, "text X"},
		{"size", []byte{GS, '!', 0x22}, "size 2x2"},
		{"font", []byte{GS, 'f', 1}, "font 1"},
		{"text flushed before command", []byte{'A', ESC, 'E', 1, 'B'}, "text A|bold true|text B"},
		{"truncated param discarded", []byte{'A', ESC, 'E'}, "text A"},
		{"lone marker discarded", []byte{'A', GS}, "text A"},
		{"unknown opcode skips marker", []byte{ESC, 'Z', 'Y'}, "text ZY"},
		{"unknown gs opcode", []byte{GS, 'V', 'A'}, "text VA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			NewDecoder(rec).Feed(tt.input)

			if got := rec.String(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDecoder_EUCKR(t *testing.T) {
	rec := &recorder{}
	// "가" in EUC-KR
	NewDecoder(rec).Feed([]byte{0xB0, 0xA1, LF})

	if got := rec.String(); got != "text 가|lf" {
		t.Errorf("Expected Hangul text, got %q", got)
	}
}

func TestDecoder_WithEncoding(t *testing.T) {
	rec := &recorder{}
	NewDecoder(rec, WithEncoding(charmap.Windows1252)).Feed([]byte{0xE9})

	if got := rec.String(); got != "text é" {
		t.Errorf("Expected latin text, got %q", got)
	}
}

func TestDecoder_SplitCommandDiscarded(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec)

	d.Feed([]byte{ESC})
	d.Feed([]byte{'E', 1})

	// without carry-over the opcode arrives as text
	if got := rec.String(); got != "text E\x01" {
		t.Errorf("Expected discarded marker, got %q", got)
	}
}

func TestDecoder_CarryOver(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec, WithCarryOver())

	d.Feed([]byte{'A', GS, '!'})
	if d.Pending() != 2 {
		t.Fatalf("Expected 2 pending bytes, got %d", d.Pending())
	}
	d.Feed([]byte{0x22, 'B'})

	if got := rec.String(); got != "text A|size 2x2|text B" {
		t.Errorf("Unexpected calls %q", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Expected nothing pending, got %d", d.Pending())
	}
}

func TestDecoder_CarryOverDoubleByte(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec, WithCarryOver())

	d.Feed([]byte{'A', 0xB0})
	d.Feed([]byte{0xA1})

	if got := rec.String(); got != "text A|text 가" {
		t.Errorf("Unexpected calls %q", got)
	}
}

func TestDecoder_Reset(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec, WithCarryOver())

	d.Feed([]byte{ESC})
	d.Reset()
	d.Feed([]byte{'@'})

	if got := rec.String(); got != "text @" {
		t.Errorf("Expected held marker to be dropped, got %q", got)
	}
}

func TestDecoder_ActivityOncePerFeed(t *testing.T) {
	d := NewDecoder(&recorder{})
	count := 0
	d.OnActivity(func() { count++ })

	d.Feed([]byte("A\nB\n\x1b@\x1bi"))
	d.Feed(nil)

	if count != 2 {
		t.Errorf("Expected 2 notifications, got %d", count)
	}
}

func TestDecodeCharacterSize(t *testing.T) {
	tests := []struct {
		in   byte
		w, h int
	}{
		{0x00, 1, 1},
		{0x11, 1, 1},
		{0x22, 2, 2},
		{0x12, 1, 2},
		{0x21, 2, 1},
		{0x88, 8, 8},
		{0x99, 1, 1},
		{0xF3, 1, 3},
	}

	for _, tt := range tests {
		w, h := DecodeCharacterSize(tt.in)
		if w != tt.w || h != tt.h {
			t.Errorf("DecodeCharacterSize(%#x) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}

func TestEncodeCharacterSize_RoundTrip(t *testing.T) {
	for w := 1; w <= 8; w++ {
		for h := 1; h <= 8; h++ {
			gw, gh := DecodeCharacterSize(EncodeCharacterSize(w, h))
			if gw != w || gh != h {
				t.Errorf("%dx%d decoded as %dx%d", w, h, gw, gh)
			}
		}
	}
}

func TestEndToEnd_HelloCut(t *testing.T) {
	p := emulator.NewPrinter(emulator.DefaultPaperProfile())
	d := NewDecoder(p)

	d.Feed([]byte("\x1b@HELLO\n\x1bi"))

	receipts := p.Receipts()
	if len(receipts) != 2 {
		t.Fatalf("Expected 2 receipts, got %d", len(receipts))
	}

	elems := receipts[0].Elements()
	if len(elems) != 2 {
		t.Fatalf("Expected line and spacer, got %d elements", len(elems))
	}
	line, ok := elems[0].(*emulator.TextLine)
	if !ok || line.Text() != "HELLO" {
		t.Errorf("Expected text line HELLO, got %#v", elems[0])
	}
	if _, ok := elems[1].(emulator.Spacer); !ok {
		t.Errorf("Expected spacer, got %T", elems[1])
	}
	if !receipts[1].IsEmpty() {
		t.Error("Expected second receipt to be empty")
	}
}

func TestEndToEnd_CenteredWrap(t *testing.T) {
	p := emulator.NewPrinter(emulator.DefaultPaperProfile())
	d := NewDecoder(p)

	input := append([]byte{ESC, 'a', 1}, bytes.Repeat([]byte("ABCDEFGHIJ"), 8)...)
	input = append(input, LF)
	d.Feed(input)

	var lines []*emulator.TextLine
	for _, e := range p.Current().Elements() {
		if l, ok := e.(*emulator.TextLine); ok {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		t.Fatalf("Expected at least 2 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if l.State().Justification != emulator.JustifyCenter {
			t.Errorf("line %d: expected center", i)
		}
		if l.VisualWidth() > p.Profile().PrintWidthDots() {
			t.Errorf("line %d: width %d over print width", i, l.VisualWidth())
		}
	}
}

func TestEndToEnd_NulOnly(t *testing.T) {
	p := emulator.NewPrinter(emulator.DefaultPaperProfile())
	NewDecoder(p).Feed(bytes.Repeat([]byte{0}, 64))

	if len(p.Receipts()) != 1 || !p.Current().IsEmpty() {
		t.Error("Expected NUL bytes to leave the printer untouched")
	}
}

func TestEndToEnd_CRLF(t *testing.T) {
	p := emulator.NewPrinter(emulator.DefaultPaperProfile())
	NewDecoder(p).Feed([]byte("A\r\nB\n"))

	var kinds []string
	for _, e := range p.Current().Elements() {
		switch v := e.(type) {
		case *emulator.TextLine:
			kinds = append(kinds, v.Text())
		case emulator.Spacer:
			kinds = append(kinds, "-")
		}
	}
	if got := strings.Join(kinds, ","); got != "A,-,B,-" {
		t.Errorf("Expected A,-,B,- got %s", got)
	}
}

func TestTestReceipt(t *testing.T) {
	p := emulator.NewPrinter(emulator.DefaultPaperProfile())
	NewDecoder(p).Feed(TestReceipt())

	receipts := p.Receipts()
	if len(receipts) != 2 {
		t.Fatalf("Expected test page and a fresh receipt, got %d", len(receipts))
	}

	var texts []string
	for _, e := range receipts[0].Elements() {
		if l, ok := e.(*emulator.TextLine); ok {
			texts = append(texts, l.Text())
		}
	}
	if len(texts) == 0 || texts[0] != "=== 테스트 영수증 ===" {
		t.Errorf("Unexpected title %q", texts)
	}
	if texts[len(texts)-1] != "감사합니다!" {
		t.Errorf("Unexpected last line %q", texts[len(texts)-1])
	}
}

func TestEncoder(t *testing.T) {
	got := NewEncoder().
		Initialize().
		SetAlignment(emulator.JustifyRight).
		SetTextSize(2, 3).
		SetUnderline(true).
		SelectFont(emulator.FontB).
		Feed(2).
		Cut().
		Bytes()

	want := []byte{
		ESC, '@',
		ESC, 'a', 2,
		GS, '!', 0x23,
		ESC, '-', 1,
		GS, 'f', 1,
		ESC, 'd', 2,
		ESC, 'i',
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected % x, got % x", want, got)
	}
}

func TestEncoder_FeedSplitsLargeCounts(t *testing.T) {
	got := NewEncoder().Feed(300).Bytes()
	want := []byte{ESC, 'd', 255, ESC, 'd', 45}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected % x, got % x", want, got)
	}
}
