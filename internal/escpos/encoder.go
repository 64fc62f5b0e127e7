package escpos

import (
	"bytes"

	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"golang.org/x/text/encoding"
)

// Encoder builds ESC/POS byte streams using the commands Decoder understands
type Encoder struct {
	buffer *bytes.Buffer
	text   *encoding.Encoder
}

// NewEncoder creates an encoder that writes text in DefaultEncoding
func NewEncoder() *Encoder {
	return NewEncoderWithEncoding(DefaultEncoding)
}

// NewEncoderWithEncoding creates an encoder that writes text in enc.
// Characters enc cannot represent are replaced.
func NewEncoderWithEncoding(enc encoding.Encoding) *Encoder {
	return &Encoder{
		buffer: new(bytes.Buffer),
		text:   encoding.ReplaceUnsupported(enc.NewEncoder()),
	}
}

// Initialize sends initialization command
func (e *Encoder) Initialize() *Encoder {
	e.buffer.Write([]byte{ESC, OpInitialize})
	return e
}

// Cut sends paper cut command
func (e *Encoder) Cut() *Encoder {
	e.buffer.Write([]byte{ESC, OpCut})
	return e
}

// LineFeed sends line feed
func (e *Encoder) LineFeed() *Encoder {
	e.buffer.WriteByte(LF)
	return e
}

// Feed feeds the given number of lines with ESC d
func (e *Encoder) Feed(lines int) *Encoder {
	for lines > 0 {
		n := min(lines, 255)
		e.buffer.Write([]byte{ESC, OpFeedLines, byte(n)})
		lines -= n
	}
	return e
}

// SetAlignment sets text alignment
func (e *Encoder) SetAlignment(j emulator.Justification) *Encoder {
	switch j {
	case emulator.JustifyCenter, emulator.JustifyRight:
	default:
		j = emulator.JustifyLeft
	}
	e.buffer.Write([]byte{ESC, OpJustification, byte(j)})
	return e
}

// SetTextSize sets the width and height multipliers, 1 to 8
func (e *Encoder) SetTextSize(width, height int) *Encoder {
	e.buffer.Write([]byte{GS, OpCharacterSize, EncodeCharacterSize(width, height)})
	return e
}

// SetBold enables or disables bold text
func (e *Encoder) SetBold(enabled bool) *Encoder {
	e.buffer.Write([]byte{ESC, OpEmphasize, flag(enabled)})
	return e
}

// SetUnderline enables or disables one-dot underline
func (e *Encoder) SetUnderline(enabled bool) *Encoder {
	e.buffer.Write([]byte{ESC, OpUnderline, flag(enabled)})
	return e
}

// SetReverse enables or disables white-on-black printing
func (e *Encoder) SetReverse(enabled bool) *Encoder {
	e.buffer.Write([]byte{GS, OpReverse, flag(enabled)})
	return e
}

// SelectFont selects a printer font
func (e *Encoder) SelectFont(font emulator.FontID) *Encoder {
	e.buffer.Write([]byte{GS, OpSelectFont, byte(font)})
	return e
}

// WriteText writes text in the encoder's code page
func (e *Encoder) WriteText(text string) *Encoder {
	b, err := e.text.Bytes([]byte(text))
	if err != nil {
		// ReplaceUnsupported only fails on invalid UTF-8 input
		b = []byte(text)
	}
	e.buffer.Write(b)
	return e
}

// WriteLine writes text followed by a line feed
func (e *Encoder) WriteLine(text string) *Encoder {
	return e.WriteText(text).LineFeed()
}

// Bytes returns the generated ESC/POS commands
func (e *Encoder) Bytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer
func (e *Encoder) Reset() {
	e.buffer.Reset()
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
