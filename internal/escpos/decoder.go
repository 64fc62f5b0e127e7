package escpos

import (
	"strings"

	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
)

// DefaultEncoding is the national code page literal runs are decoded with
var DefaultEncoding encoding.Encoding = korean.EUCKR

// Handler receives the operations decoded from a byte stream.
// *emulator.Printer implements it.
type Handler interface {
	Initialize()
	PrintText(text string)
	LineFeed()
	SelectFont(font emulator.FontID)
	SelectJustification(j emulator.Justification)
	SelectCharacterSize(width, height int)
	SelectEmphasizeMode(enable bool)
	SelectUnderlineMode(mode emulator.UnderlineMode)
	Cut(fn emulator.CutFunction, shape emulator.CutShape, n int)
}

var _ Handler = (*emulator.Printer)(nil)

// Decoder turns raw ESC/POS bytes into Handler calls. It is not safe for
// concurrent use; feed it from a single goroutine.
type Decoder struct {
	handler   Handler
	enc       encoding.Encoding
	carryOver bool
	logger    *zap.Logger

	carry     []byte
	observers []func()
}

// Option configures a Decoder
type Option func(*Decoder)

// WithEncoding sets the code page used for literal runs
func WithEncoding(enc encoding.Encoding) Option {
	return func(d *Decoder) {
		if enc != nil {
			d.enc = enc
		}
	}
}

// WithCarryOver keeps a command or double-byte character split at the end
// of one Feed and completes it with the bytes of the next one. Without it
// the partial command is discarded.
func WithCarryOver() Option {
	return func(d *Decoder) {
		d.carryOver = true
	}
}

// WithLogger sets the logger for per-command debug output
func WithLogger(logger *zap.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDecoder creates a decoder that drives h
func NewDecoder(h Handler, opts ...Option) *Decoder {
	d := &Decoder{
		handler: h,
		enc:     DefaultEncoding,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnActivity registers fn to be called once after every Feed
func (d *Decoder) OnActivity(fn func()) {
	d.observers = append(d.observers, fn)
}

// Pending returns the number of bytes held back for the next Feed
func (d *Decoder) Pending() int { return len(d.carry) }

// Reset drops any bytes held back from a previous Feed
func (d *Decoder) Reset() {
	d.carry = nil
}

// Feed decodes data and applies it to the handler. Malformed input is
// absorbed; Feed never fails.
func (d *Decoder) Feed(data []byte) {
	buf := data
	if len(d.carry) > 0 {
		buf = make([]byte, 0, len(d.carry)+len(data))
		buf = append(buf, d.carry...)
		buf = append(buf, data...)
		d.carry = nil
	}

	var run []byte
	i := 0
	for i < len(buf) {
		b := buf[i]

		switch b {
		case NUL:
			i++

		case LF:
			d.flush(&run)
			d.handler.LineFeed()
			i++

		case CR:
			d.flush(&run)
			if i+1 < len(buf) && buf[i+1] == LF {
				// CRLF breaks once, on the LF
				i++
				continue
			}
			d.handler.LineFeed()
			i++

		case ESC, GS:
			d.flush(&run)
			n, ok := d.command(buf[i:])
			if !ok {
				d.truncated(buf[i:])
				i = len(buf)
				continue
			}
			i += n

		default:
			run = append(run, b)
			i++
		}
	}

	if d.carryOver {
		if k := d.partialCharacter(run); k > 0 {
			d.carry = append([]byte(nil), run[len(run)-k:]...)
			run = run[:len(run)-k]
		}
	}
	d.flush(&run)

	for _, fn := range d.observers {
		fn()
	}
}

// command applies the command at the start of seq and returns how many
// bytes it consumed. ok is false when seq ends before the command does.
func (d *Decoder) command(seq []byte) (n int, ok bool) {
	if len(seq) < 2 {
		return 0, false
	}

	marker, op := seq[0], seq[1]
	params := escParams
	if marker == GS {
		params = gsParams
	}

	count, known := params[op]
	if !known {
		d.logger.Debug("Unknown opcode",
			zap.String("marker", markerName(marker)),
			zap.Uint8("opcode", op),
		)
		// only the marker is consumed; the opcode byte is scanned as data
		return 1, true
	}
	if len(seq) < 2+count {
		return 0, false
	}

	var arg byte
	if count > 0 {
		arg = seq[2]
	}

	if marker == ESC {
		d.applyESC(op, arg)
	} else {
		d.applyGS(op, arg)
	}
	return 2 + count, true
}

func (d *Decoder) applyESC(op, arg byte) {
	switch op {
	case OpInitialize:
		d.logger.Debug("ESC @ initialize")
		d.handler.Initialize()

	case OpEmphasize:
		d.logger.Debug("ESC E emphasize", zap.Uint8("n", arg))
		d.handler.SelectEmphasizeMode(arg == 1)

	case OpUnderline:
		d.logger.Debug("ESC - underline", zap.Uint8("n", arg))
		mode := emulator.UnderlineOff
		if arg == 1 {
			mode = emulator.UnderlineOneDot
		}
		d.handler.SelectUnderlineMode(mode)

	case OpJustification:
		d.logger.Debug("ESC a justification", zap.Uint8("n", arg))
		switch arg {
		case 0:
			d.handler.SelectJustification(emulator.JustifyLeft)
		case 1:
			d.handler.SelectJustification(emulator.JustifyCenter)
		case 2:
			d.handler.SelectJustification(emulator.JustifyRight)
		}

	case OpFeedLines:
		d.logger.Debug("ESC d feed lines", zap.Uint8("n", arg))
		for j := 0; j < int(arg); j++ {
			d.handler.LineFeed()
		}

	case OpCut:
		d.logger.Debug("ESC i cut")
		d.handler.Cut(emulator.CutImmediate, emulator.CutFull, 0)
	}
}

func (d *Decoder) applyGS(op, arg byte) {
	switch op {
	case OpReverse:
		d.logger.Debug("GS B reverse ignored", zap.Uint8("n", arg))

	case OpCharacterSize:
		w, h := DecodeCharacterSize(arg)
		d.logger.Debug("GS ! character size", zap.Uint8("n", arg), zap.Int("width", w), zap.Int("height", h))
		d.handler.SelectCharacterSize(w, h)

	case OpSelectFont:
		d.logger.Debug("GS f select font", zap.Uint8("n", arg))
		d.handler.SelectFont(emulator.FontID(arg))
	}
}

// truncated handles a command cut off by the end of the buffer
func (d *Decoder) truncated(seq []byte) {
	if d.carryOver {
		d.carry = append([]byte(nil), seq...)
		d.logger.Debug("Holding partial command", zap.Int("bytes", len(seq)))
		return
	}
	d.logger.Debug("Discarding truncated command", zap.Binary("bytes", seq))
}

// partialCharacter returns 1 if run ends with the lead byte of a double-byte
// character whose trail byte has not arrived yet.
func (d *Decoder) partialCharacter(run []byte) int {
	if d.enc != korean.EUCKR {
		return 0
	}

	j := 0
	for j < len(run) {
		if run[j] >= 0x81 && run[j] <= 0xFE {
			j += 2
		} else {
			j++
		}
	}
	if j > len(run) {
		return 1
	}
	return 0
}

// flush submits the pending literal run, if any, and clears it
func (d *Decoder) flush(run *[]byte) {
	if len(*run) == 0 {
		return
	}

	text, err := d.enc.NewDecoder().Bytes(*run)
	if err != nil {
		d.logger.Debug("Literal run is not valid in code page", zap.Error(err))
		text = []byte(strings.ToValidUTF8(string(*run), "\uFFFD"))
	}
	*run = (*run)[:0]

	if len(text) > 0 {
		d.handler.PrintText(string(text))
	}
}

func markerName(b byte) string {
	if b == GS {
		return "GS"
	}
	return "ESC"
}
