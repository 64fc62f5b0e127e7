// Package escpos decodes and encodes the ESC/POS control-code subset the
// emulator understands.
package escpos

// Control bytes
const (
	NUL byte = 0x00
	LF  byte = 0x0A
	CR  byte = 0x0D
	ESC byte = 0x1B
	GS  byte = 0x1D
)

// ESC opcodes
const (
	OpInitialize    byte = '@'
	OpEmphasize     byte = 'E'
	OpUnderline     byte = '-'
	OpJustification byte = 'a'
	OpFeedLines     byte = 'd'
	OpCut           byte = 'i'
)

// GS opcodes
const (
	OpReverse       byte = 'B'
	OpCharacterSize byte = '!'
	OpSelectFont    byte = 'f'
)

// escParams and gsParams give the number of parameter bytes that follow
// each known opcode.
var escParams = map[byte]int{
	OpInitialize:    0,
	OpEmphasize:     1,
	OpUnderline:     1,
	OpJustification: 1,
	OpFeedLines:     1,
	OpCut:           0,
}

var gsParams = map[byte]int{
	OpReverse:       1,
	OpCharacterSize: 1,
	OpSelectFont:    1,
}

// Size register steps, indexed by nibble. Nibbles outside 1..8 select step 0.
var (
	widthSteps  = [9]int{0, 0, 16, 32, 48, 64, 80, 96, 112}
	heightSteps = [9]int{0, 0, 1, 2, 3, 4, 5, 6, 7}
)

// DecodeCharacterSize maps a packed GS ! size byte to width and height
// multipliers. The high nibble selects the width step and the low nibble the
// height step; the width scale is 1 for step 0 and step/16+1 otherwise.
func DecodeCharacterSize(n byte) (width, height int) {
	wn, hn := int(n>>4), int(n&0x0F)

	wStep, hStep := 0, 0
	if wn >= 1 && wn <= 8 {
		wStep = widthSteps[wn]
	}
	if hn >= 1 && hn <= 8 {
		hStep = heightSteps[hn]
	}

	width = 1
	if wStep != 0 {
		width = wStep/16 + 1
	}
	return width, hStep + 1
}

// EncodeCharacterSize is the inverse of DecodeCharacterSize for scales 1..8.
// Out of range scales are clamped.
func EncodeCharacterSize(width, height int) byte {
	width = min(max(width, 1), 8)
	height = min(max(height, 1), 8)
	return byte(width<<4 | height)
}
