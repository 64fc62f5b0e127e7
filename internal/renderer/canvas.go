package renderer

import (
	"image/color"

	"github.com/fogleman/gg"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
)

// italicShear is the horizontal slant applied to italic runs
const italicShear = -0.2

// Canvas draws emulator elements onto a gg context
type Canvas struct {
	ctx   *gg.Context
	fonts *fontSet
	ink   color.Color
	paper color.Color
}

var _ emulator.Canvas = (*Canvas)(nil)

// FillRect implements emulator.Canvas
func (c *Canvas) FillRect(rect emulator.Rect) {
	c.ctx.SetColor(c.paper)
	c.ctx.DrawRectangle(float64(rect.X), float64(rect.Y), float64(rect.Width), float64(rect.Height))
	c.ctx.Fill()
}

// DrawLine implements emulator.Canvas
func (c *Canvas) DrawLine(x1, y1, x2, y2 int, thickness int) {
	c.ctx.SetColor(c.ink)
	c.ctx.SetLineWidth(float64(thickness))
	c.ctx.DrawLine(float64(x1), float64(y1), float64(x2), float64(y2))
	c.ctx.Stroke()
}

// DrawText implements emulator.Canvas. Glyphs are placed on the cell grid
// so the raster matches the layout's width accounting, and each glyph is
// scaled to fit its cell.
func (c *Canvas) DrawText(text string, style emulator.TextStyle, rect emulator.Rect) {
	c.ctx.SetColor(c.ink)

	if style.Italic {
		c.ctx.Push()
		c.ctx.ShearAbout(italicShear, 0, float64(rect.X), float64(rect.Y+rect.Height))
		defer c.ctx.Pop()
	}

	x := float64(rect.X)
	top := float64(rect.Y)
	for _, r := range text {
		s := string(r)
		span := float64(emulator.Cells(r) * style.CellWidth)

		scale := 1.0
		if w, h := c.MeasureString(s, style); w > 0 && h > 0 {
			scale = min(span/w, float64(style.CellHeight)/h)
		}

		c.ctx.Push()
		c.ctx.ScaleAbout(scale, scale, x, top)
		c.ctx.DrawStringAnchored(s, x, top, 0, 1)
		if style.Bold {
			c.ctx.DrawStringAnchored(s, x+1/scale, top, 0, 1)
		}
		c.ctx.Pop()

		x += span
	}
}

// MeasureString implements emulator.Canvas. The height is the face's ascent
// plus descent in pixels.
func (c *Canvas) MeasureString(text string, style emulator.TextStyle) (float64, float64) {
	face := c.fonts.face(style.Face, style.CellHeight)
	c.ctx.SetFontFace(face)

	w, _ := c.ctx.MeasureString(text)
	m := face.Metrics()
	return w, float64((m.Ascent + m.Descent).Ceil())
}
