// Package renderer rasterizes receipts into images
package renderer

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
)

// Renderer converts receipt pages to images. It is safe for concurrent use;
// renders are serialized because font faces are not.
type Renderer struct {
	mu    sync.Mutex
	fonts *fontSet
}

// New creates a renderer. fontDirs are searched for <face>.ttf before the
// system font locations.
func New(fontDirs ...string) *Renderer {
	return &Renderer{
		fonts: newFontSet(fontDirs),
	}
}

// Render draws page on white paper sized to the page
func (r *Renderer) Render(page emulator.Page) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := gg.NewContext(page.PaperWidth(), max(1, page.PaperHeight()))
	ctx.SetColor(color.White)
	ctx.Clear()

	page.DrawInto(&Canvas{
		ctx:   ctx,
		fonts: r.fonts,
		ink:   color.Black,
		paper: color.White,
	})

	return ctx.Image()
}

// EncodePNG renders page and writes it to w as PNG
func (r *Renderer) EncodePNG(w io.Writer, page emulator.Page) error {
	img := r.Render(page)

	ctx := gg.NewContextForImage(img)
	if err := ctx.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode receipt %s: %w", page.ID, err)
	}
	return nil
}

// SavePNG renders page to a PNG file
func (r *Renderer) SavePNG(path string, page emulator.Page) error {
	if err := gg.SavePNG(path, r.Render(page)); err != nil {
		return fmt.Errorf("failed to save receipt %s: %w", page.ID, err)
	}
	return nil
}
