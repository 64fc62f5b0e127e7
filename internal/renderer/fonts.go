package renderer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// faceCandidates lists font files tried for a display face, in order.
// Monospaced CJK-capable faces come first so Hangul lines up with the grid.
var faceCandidates = map[string][]string{
	"d2coding": {
		"/usr/share/fonts/truetype/d2coding/D2Coding.ttf",
		"/usr/share/fonts/d2coding/D2Coding.ttf",
		"/Library/Fonts/D2Coding.ttf",
		"C:\\Windows\\Fonts\\D2Coding.ttf",
	},
}

// fallbackFonts are tried when no candidate for the face exists
var fallbackFonts = []string{
	"/usr/share/fonts/truetype/nanum/NanumGothicCoding.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationMono-Regular.ttf",
	"/System/Library/Fonts/Supplemental/Courier New.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
	"C:\\Windows\\Fonts\\consola.ttf",
	"C:\\Windows\\Fonts\\arial.ttf",
}

type faceKey struct {
	face string
	size int
}

// fontSet resolves display faces to loaded font.Face values and caches
// them by size.
type fontSet struct {
	dirs  []string
	faces map[faceKey]font.Face
	paths map[string]string
}

func newFontSet(dirs []string) *fontSet {
	return &fontSet{
		dirs:  dirs,
		faces: make(map[faceKey]font.Face),
		paths: make(map[string]string),
	}
}

// face returns a face for name at size pixels. When no font file can be
// loaded it returns the built-in bitmap face.
func (fs *fontSet) face(name string, size int) font.Face {
	key := faceKey{face: strings.ToLower(name), size: size}
	if f, ok := fs.faces[key]; ok {
		return f
	}

	f := fs.load(key.face, size)
	fs.faces[key] = f
	return f
}

func (fs *fontSet) load(name string, size int) font.Face {
	path := fs.resolve(name)
	if path == "" {
		return basicfont.Face7x13
	}

	f, err := gg.LoadFontFace(path, float64(size))
	if err != nil {
		// Fall back to the bitmap face rather than failing the render
		return basicfont.Face7x13
	}
	return f
}

// resolve finds the font file for a face name, caching the result
func (fs *fontSet) resolve(name string) string {
	if path, ok := fs.paths[name]; ok {
		return path
	}

	var candidates []string
	for _, dir := range fs.dirs {
		candidates = append(candidates,
			fmt.Sprintf("%s/%s.ttf", dir, name),
			fmt.Sprintf("%s/%s.ttf", dir, faceFileName(name)),
		)
	}
	candidates = append(candidates, faceCandidates[name]...)
	candidates = append(candidates, fallbackFonts...)

	path := ""
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			path = c
			break
		}
	}

	fs.paths[name] = path
	return path
}

// faceFileName maps a lower-cased face back to its usual file name
func faceFileName(name string) string {
	if name == "d2coding" {
		return "D2Coding"
	}
	return name
}
