// Package render draws the annotation surface: the scaled image plus its boxes.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/box-annotator/pkg/types"
	"github.com/menta2k/box-annotator/pkg/viewport"
)

// Style holds the colors and strokes used on the surface
type Style struct {
	Background  string
	BoxColor    string
	DraftColor  string
	LineWidth   float64
	Dash        []float64
	LabelWidth  float64
	LabelHeight float64
	ShowLabels  bool
}

// DefaultStyle returns the stock palette: green committed boxes, dashed blue draft
func DefaultStyle() Style {
	return Style{
		Background:  "#f3f4f6",
		BoxColor:    "#10b981",
		DraftColor:  "#3b82f6",
		LineWidth:   2,
		Dash:        []float64{5, 5},
		LabelWidth:  60,
		LabelHeight: 20,
		ShowLabels:  true,
	}
}

// Frame is everything needed to paint one surface
type Frame struct {
	Image       image.Image
	Mapper      *viewport.Mapper
	Boxes       []types.PixelBox
	Provisional *types.PixelBox
}

// Renderer paints frames onto a fixed-size surface
type Renderer struct {
	width  int
	height int
	style  Style
}

// New creates a renderer for a surface of the given size
func New(width, height int) *Renderer {
	return NewWithStyle(width, height, DefaultStyle())
}

// NewWithStyle creates a renderer with a custom style
func NewWithStyle(width, height int, style Style) *Renderer {
	return &Renderer{width: width, height: height, style: style}
}

// Size returns the surface dimensions
func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// Render paints the frame. A frame without an image yields a blank surface.
func (r *Renderer) Render(f Frame) (*image.RGBA, error) {
	if r.width <= 0 || r.height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", r.width, r.height)
	}

	bg := toNRGBA(gg.Hex(r.style.Background))
	surface := imaging.New(r.width, r.height, bg)

	if f.Image != nil && f.Mapper != nil {
		surface = r.pasteImage(surface, f.Image, f.Mapper.Transform())
	}

	dc := gg.NewContextForImage(surface)
	defer dc.Close()
	dc.SetLineWidth(r.style.LineWidth)

	var tags []image.Point
	if f.Mapper != nil {
		for _, b := range f.Boxes {
			x, y, w, h := f.Mapper.ScreenRect(b)
			dc.SetHexColor(r.style.BoxColor)
			dc.DrawRectangle(x, y, w, h)
			if err := dc.Stroke(); err != nil {
				return nil, fmt.Errorf("stroke box: %w", err)
			}
			if r.style.ShowLabels {
				dc.DrawRectangle(x, y-r.style.LabelHeight, r.style.LabelWidth, r.style.LabelHeight)
				if err := dc.Fill(); err != nil {
					return nil, fmt.Errorf("fill label: %w", err)
				}
				tags = append(tags, image.Pt(int(x+5), int(y-6)))
			}
		}

		if f.Provisional != nil {
			x, y, w, h := f.Mapper.ScreenRect(*f.Provisional)
			dc.SetHexColor(r.style.DraftColor)
			dc.SetDash(r.style.Dash...)
			dc.DrawRectangle(x, y, w, h)
			if err := dc.Stroke(); err != nil {
				return nil, fmt.Errorf("stroke draft: %w", err)
			}
			dc.ClearDash()
		}
	}

	out := asRGBA(dc.Image())
	for i, pt := range tags {
		drawLabel(out, pt, fmt.Sprintf("Class %d", f.Boxes[i].ClassID))
	}
	return out, nil
}

func (r *Renderer) pasteImage(surface *image.NRGBA, img image.Image, t types.Transform) *image.NRGBA {
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) * t.Scale))
	h := int(math.Round(float64(b.Dy()) * t.Scale))
	if w <= 0 || h <= 0 {
		return surface
	}

	var scaled image.Image = img
	if w != b.Dx() || h != b.Dy() {
		scaled = imaging.Resize(img, w, h, imaging.Linear)
	}
	return imaging.Paste(surface, scaled, image.Pt(int(math.Round(t.OffsetX)), int(math.Round(t.OffsetY))))
}

func drawLabel(dst *image.RGBA, at image.Point, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func toNRGBA(c gg.RGBA) color.NRGBA {
	return color.NRGBA{
		R: uint8(math.Round(c.R * 255)),
		G: uint8(math.Round(c.G * 255)),
		B: uint8(math.Round(c.B * 255)),
		A: uint8(math.Round(c.A * 255)),
	}
}
