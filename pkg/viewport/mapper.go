// Package viewport maps between an image's native pixel space and a fixed-size drawing surface.
package viewport

import (
	"fmt"
	"math"

	"github.com/gogpu/gg"

	"github.com/menta2k/box-annotator/pkg/types"
)

// Fit computes the transform that shows an image centered on the surface.
// The image is shrunk to fit but never enlarged beyond 1:1.
func Fit(imageW, imageH, surfaceW, surfaceH float64) (types.Transform, error) {
	if imageW <= 0 || imageH <= 0 {
		return types.Transform{}, fmt.Errorf("invalid image dimensions: %gx%g", imageW, imageH)
	}
	if surfaceW <= 0 || surfaceH <= 0 {
		return types.Transform{}, fmt.Errorf("invalid surface dimensions: %gx%g", surfaceW, surfaceH)
	}

	scale := math.Min(math.Min(surfaceW/imageW, surfaceH/imageH), 1)

	return types.Transform{
		Scale:   scale,
		OffsetX: (surfaceW - imageW*scale) / 2,
		OffsetY: (surfaceH - imageH*scale) / 2,
	}, nil
}

// Mapper holds the transform for the image currently on the surface
type Mapper struct {
	transform types.Transform
	forward   gg.Matrix
	inverse   gg.Matrix
	imageW    float64
	imageH    float64
}

// New computes a mapper for the given image and surface sizes
func New(imageW, imageH, surfaceW, surfaceH float64) (*Mapper, error) {
	t, err := Fit(imageW, imageH, surfaceW, surfaceH)
	if err != nil {
		return nil, err
	}
	return FromTransform(t, imageW, imageH), nil
}

// FromTransform builds a mapper from an already computed transform
func FromTransform(t types.Transform, imageW, imageH float64) *Mapper {
	forward := gg.Translate(t.OffsetX, t.OffsetY).Multiply(gg.Scale(t.Scale, t.Scale))
	return &Mapper{
		transform: t,
		forward:   forward,
		inverse:   forward.Invert(),
		imageW:    imageW,
		imageH:    imageH,
	}
}

// Transform returns the scale and offsets in use
func (m *Mapper) Transform() types.Transform {
	return m.transform
}

// Matrix returns the image-to-screen affine matrix
func (m *Mapper) Matrix() gg.Matrix {
	return m.forward
}

// ImageSize returns the native image dimensions
func (m *Mapper) ImageSize() (float64, float64) {
	return m.imageW, m.imageH
}

// ToImage converts a surface point to image coordinates
func (m *Mapper) ToImage(screen types.Point) types.Point {
	p := m.inverse.TransformPoint(gg.Pt(screen.X, screen.Y))
	return types.Point{X: p.X, Y: p.Y}
}

// ToScreen converts an image point to surface coordinates
func (m *Mapper) ToScreen(img types.Point) types.Point {
	p := m.forward.TransformPoint(gg.Pt(img.X, img.Y))
	return types.Point{X: p.X, Y: p.Y}
}

// InBounds reports whether an image-space point lies on the image, edges included
func (m *Mapper) InBounds(p types.Point) bool {
	return p.X >= 0 && p.X <= m.imageW && p.Y >= 0 && p.Y <= m.imageH
}

// Clamp pulls an image-space point onto the image rectangle
func (m *Mapper) Clamp(p types.Point) types.Point {
	return types.Point{
		X: clamp(p.X, 0, m.imageW),
		Y: clamp(p.Y, 0, m.imageH),
	}
}

// ScreenRect returns the surface rectangle covered by a pixel box
func (m *Mapper) ScreenRect(b types.PixelBox) (x, y, w, h float64) {
	tl := m.ToScreen(types.Point{X: b.X, Y: b.Y})
	s := m.transform.Scale
	return tl.X, tl.Y, b.Width * s, b.Height * s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
