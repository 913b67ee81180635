// Package editor implements the draw gesture and the committed box set for one image.
package editor

import (
	"math"

	"github.com/menta2k/box-annotator/pkg/types"
)

// State is the gesture state of the editor
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// DefaultMinSize is the size in pixels a box must exceed on both axes to be kept
const DefaultMinSize = 10.0

// Config holds configuration for the box editor
type Config struct {
	MinSize        float64
	DefaultClassID int
}

// BoxEditor owns the committed boxes of the active image and the in-progress gesture.
// Boxes are write-once: correcting one means deleting it and drawing again.
type BoxEditor struct {
	config Config

	width  float64
	height float64

	state       State
	anchor      types.Point
	provisional *types.PixelBox
	boxes       []types.PixelBox
}

// New creates a BoxEditor with default configuration
func New() *BoxEditor {
	return NewWithConfig(Config{MinSize: DefaultMinSize})
}

// NewWithConfig creates a BoxEditor with custom configuration
func NewWithConfig(config Config) *BoxEditor {
	return &BoxEditor{config: config}
}

// SetBounds sets the image dimensions used for hit testing and clamping.
// Any gesture and committed boxes are dropped.
func (e *BoxEditor) SetBounds(width, height float64) {
	e.width = width
	e.height = height
	e.ClearAll()
	e.CancelDraw()
}

// Bounds returns the current image dimensions
func (e *BoxEditor) Bounds() (float64, float64) {
	return e.width, e.height
}

// State returns the current gesture state
func (e *BoxEditor) State() State {
	return e.state
}

// BeginDraw anchors a new gesture at an image-space point.
// It does nothing unless the editor is idle and the point is on the image.
func (e *BoxEditor) BeginDraw(p types.Point) bool {
	if e.state != Idle || !e.inBounds(p) {
		return false
	}
	e.anchor = p
	e.provisional = nil
	e.state = Drawing
	return true
}

// UpdateDraw recomputes the provisional box against a clamped point
func (e *BoxEditor) UpdateDraw(p types.Point) bool {
	if e.state != Drawing {
		return false
	}
	p = e.clamp(p)
	e.provisional = &types.PixelBox{
		X:       math.Min(e.anchor.X, p.X),
		Y:       math.Min(e.anchor.Y, p.Y),
		Width:   math.Abs(p.X - e.anchor.X),
		Height:  math.Abs(p.Y - e.anchor.Y),
		ClassID: e.config.DefaultClassID,
	}
	return true
}

// EndDraw finishes the gesture and keeps the box if it is large enough.
// It reports whether a box was committed.
func (e *BoxEditor) EndDraw() bool {
	if e.state != Drawing {
		return false
	}
	box := e.provisional
	e.state = Idle
	e.provisional = nil

	if box == nil || !e.largeEnough(*box) {
		return false
	}
	e.boxes = append(e.boxes, *box)
	return true
}

// CancelDraw abandons the current gesture without committing
func (e *BoxEditor) CancelDraw() {
	e.state = Idle
	e.provisional = nil
}

// Commit adds a box produced outside a gesture, clamped to the image
func (e *BoxEditor) Commit(b types.PixelBox) bool {
	tl := e.clamp(types.Point{X: b.X, Y: b.Y})
	br := e.clamp(types.Point{X: b.X + b.Width, Y: b.Y + b.Height})
	box := types.PixelBox{
		X:       tl.X,
		Y:       tl.Y,
		Width:   br.X - tl.X,
		Height:  br.Y - tl.Y,
		ClassID: b.ClassID,
	}
	if !e.largeEnough(box) {
		return false
	}
	e.boxes = append(e.boxes, box)
	return true
}

// DeleteBox removes the box at index; stale indices are ignored
func (e *BoxEditor) DeleteBox(index int) {
	if index < 0 || index >= len(e.boxes) {
		return
	}
	e.boxes = append(e.boxes[:index], e.boxes[index+1:]...)
}

// ClearAll removes every committed box
func (e *BoxEditor) ClearAll() {
	e.boxes = nil
}

// Boxes returns a copy of the committed boxes
func (e *BoxEditor) Boxes() []types.PixelBox {
	out := make([]types.PixelBox, len(e.boxes))
	copy(out, e.boxes)
	return out
}

// Len returns the number of committed boxes
func (e *BoxEditor) Len() int {
	return len(e.boxes)
}

// Provisional returns the box under construction, if any
func (e *BoxEditor) Provisional() (types.PixelBox, bool) {
	if e.provisional == nil {
		return types.PixelBox{}, false
	}
	return *e.provisional, true
}

func (e *BoxEditor) largeEnough(b types.PixelBox) bool {
	return b.Width > e.config.MinSize && b.Height > e.config.MinSize
}

func (e *BoxEditor) inBounds(p types.Point) bool {
	return p.X >= 0 && p.X <= e.width && p.Y >= 0 && p.Y <= e.height
}

func (e *BoxEditor) clamp(p types.Point) types.Point {
	return types.Point{
		X: math.Max(0, math.Min(p.X, e.width)),
		Y: math.Max(0, math.Min(p.Y, e.height)),
	}
}
