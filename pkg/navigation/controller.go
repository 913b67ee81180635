// Package navigation tracks the ordered image list, the current position and completion progress.
package navigation

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/box-annotator/pkg/types"
)

// ErrIndexOutOfRange is returned by JumpTo for an index outside the collection
var ErrIndexOutOfRange = errors.New("image index out of range")

// Stats summarizes completion of the collection
type Stats struct {
	Total     int `json:"total"`
	Annotated int `json:"annotated"`
	Remaining int `json:"remaining"`
	Progress  int `json:"progress"`
}

// Controller owns the image sequence and the current index
type Controller struct {
	images    []types.ImageDescriptor
	current   int
	annotated int
}

// New creates an empty controller
func New() *Controller {
	return &Controller{}
}

// Load replaces the sequence and positions on the first image still lacking labels,
// or on the first image when everything is labeled.
func (c *Controller) Load(images []types.ImageDescriptor) {
	c.images = make([]types.ImageDescriptor, len(images))
	copy(c.images, images)

	c.annotated = 0
	for _, img := range c.images {
		if img.HasAnnotation {
			c.annotated++
		}
	}

	c.current = 0
	if i := c.NextUnannotated(0); i >= 0 {
		c.current = i
	}
}

// Len returns the number of images
func (c *Controller) Len() int {
	return len(c.images)
}

// Current returns the current index
func (c *Controller) Current() int {
	return c.current
}

// Descriptor returns the image at the current index
func (c *Controller) Descriptor() (types.ImageDescriptor, bool) {
	return c.At(c.current)
}

// At returns the image at index i
func (c *Controller) At(i int) (types.ImageDescriptor, bool) {
	if i < 0 || i >= len(c.images) {
		return types.ImageDescriptor{}, false
	}
	return c.images[i], true
}

// Images returns a copy of the sequence
func (c *Controller) Images() []types.ImageDescriptor {
	out := make([]types.ImageDescriptor, len(c.images))
	copy(out, c.images)
	return out
}

// Advance moves to the next image. It returns false, leaving the index where it is,
// when the current image is the last one.
func (c *Controller) Advance() bool {
	if c.current < len(c.images)-1 {
		c.current++
		return true
	}
	return false
}

// JumpTo selects any image directly, annotated or not
func (c *Controller) JumpTo(i int) error {
	if i < 0 || i >= len(c.images) {
		return fmt.Errorf("jump to %d of %d: %w", i, len(c.images), ErrIndexOutOfRange)
	}
	c.current = i
	return nil
}

// MarkAnnotated flags an image as labeled
func (c *Controller) MarkAnnotated(i int) {
	if i < 0 || i >= len(c.images) || c.images[i].HasAnnotation {
		return
	}
	c.images[i].HasAnnotation = true
	c.annotated++
}

// NextUnannotated returns the first unlabeled index at or after from, or -1
func (c *Controller) NextUnannotated(from int) int {
	for i := max(from, 0); i < len(c.images); i++ {
		if !c.images[i].HasAnnotation {
			return i
		}
	}
	return -1
}

// Progress returns the labeled share of the collection as a rounded percentage
func (c *Controller) Progress() int {
	if len(c.images) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(c.annotated) / float64(len(c.images))))
}

// Stats returns the completion counters
func (c *Controller) Stats() Stats {
	return Stats{
		Total:     len(c.images),
		Annotated: c.annotated,
		Remaining: len(c.images) - c.annotated,
		Progress:  c.Progress(),
	}
}
