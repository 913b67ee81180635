package session

import (
	"log/slog"
	"time"

	"github.com/menta2k/box-annotator/pkg/editor"
	"github.com/menta2k/box-annotator/pkg/render"
)

// Default surface and persistence settings
const (
	DefaultSurfaceWidth  = 800
	DefaultSurfaceHeight = 600
	DefaultSplit         = "train"
	DefaultLoadTimeout   = 30 * time.Second
)

type options struct {
	surfaceW    int
	surfaceH    int
	split       string
	minSize     float64
	classID     int
	loadTimeout time.Duration
	prelabeler  Prelabeler
	classMap    map[string]int
	style       render.Style
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		surfaceW:    DefaultSurfaceWidth,
		surfaceH:    DefaultSurfaceHeight,
		split:       DefaultSplit,
		minSize:     editor.DefaultMinSize,
		loadTimeout: DefaultLoadTimeout,
		style:       render.DefaultStyle(),
	}
}

// Option configures a Session
type Option func(*options)

// WithSurface sets the drawing surface size in screen pixels
func WithSurface(width, height int) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.surfaceW, o.surfaceH = width, height
		}
	}
}

// WithSplit sets the split sent with every save
func WithSplit(split string) Option {
	return func(o *options) {
		if split != "" {
			o.split = split
		}
	}
}

// WithMinBoxSize sets the size a box must exceed on both axes to be committed
func WithMinBoxSize(px float64) Option {
	return func(o *options) {
		if px >= 0 {
			o.minSize = px
		}
	}
}

// WithDefaultClass sets the class id given to drawn boxes
func WithDefaultClass(id int) Option {
	return func(o *options) { o.classID = id }
}

// WithLoadTimeout bounds each image fetch
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithPrelabeler enables Suggest using the given pre-annotator.
// Detected labels found in classMap get that class id; others get the default class.
func WithPrelabeler(p Prelabeler, classMap map[string]int) Option {
	return func(o *options) {
		o.prelabeler = p
		o.classMap = classMap
	}
}

// WithStyle sets the style used by Render
func WithStyle(style render.Style) Option {
	return func(o *options) { o.style = style }
}

// WithLogger overrides the package logger for one session
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
