// Package annotator provides an interactive bounding-box annotation engine for
// object-detection datasets.
//
// An annotation pass walks the images of a dataset held by a storage backend.
// Each image is fitted onto a fixed drawing surface, pointer gestures on the
// surface become boxes in the image's native pixels, and saving converts the
// boxes to normalized center/size labels and hands them to the backend.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		annotator "github.com/menta2k/box-annotator"
//		"github.com/menta2k/box-annotator/internal/config"
//	)
//
//	func main() {
//		a, err := annotator.New(config.Default())
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		ctx := context.Background()
//		if err := a.Session.Open(ctx, "soups"); err != nil {
//			log.Fatal(err)
//		}
//		a.Session.Wait()
//
//		// Drag a box on the 800x600 surface and save it
//		a.Session.PointerDown(100, 100)
//		a.Session.PointerMove(300, 250)
//		a.Session.PointerUp()
//
//		if _, err := a.Session.Save(ctx); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
// 1. Viewport (pkg/viewport): fits an image on the surface and maps points both ways
// 2. Editor (pkg/editor): the draw gesture and the committed box set
// 3. Labels (pkg/labels): pixel to normalized conversion and label file formats
// 4. Navigation (pkg/navigation): position and progress through a dataset
// 5. Session (pkg/session): the facade tying the above to storage and image loading
//
// Optional pieces: pkg/render paints the surface, pkg/detection pre-annotates
// images with a vision model, pkg/vision pre-annotates salient regions without
// one, and pkg/labelserver serves a dataset directory locally with the same
// HTTP contract as the remote backend.
package annotator

import (
	"fmt"
	"strings"
	"time"

	"github.com/menta2k/box-annotator/internal/config"
	"github.com/menta2k/box-annotator/pkg/client"
	"github.com/menta2k/box-annotator/pkg/detection"
	"github.com/menta2k/box-annotator/pkg/imageio"
	"github.com/menta2k/box-annotator/pkg/llamacpp"
	"github.com/menta2k/box-annotator/pkg/ollama"
	"github.com/menta2k/box-annotator/pkg/render"
	"github.com/menta2k/box-annotator/pkg/session"
	"github.com/menta2k/box-annotator/pkg/storage"
	"github.com/menta2k/box-annotator/pkg/vision"
)

// Version of the box annotator library
const Version = "1.0.0"

// Annotator bundles a session with the collaborators it was built from
type Annotator struct {
	Config     *config.Config
	Session    *session.Session
	Storage    *storage.Client
	Loader     *imageio.Loader
	Prelabeler session.Prelabeler // nil unless pre-annotation is enabled
}

// New wires storage, image loading and, when enabled, pre-annotation into a session
func New(cfg *config.Config, opts ...session.Option) (*Annotator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	store, err := storage.NewClient(cfg.API.BaseURL, timeout)
	if err != nil {
		return nil, err
	}
	loader, err := imageio.NewLoader(cfg.API.BaseURL)
	if err != nil {
		return nil, err
	}

	a := &Annotator{Config: cfg, Storage: store, Loader: loader}

	base := []session.Option{
		session.WithSurface(cfg.Viewport.SurfaceWidth, cfg.Viewport.SurfaceHeight),
		session.WithSplit(cfg.API.Split),
		session.WithMinBoxSize(cfg.Editor.MinBoxSize),
		session.WithDefaultClass(cfg.Editor.DefaultClassID),
		session.WithLoadTimeout(timeout),
		session.WithStyle(StyleFromConfig(cfg.Render)),
	}

	if cfg.Prelabel.Enabled {
		p, err := NewPrelabeler(cfg.Prelabel)
		if err != nil {
			return nil, err
		}
		a.Prelabeler = p
		base = append(base, session.WithPrelabeler(p, cfg.Prelabel.Classes))
	}

	a.Session = session.New(store, loader, append(base, opts...)...)
	return a, nil
}

// NewPrelabeler creates the pre-annotator named by the config backend
func NewPrelabeler(cfg config.PrelabelConfig) (session.Prelabeler, error) {
	if strings.EqualFold(cfg.Backend, "saliency") {
		vcfg := vision.DefaultConfig()
		if cfg.MaxObjects > 0 {
			vcfg.MaxRegions = cfg.MaxObjects
		}
		return vision.NewWithConfig(vcfg), nil
	}

	vc, err := NewVisionClient(cfg)
	if err != nil {
		return nil, err
	}
	dcfg := detection.DefaultConfig()
	if cfg.Model != "" {
		dcfg.Model = cfg.Model
	}
	dcfg.MinConfidence = cfg.MinConfidence
	dcfg.MaxObjects = cfg.MaxObjects
	dcfg.MaxDimension = cfg.MaxDimension
	return detection.NewDetectorWithConfig(vc, dcfg), nil
}

// NewVisionClient creates the vision backend named by the config
func NewVisionClient(cfg config.PrelabelConfig) (client.VisionClient, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "ollama":
		return ollama.NewClient(cfg.URL)
	case "llamacpp":
		return llamacpp.NewClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.Backend)
	}
}

// StyleFromConfig builds a render style, keeping defaults for unset fields
func StyleFromConfig(cfg config.RenderConfig) render.Style {
	style := render.DefaultStyle()
	if cfg.Background != "" {
		style.Background = cfg.Background
	}
	if cfg.BoxColor != "" {
		style.BoxColor = cfg.BoxColor
	}
	if cfg.DraftColor != "" {
		style.DraftColor = cfg.DraftColor
	}
	if cfg.LineWidth > 0 {
		style.LineWidth = cfg.LineWidth
	}
	style.ShowLabels = cfg.ShowLabels
	return style
}

// SaveSurface renders the current surface and writes it to path
func (a *Annotator) SaveSurface(path string) error {
	img, err := a.Session.Render()
	if err != nil {
		return err
	}
	return imageio.Save(img, path, a.Config.Render.Format, a.Config.Render.Quality, false)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
