// Package session drives one annotation pass over a dataset: it fetches images,
// routes pointer gestures through the viewport into the box editor, and persists
// the committed boxes as normalized labels.
//
// A Session is meant to be driven from a single event loop. Image fetches run in
// their own goroutines and re-enter the session under its mutex; a fetch whose
// target is no longer current when it completes is discarded.
package session

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/menta2k/box-annotator/pkg/editor"
	"github.com/menta2k/box-annotator/pkg/labels"
	"github.com/menta2k/box-annotator/pkg/navigation"
	"github.com/menta2k/box-annotator/pkg/render"
	"github.com/menta2k/box-annotator/pkg/types"
	"github.com/menta2k/box-annotator/pkg/viewport"
)

// Storage lists dataset images and persists annotations
type Storage interface {
	ListImages(ctx context.Context, dataset string) (types.Collection, error)
	SaveAnnotation(ctx context.Context, dataset, filename, split string, boxes []types.NormalizedBox) error
}

// ImageLoader fetches and decodes the image behind a descriptor path
type ImageLoader interface {
	Load(ctx context.Context, path string) (image.Image, error)
}

// Prelabeler proposes boxes for an image
type Prelabeler interface {
	Propose(ctx context.Context, img image.Image) (*types.DetectionResult, error)
}

// StepResult reports where navigation landed. Complete is set when the
// collection had no further image; the index is then unchanged.
type StepResult struct {
	Index    int
	Complete bool
}

// State is a point-in-time copy of the session for display
type State struct {
	Dataset     string
	Index       int
	Descriptor  types.ImageDescriptor
	Boxes       []types.PixelBox
	Provisional *types.PixelBox
	Transform   types.Transform
	ImageWidth  int
	ImageHeight int
	Loading     bool
	LoadErr     error
	Busy        bool
	Drawing     bool // a gesture is in progress
	Stats       navigation.Stats
}

// Session is the annotation facade
type Session struct {
	mu sync.Mutex

	storage  Storage
	loader   ImageLoader
	opts     options
	nav      *navigation.Controller
	editor   *editor.BoxEditor
	renderer *render.Renderer

	dataset string
	opened  bool
	busy    bool

	// gen identifies the image currently shown; it changes on every load and
	// on every successful save, and late results carrying an older gen are dropped
	gen     uint64
	image   image.Image
	mapper  *viewport.Mapper
	loading bool
	loadErr error

	loads sync.WaitGroup
}

// New creates a session over the given storage and image loader
func New(storage Storage, loader ImageLoader, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Session{
		storage: storage,
		loader:  loader,
		opts:    o,
		nav:     navigation.New(),
		editor: editor.NewWithConfig(editor.Config{
			MinSize:        o.minSize,
			DefaultClassID: o.classID,
		}),
		renderer: render.NewWithStyle(o.surfaceW, o.surfaceH, o.style),
	}
}

func (s *Session) log() *slog.Logger {
	if s.opts.logger != nil {
		return s.opts.logger
	}
	return Logger()
}

// Open lists the dataset and starts loading its first unannotated image
func (s *Session) Open(ctx context.Context, dataset string) error {
	if dataset == "" {
		return ErrNoDataset
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	s.mu.Unlock()

	coll, err := s.storage.ListImages(ctx, dataset)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return fmt.Errorf("failed to list dataset %s: %w", dataset, err)
	}

	s.dataset = dataset
	s.opened = true
	s.nav.Load(coll.Images)
	s.log().Info("dataset opened",
		"dataset", dataset,
		"images", s.nav.Len(),
		"start", s.nav.Current())

	s.startLoadLocked()
	return nil
}

// startLoadLocked resets per-image state and fetches the current image
func (s *Session) startLoadLocked() {
	s.editor.SetBounds(0, 0)
	s.image = nil
	s.mapper = nil
	s.loadErr = nil
	s.loading = false

	desc, ok := s.nav.Descriptor()
	if !ok {
		return
	}
	s.gen++
	gen := s.gen
	index := s.nav.Current()
	s.loading = true

	s.log().Debug("loading image", "index", index, "filename", desc.Filename, "gen", gen)

	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.loadTimeout)
		defer cancel()

		img, err := s.loader.Load(ctx, desc.Path)
		s.completeLoad(gen, desc.Filename, img, err)
	}()
}

func (s *Session) completeLoad(gen uint64, filename string, img image.Image, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.loading {
		s.log().Debug("discarding stale image load", "filename", filename, "gen", gen)
		return
	}
	s.loading = false

	if err == nil && img == nil {
		err = fmt.Errorf("loader returned no image")
	}
	if err != nil {
		s.loadErr = &LoadError{Filename: filename, Cause: err}
		s.log().Warn("image load failed", "filename", filename, "error", err)
		return
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	m, err := viewport.New(w, h, float64(s.opts.surfaceW), float64(s.opts.surfaceH))
	if err != nil {
		s.loadErr = &LoadError{Filename: filename, Cause: err}
		s.log().Warn("image has unusable dimensions", "filename", filename, "error", err)
		return
	}

	s.image = img
	s.mapper = m
	s.editor.SetBounds(w, h)
	s.log().Debug("image ready",
		"filename", filename,
		"size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"scale", m.Transform().Scale)
}

// Wait blocks until every image fetch started so far has settled.
// It must be called from the goroutine that drives the session, never
// concurrently with Open, Save, Skip or JumpTo.
func (s *Session) Wait() {
	s.loads.Wait()
}

func (s *Session) readyLocked() error {
	if !s.opened {
		return ErrNoDataset
	}
	if s.busy {
		return ErrBusy
	}
	if s.loading || s.mapper == nil {
		return ErrImageNotReady
	}
	return nil
}

// PointerDown starts a gesture at a surface point. It reports whether a gesture
// began; points off the image are ignored.
func (s *Session) PointerDown(x, y float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return false, err
	}
	return s.editor.BeginDraw(s.mapper.ToImage(types.Point{X: x, Y: y})), nil
}

// PointerMove updates the provisional box while a gesture is active
func (s *Session) PointerMove(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mapper == nil || s.busy {
		return false
	}
	return s.editor.UpdateDraw(s.mapper.ToImage(types.Point{X: x, Y: y}))
}

// PointerUp ends the gesture and reports whether a box was committed.
// While a save is in flight the gesture is held open.
func (s *Session) PointerUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return false
	}
	committed := s.editor.EndDraw()
	if committed {
		s.log().Debug("box committed", "boxes", s.editor.Len())
	}
	return committed
}

// PointerLeave ends an active gesture the same way PointerUp does
func (s *Session) PointerLeave() bool {
	return s.PointerUp()
}

// DeleteBox removes a committed box by position; stale indices are ignored
func (s *Session) DeleteBox(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.DeleteBox(index)
}

// ClearAll removes every committed box of the current image
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.ClearAll()
}

// Save submits the committed boxes of the current image and advances on success
func (s *Session) Save(ctx context.Context) (StepResult, error) {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return StepResult{}, ErrNoDataset
	}
	if s.busy {
		s.mu.Unlock()
		return StepResult{}, ErrBusy
	}

	index := s.nav.Current()
	desc, ok := s.nav.Descriptor()
	if !ok {
		s.mu.Unlock()
		return StepResult{Index: index}, &ValidationError{Reason: "no image selected"}
	}
	if s.editor.Len() == 0 {
		s.mu.Unlock()
		return StepResult{Index: index}, &ValidationError{Reason: "draw at least one box before saving"}
	}
	if s.mapper == nil {
		s.mu.Unlock()
		return StepResult{Index: index}, ErrImageNotReady
	}

	w, h := s.mapper.ImageSize()
	boxes, err := labels.ToNormalized(s.editor.Boxes(), w, h)
	if err != nil {
		s.mu.Unlock()
		return StepResult{Index: index}, fmt.Errorf("failed to normalize boxes: %w", err)
	}

	s.busy = true
	dataset, split := s.dataset, s.opts.split
	s.mu.Unlock()

	err = s.storage.SaveAnnotation(ctx, dataset, desc.Filename, split, boxes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.log().Warn("save failed", "filename", desc.Filename, "error", err)
		return StepResult{Index: index}, &PersistenceError{Filename: desc.Filename, Cause: err}
	}

	s.nav.MarkAnnotated(index)
	s.editor.CancelDraw()
	s.gen++
	s.log().Info("annotations saved",
		"filename", desc.Filename,
		"boxes", len(boxes),
		"progress", s.nav.Progress())

	return s.advanceLocked(), nil
}

// Skip advances without saving or marking the current image
func (s *Session) Skip() (StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return StepResult{}, ErrNoDataset
	}
	if s.busy {
		return StepResult{}, ErrBusy
	}
	return s.advanceLocked(), nil
}

func (s *Session) advanceLocked() StepResult {
	if !s.nav.Advance() {
		s.log().Info("collection complete", "annotated", s.nav.Stats().Annotated)
		return StepResult{Index: s.nav.Current(), Complete: true}
	}
	s.startLoadLocked()
	return StepResult{Index: s.nav.Current()}
}

// JumpTo selects any image by index. Boxes saved earlier are not reloaded.
// Jumping to the current image retries it only if its load failed.
func (s *Session) JumpTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return ErrNoDataset
	}
	if s.busy {
		return ErrBusy
	}
	if index == s.nav.Current() && s.loadErr == nil {
		return nil
	}
	if err := s.nav.JumpTo(index); err != nil {
		return err
	}
	s.startLoadLocked()
	return nil
}

// Images returns a copy of the dataset listing with current annotation flags
func (s *Session) Images() []types.ImageDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Images()
}

// Snapshot returns a copy of the current session state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Dataset: s.dataset,
		Index:   s.nav.Current(),
		Boxes:   s.editor.Boxes(),
		Loading: s.loading,
		LoadErr: s.loadErr,
		Busy:    s.busy,
		Stats:   s.nav.Stats(),
	}
	if desc, ok := s.nav.Descriptor(); ok {
		st.Descriptor = desc
	}
	if p, ok := s.editor.Provisional(); ok {
		st.Provisional = &p
	}
	st.Drawing = s.editor.State() == editor.Drawing
	if s.mapper != nil {
		st.Transform = s.mapper.Transform()
		w, h := s.mapper.ImageSize()
		st.ImageWidth, st.ImageHeight = int(w), int(h)
	}
	return st
}

// Render paints the current surface: image, committed boxes and the provisional box
func (s *Session) Render() (*image.RGBA, error) {
	s.mu.Lock()
	frame := render.Frame{
		Image:  s.image,
		Mapper: s.mapper,
		Boxes:  s.editor.Boxes(),
	}
	if p, ok := s.editor.Provisional(); ok {
		frame.Provisional = &p
	}
	s.mu.Unlock()

	return s.renderer.Render(frame)
}

// Suggest asks the configured pre-annotator for boxes on the current image and
// commits them through the editor, subject to the same size threshold as drawn
// boxes. It returns the number of boxes committed.
func (s *Session) Suggest(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.opts.prelabeler == nil {
		s.mu.Unlock()
		return 0, ErrNoPrelabeler
	}
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	img, mapper, gen := s.image, s.mapper, s.gen
	s.mu.Unlock()

	result, err := s.opts.prelabeler.Propose(ctx, img)
	if err != nil {
		return 0, fmt.Errorf("pre-annotation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if result == nil {
		return 0, nil
	}
	if s.gen != gen {
		s.log().Debug("discarding stale suggestions", "gen", gen)
		return 0, nil
	}

	w, h := mapper.ImageSize()
	committed := 0
	for _, det := range result.Objects {
		nb := labels.FromRelBox(det.Box, s.classFor(det.Label))
		pb, err := labels.FromNormalized([]types.NormalizedBox{nb}, w, h)
		if err != nil {
			return committed, err
		}
		if s.editor.Commit(pb[0]) {
			committed++
		}
	}
	s.log().Debug("suggestions committed", "proposed", len(result.Objects), "committed", committed)
	return committed, nil
}

func (s *Session) classFor(label string) int {
	if id, ok := s.opts.classMap[label]; ok {
		return id
	}
	return s.opts.classID
}
