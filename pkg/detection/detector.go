// Package detection asks a vision model for candidate boxes to pre-annotate an image.
package detection

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/menta2k/box-annotator/pkg/client"
	"github.com/menta2k/box-annotator/pkg/imageio"
	"github.com/menta2k/box-annotator/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt is the default prompt for object localization
const DefaultPrompt = `You are an object locator for a labeling tool.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels).
- x,y is the TOP-LEFT corner of the box; w,h are its width and height.
- One entry per distinct object. Boxes should be tight around each object.
- Labels: lowercase, one or two words.
- If nothing is found, return {"objects": [], "description": "no objects"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config holds configuration for the detector
type Config struct {
	Model         string
	Prompt        string
	MinConfidence float64
	MaxObjects    int
	MaxDimension  int // long side of the image sent to the model, 0 keeps the original
	Quality       int
}

// DefaultConfig returns the detector defaults
func DefaultConfig() Config {
	return Config{
		Model:         "llava",
		Prompt:        DefaultPrompt,
		MinConfidence: 0.25,
		MaxObjects:    20,
		MaxDimension:  1024,
		Quality:       85,
	}
}

// Detector handles object detection using vision models
type Detector struct {
	client client.VisionClient
	config Config
}

// NewDetector creates a new detector with a vision client
func NewDetector(vc client.VisionClient) *Detector {
	return NewDetectorWithConfig(vc, DefaultConfig())
}

// NewDetectorWithConfig creates a detector with custom configuration
func NewDetectorWithConfig(vc client.VisionClient, config Config) *Detector {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Quality <= 0 {
		config.Quality = 85
	}
	return &Detector{client: vc, config: config}
}

// Detect asks the model for objects and returns the cleaned result,
// ordered by descending confidence.
func (d *Detector) Detect(ctx context.Context, model, imageB64 string) (*types.DetectionResult, error) {
	if d.client == nil {
		return nil, fmt.Errorf("no vision client configured")
	}

	result, err := d.client.DetectObjects(ctx, model, d.config.Prompt, imageB64)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	return d.clean(result), nil
}

// Propose encodes img for the configured model and returns its detections
func (d *Detector) Propose(ctx context.Context, img image.Image) (*types.DetectionResult, error) {
	imgB64, err := imageio.PrepareForModel(img, "jpg", d.config.MaxDimension, d.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return d.Detect(ctx, d.config.Model, imgB64)
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

func (d *Detector) clean(result *types.DetectionResult) *types.DetectionResult {
	out := &types.DetectionResult{Description: strings.TrimSpace(result.Description)}

	for _, obj := range result.Objects {
		if obj.Confidence < d.config.MinConfidence {
			continue
		}
		obj.Box = normalizeBox(obj.Box)
		if obj.Box.W <= 0 || obj.Box.H <= 0 {
			continue
		}
		obj.Label = normalizeLabel(obj.Label)
		obj.Confidence = clamp(obj.Confidence, 0, 1)
		out.Objects = append(out.Objects, obj)
	}

	sort.SliceStable(out.Objects, func(i, j int) bool {
		return out.Objects[i].Confidence > out.Objects[j].Confidence
	})
	if d.config.MaxObjects > 0 && len(out.Objects) > d.config.MaxObjects {
		out.Objects = out.Objects[:d.config.MaxObjects]
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps the box inside the unit square, trimming whatever overhangs
func normalizeBox(b types.RelBox) types.RelBox {
	x0 := clamp(b.X, 0, 1)
	y0 := clamp(b.Y, 0, 1)
	x1 := clamp(b.X+b.W, 0, 1)
	y1 := clamp(b.Y+b.H, 0, 1)
	return types.RelBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "object"
	}
	return label
}
