// Package vision finds salient regions in an image without a model. It backs
// the offline "saliency" pre-annotator, which proposes boxes around whatever
// stands out from its surroundings.
package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/box-annotator/pkg/types"
)

// SubjectDetector proposes boxes around salient regions
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	EdgeThreshold    float64 // per-pixel edge strength below this counts as flat
	ContrastWeight   float64 // weight of local edge strength
	ColorWeight      float64 // weight of brightness distance from the image mean
	MinSubjectRatio  float64 // smallest region, as a fraction of the image area
	MinScore         float64 // center-surround score a region must exceed
	MaxRegions       int
	OverlapThreshold float64 // overlap (of the smaller region) above which the weaker one is dropped
	WorkSize         int     // long side the image is shrunk to before analysis
}

// DefaultConfig returns the detector defaults
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		EdgeThreshold:    0.01,
		ContrastWeight:   0.3,
		ColorWeight:      0.5,
		MinSubjectRatio:  0.01,
		MinScore:         0.05,
		MaxRegions:       10,
		OverlapThreshold: 0.5,
		WorkSize:         256,
	}
}

// New creates a new SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{config: DefaultConfig()}
}

// NewWithConfig creates a new SubjectDetector with custom configuration.
// Zero limits fall back to the defaults.
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	def := DefaultConfig()
	if config.MaxRegions <= 0 {
		config.MaxRegions = def.MaxRegions
	}
	if config.WorkSize <= 0 {
		config.WorkSize = def.WorkSize
	}
	if config.OverlapThreshold <= 0 {
		config.OverlapThreshold = def.OverlapThreshold
	}
	return &SubjectDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Overlap returns the intersection area divided by the smaller region's area
func (r Region) Overlap(o Region) float64 {
	ix := min(r.X+r.Width, o.X+o.Width) - max(r.X, o.X)
	iy := min(r.Y+r.Height, o.Y+o.Height) - max(r.Y, o.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	smaller := min(r.Area(), o.Area())
	if smaller == 0 {
		return 0
	}
	return float64(ix*iy) / float64(smaller)
}

// DetectSubjects returns salient regions in img's own pixel coordinates,
// strongest first.
func (d *SubjectDetector) DetectSubjects(ctx context.Context, img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("empty image")
	}

	work := imaging.Clone(img)
	if width > d.config.WorkSize || height > d.config.WorkSize {
		if width >= height {
			work = imaging.Resize(work, d.config.WorkSize, 0, imaging.Box)
		} else {
			work = imaging.Resize(work, 0, d.config.WorkSize, imaging.Box)
		}
	}
	ww, wh := work.Bounds().Dx(), work.Bounds().Dy()

	table := newIntegral(d.saliencyMap(work), ww, wh)
	candidates, err := d.scan(ctx, table, ww, wh)
	if err != nil {
		return nil, err
	}
	kept := d.suppress(candidates)

	sx := float64(width) / float64(ww)
	sy := float64(height) / float64(wh)
	out := make([]Region, len(kept))
	for i, r := range kept {
		out[i] = Region{
			X:      int(math.Round(float64(r.X) * sx)),
			Y:      int(math.Round(float64(r.Y) * sy)),
			Width:  int(math.Round(float64(r.Width) * sx)),
			Height: int(math.Round(float64(r.Height) * sy)),
			Score:  r.Score,
		}
	}
	return out, nil
}

// Propose returns the salient regions as normalized detections. The strongest
// region gets confidence 1 and the rest are scaled against it.
func (d *SubjectDetector) Propose(ctx context.Context, img image.Image) (*types.DetectionResult, error) {
	regions, err := d.DetectSubjects(ctx, img)
	if err != nil {
		return nil, err
	}

	w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	result := &types.DetectionResult{
		Description: fmt.Sprintf("%d salient regions", len(regions)),
	}
	for _, r := range regions {
		result.Objects = append(result.Objects, types.Detection{
			Label:      "object",
			Confidence: math.Min(1, r.Score/regions[0].Score),
			Box: types.RelBox{
				X: float64(r.X) / w,
				Y: float64(r.Y) / h,
				W: float64(r.Width) / w,
				H: float64(r.Height) / h,
			},
		})
	}
	return result, nil
}

// saliencyMap mixes edge strength against the 8 neighbours with the distance
// of each pixel's brightness from the image mean. Values are row-major.
func (d *SubjectDetector) saliencyMap(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	brightness := make([]float64, w*h)
	var mean float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4:]
			b := (float64(p[0]) + float64(p[1]) + float64(p[2])) / (3 * 255)
			brightness[y*w+x] = b
			mean += b
		}
	}
	mean /= float64(w * h)

	saliency := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			edge := edgeStrength(img, x, y)
			if edge < d.config.EdgeThreshold {
				edge = 0
			}
			contrast := math.Abs(brightness[y*w+x] - mean)
			saliency[y*w+x] = d.config.ContrastWeight*edge + d.config.ColorWeight*contrast
		}
	}
	return saliency
}

func edgeStrength(img *image.NRGBA, x, y int) float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	c := img.Pix[y*img.Stride+x*4:]
	var sum float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			n := img.Pix[ny*img.Stride+nx*4:]
			dr := float64(c[0]) - float64(n[0])
			dg := float64(c[1]) - float64(n[1])
			db := float64(c[2]) - float64(n[2])
			sum += math.Sqrt(dr*dr+dg*dg+db*db) / (255 * math.Sqrt(3))
		}
	}
	return sum / 8
}

// integral is a summed-area table over a row-major map
type integral struct {
	sums []float64
	w    int
}

func newIntegral(values []float64, w, h int) integral {
	sums := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += values[y*w+x]
			sums[(y+1)*(w+1)+x+1] = sums[y*(w+1)+x+1] + row
		}
	}
	return integral{sums: sums, w: w + 1}
}

// sum over [x0,x1) x [y0,y1)
func (t integral) sum(x0, y0, x1, y1 int) float64 {
	return t.sums[y1*t.w+x1] - t.sums[y0*t.w+x1] - t.sums[y1*t.w+x0] + t.sums[y0*t.w+x0]
}

// scan slides square windows of several sizes over the map and scores each by
// its mean saliency minus the mean of a surrounding ring.
func (d *SubjectDetector) scan(ctx context.Context, t integral, w, h int) ([]Region, error) {
	short := min(w, h)
	minArea := d.config.MinSubjectRatio * float64(w*h)

	var regions []Region
	for _, div := range []int{8, 6, 4, 3, 2} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		size := short / div
		if size < 2 || float64(size*size) < minArea {
			continue
		}
		step := max(1, size/4)
		pad := max(1, size/4)

		for y := 0; y+size <= h; y += step {
			for x := 0; x+size <= w; x += step {
				inner := t.sum(x, y, x+size, y+size)
				innerArea := float64(size * size)

				ox0, oy0 := max(0, x-pad), max(0, y-pad)
				ox1, oy1 := min(w, x+size+pad), min(h, y+size+pad)
				ringArea := float64((ox1-ox0)*(oy1-oy0)) - innerArea
				var surround float64
				if ringArea > 0 {
					surround = (t.sum(ox0, oy0, ox1, oy1) - inner) / ringArea
				}

				score := inner/innerArea - surround
				if score > d.config.MinScore {
					regions = append(regions, Region{X: x, Y: y, Width: size, Height: size, Score: score})
				}
			}
		}
	}
	return regions, nil
}

// suppress keeps the strongest regions, dropping any that mostly overlap a
// region already kept.
func (d *SubjectDetector) suppress(regions []Region) []Region {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Score > regions[j].Score
	})

	var kept []Region
	for _, r := range regions {
		if len(kept) >= d.config.MaxRegions {
			break
		}
		overlaps := false
		for _, k := range kept {
			if r.Overlap(k) > d.config.OverlapThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, r)
		}
	}
	return kept
}
