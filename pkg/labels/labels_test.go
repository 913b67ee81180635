package labels

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/menta2k/box-annotator/pkg/types"
)

func relClose(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff < 1e-9 {
		return true
	}
	return diff/math.Max(math.Abs(a), math.Abs(b)) <= 1e-6
}

func TestToNormalized(t *testing.T) {
	boxes := []types.PixelBox{{X: 10, Y: 10, Width: 90, Height: 70, ClassID: 0}}

	got, err := ToNormalized(boxes, 200, 100)
	if err != nil {
		t.Fatalf("ToNormalized failed: %v", err)
	}

	want := types.NormalizedBox{ClassID: 0, XCenter: 0.275, YCenter: 0.45, Width: 0.45, Height: 0.7}
	if len(got) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(got))
	}
	g := got[0]
	if !relClose(g.XCenter, want.XCenter) || !relClose(g.YCenter, want.YCenter) ||
		!relClose(g.Width, want.Width) || !relClose(g.Height, want.Height) {
		t.Errorf("Expected %+v, got %+v", want, g)
	}
}

func TestInvalidDimensions(t *testing.T) {
	boxes := []types.PixelBox{{X: 1, Y: 1, Width: 20, Height: 20}}

	for _, dims := range [][2]float64{{0, 100}, {100, 0}, {-5, 10}} {
		if _, err := ToNormalized(boxes, dims[0], dims[1]); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("ToNormalized(%v) expected ErrInvalidDimensions, got %v", dims, err)
		}
		if _, err := FromNormalized(nil, dims[0], dims[1]); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("FromNormalized(%v) expected ErrInvalidDimensions, got %v", dims, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	boxes := []types.PixelBox{
		{X: 0, Y: 0, Width: 1920, Height: 1080, ClassID: 0},
		{X: 12.5, Y: 33.25, Width: 400.75, Height: 11.5, ClassID: 1},
		{X: 1000, Y: 700, Width: 0, Height: 0, ClassID: 4},
		{X: 1, Y: 1079, Width: 3.3333, Height: 0.0001, ClassID: 2},
	}
	sizes := [][2]float64{{1920, 1080}, {641, 479}, {1, 1}}

	for _, size := range sizes {
		norm, err := ToNormalized(boxes, size[0], size[1])
		if err != nil {
			t.Fatalf("ToNormalized failed: %v", err)
		}
		back, err := FromNormalized(norm, size[0], size[1])
		if err != nil {
			t.Fatalf("FromNormalized failed: %v", err)
		}

		for i := range boxes {
			a, b := boxes[i], back[i]
			if !relClose(a.X, b.X) || !relClose(a.Y, b.Y) || !relClose(a.Width, b.Width) ||
				!relClose(a.Height, b.Height) || a.ClassID != b.ClassID {
				t.Errorf("size %v: round trip mismatch %+v -> %+v", size, a, b)
			}
		}
	}
}

func TestFromRelBox(t *testing.T) {
	n := FromRelBox(types.RelBox{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, 0)
	if n.XCenter != 0.5 || n.YCenter != 0.5 || n.Width != 0.5 || n.Height != 0.5 {
		t.Errorf("Unexpected conversion: %+v", n)
	}
}

func TestEncodeJSON(t *testing.T) {
	raw, err := EncodeJSON([]types.NormalizedBox{{ClassID: 0, XCenter: 0.5, YCenter: 0.25, Width: 0.1, Height: 0.2}})
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}

	for _, key := range []string{`"class_id":0`, `"x_center":0.5`, `"y_center":0.25`, `"width":0.1`, `"height":0.2`} {
		if !strings.Contains(raw, key) {
			t.Errorf("Expected %s in %s", key, raw)
		}
	}

	empty, _ := EncodeJSON(nil)
	if empty != "[]" {
		t.Errorf("Expected [] for no boxes, got %s", empty)
	}

	decoded, err := DecodeJSON(raw)
	if err != nil || len(decoded) != 1 || decoded[0].YCenter != 0.25 {
		t.Errorf("DecodeJSON mismatch: %+v %v", decoded, err)
	}

	if _, err := DecodeJSON("{not json"); err == nil {
		t.Error("Expected error for malformed annotations")
	}
}

func TestYOLOFormat(t *testing.T) {
	boxes := []types.NormalizedBox{
		{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.75, Height: 0.75},
		{ClassID: 3, XCenter: 0.125, YCenter: 0.9, Width: 0.05, Height: 0.1},
	}

	text := FormatYOLO(boxes)
	if !strings.HasPrefix(text, "0 0.5 0.5 0.75 0.75\n") {
		t.Errorf("Unexpected first line: %q", text)
	}

	parsed, err := ParseYOLO(strings.NewReader(text + "\n"))
	if err != nil {
		t.Fatalf("ParseYOLO failed: %v", err)
	}
	if len(parsed) != 2 || parsed[1] != boxes[1] {
		t.Errorf("Expected %+v, got %+v", boxes, parsed)
	}
}

func TestParseYOLOErrors(t *testing.T) {
	bad := []string{
		"0 0.5 0.5 0.5\n",
		"x 0.5 0.5 0.5 0.5\n",
		"0 0.5 abc 0.5 0.5\n",
	}
	for _, in := range bad {
		if _, err := ParseYOLO(strings.NewReader(in)); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}
}

func BenchmarkToNormalized(b *testing.B) {
	boxes := make([]types.PixelBox, 50)
	for i := range boxes {
		boxes[i] = types.PixelBox{X: float64(i), Y: float64(i), Width: 100, Height: 80}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ToNormalized(boxes, 1920, 1080)
	}
}
