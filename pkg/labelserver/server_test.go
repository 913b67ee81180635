package labelserver

import (
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/box-annotator/pkg/imageio"
	"github.com/menta2k/box-annotator/pkg/labels"
	"github.com/menta2k/box-annotator/pkg/storage"
	"github.com/menta2k/box-annotator/pkg/types"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

// setupDataset creates soups/images/train/{a,b}.png with a label for a.png
func setupDataset(t *testing.T) (string, *httptest.Server, *storage.Client) {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "soups", "images", "train", "a.png"), 64, 48)
	writePNG(t, filepath.Join(root, "soups", "images", "train", "b.png"), 32, 32)
	os.WriteFile(filepath.Join(root, "soups", "images", "train", "readme.txt"), []byte("x"), 0644)

	labelsDir := filepath.Join(root, "soups", "labels", "train")
	os.MkdirAll(labelsDir, 0755)
	os.WriteFile(filepath.Join(labelsDir, "a.txt"), []byte("0 0.5 0.5 0.2 0.2\n"), 0644)
	os.WriteFile(filepath.Join(labelsDir, "b.txt"), nil, 0644)

	srv, err := New(root, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c, err := storage.NewClient(ts.URL+"/api/v1", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return root, ts, c
}

func TestListImages(t *testing.T) {
	_, _, c := setupDataset(t)

	coll, err := c.ListImages(context.Background(), "soups")
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if coll.Total != 2 || coll.Annotated != 1 || coll.Split != "train" {
		t.Errorf("Unexpected collection: %+v", coll)
	}
	want := types.ImageDescriptor{
		Filename:      "a.png",
		Path:          "/uploads/datasets/soups/images/train/a.png",
		HasAnnotation: true,
	}
	if coll.Images[0] != want {
		t.Errorf("Expected %+v, got %+v", want, coll.Images[0])
	}
	if coll.Images[1].HasAnnotation {
		t.Error("Empty label file must not count as annotated")
	}
}

func TestListImagesNotFound(t *testing.T) {
	_, ts, c := setupDataset(t)

	_, err := c.ListImages(context.Background(), "missing")
	var se *storage.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || !strings.Contains(se.Detail, "missing") {
		t.Errorf("Expected 404 with detail, got %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/v1/datasets/soups/annotation/images?split=val")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for missing split, got %d", resp.StatusCode)
	}
}

func TestSaveWritesAllSplits(t *testing.T) {
	root, _, c := setupDataset(t)

	boxes := []types.NormalizedBox{
		{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.25, Height: 0.5},
		{ClassID: 2, XCenter: 0.1, YCenter: 0.2, Width: 0.1, Height: 0.1},
	}
	if err := c.SaveAnnotation(context.Background(), "soups", "b.png", "train", boxes); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	var first string
	for _, split := range LabelSplits {
		data, err := os.ReadFile(filepath.Join(root, "soups", "labels", split, "b.txt"))
		if err != nil {
			t.Fatalf("Label file for %s missing: %v", split, err)
		}
		if first == "" {
			first = string(data)
		} else if string(data) != first {
			t.Errorf("Label file for %s differs", split)
		}
	}

	parsed, err := labels.ParseYOLO(strings.NewReader(first))
	if err != nil {
		t.Fatalf("ParseYOLO failed: %v", err)
	}
	if len(parsed) != 2 || parsed[1] != boxes[1] {
		t.Errorf("Unexpected label content: %q", first)
	}

	coll, _ := c.ListImages(context.Background(), "soups")
	if coll.Annotated != 2 {
		t.Errorf("Expected both images annotated after save, got %d", coll.Annotated)
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	_, _, c := setupDataset(t)

	err := c.SaveAnnotation(context.Background(), "soups", "../escape.png", "train", nil)
	var se *storage.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for path traversal, got %v", err)
	}

	err = c.SaveAnnotation(context.Background(), "nope", "a.png", "train", nil)
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown dataset, got %v", err)
	}
}

func TestServeImage(t *testing.T) {
	_, ts, c := setupDataset(t)
	coll, err := c.ListImages(context.Background(), "soups")
	if err != nil {
		t.Fatal(err)
	}

	loader, err := imageio.NewLoader(c.BaseURL())
	if err != nil {
		t.Fatal(err)
	}
	img, err := loader.Load(context.Background(), coll.Images[0].Path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("Unexpected image size %v", b)
	}

	resp, err := http.Get(ts.URL + "/uploads/datasets/soups/images/train/readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected non-image to be hidden, got %d", resp.StatusCode)
	}
}

func TestNewMissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Error("Expected error for missing root")
	}
}
