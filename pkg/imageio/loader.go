// Package imageio fetches dataset images and encodes rendered surfaces.
package imageio

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const userAgent = "box-annotator/1.0"

// Loader resolves descriptor paths and decodes the image bytes behind them
type Loader struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewLoader creates a loader. Relative descriptor paths such as
// /uploads/datasets/x/images/train/a.jpg are resolved against baseURL's origin.
func NewLoader(baseURL string) (*Loader, error) {
	l := &Loader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		l.baseURL = &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	}
	return l, nil
}

// SetHTTPClient replaces the client used for remote images
func (l *Loader) SetHTTPClient(c *http.Client) {
	l.httpClient = c
}

// Resolve turns a descriptor path into an absolute URL or a local file path
func (l *Loader) Resolve(path string) string {
	if isRemote(path) || l.baseURL == nil {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return l.baseURL.ResolveReference(ref).String()
}

// Load fetches and decodes the image behind a descriptor path
func (l *Loader) Load(ctx context.Context, path string) (image.Image, error) {
	src := l.Resolve(path)
	if isRemote(src) {
		return l.LoadFromURL(ctx, src)
	}
	return LoadFile(src)
}

// LoadFromURL downloads and decodes an image
func (l *Loader) LoadFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") &&
		!strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return Decode(data)
}

// LoadFile loads an image from disk with WebP support
func LoadFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return Decode(data)
}

// Decode decodes image bytes, honoring EXIF orientation, with a WebP fallback
func Decode(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Encode writes an image in the given format (png, jpg or webp)
func Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return png.Encode(w, img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Save writes an image to a file, choosing the encoder by format
func Save(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		return Encode(f, img, format, quality, lossless)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// PrepareForModel downsizes an image to maxDim on its long side and returns it base64 encoded
func PrepareForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
