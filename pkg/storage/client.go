// Package storage talks to the dataset backend that lists images and stores labels.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/box-annotator/pkg/labels"
	"github.com/menta2k/box-annotator/pkg/types"
)

// Client is an HTTP client for the annotation endpoints of the dataset API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// StatusError reports a non-2xx response from the backend
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// NewClient creates a client for an API root such as http://localhost:8000/api/v1
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:8000/api/v1"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListImages fetches the images of a dataset with their annotation status
func (c *Client) ListImages(ctx context.Context, dataset string) (types.Collection, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/annotation/images", c.baseURL, url.PathEscape(dataset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.Collection{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return types.Collection{}, err
	}

	var coll types.Collection
	if err := json.Unmarshal(body, &coll); err != nil {
		return types.Collection{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if coll.Dataset == "" {
		coll.Dataset = dataset
	}
	if coll.Total == 0 {
		coll.Total = len(coll.Images)
	}
	return coll, nil
}

// SaveAnnotation stores the labels of one image. The backend decides which
// train/val/test partitions receive the label file.
func (c *Client) SaveAnnotation(ctx context.Context, dataset, filename, split string, boxes []types.NormalizedBox) error {
	annotations, err := labels.EncodeJSON(boxes)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"filename", filename},
		{"split", split},
		{"annotations", annotations},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/datasets/%s/annotation/save", c.baseURL, url.PathEscape(dataset))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}
	return body, nil
}

// errorDetail extracts {"detail": "..."} from an error body, falling back to the raw text
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(body))
}
