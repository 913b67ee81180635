package client

import (
	"context"

	"github.com/menta2k/box-annotator/pkg/types"
)

// VisionClient is a vision model backend able to locate objects in an image
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectObjects(ctx context.Context, model, prompt, imgB64 string) (*types.DetectionResult, error)
}
