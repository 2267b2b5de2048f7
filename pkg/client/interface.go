package client

import (
	"context"

	"github.com/menta2k/wound-roi/pkg/types"
)

// VisionClient is a general purpose multimodal model backend
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

// WoundAnalyzer measures a wound from a single JPEG image
type WoundAnalyzer interface {
	AnalyzeWound(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error)
}
