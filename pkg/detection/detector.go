package detection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/wound-roi/pkg/client"
	"github.com/menta2k/wound-roi/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks a vision model for the measurement service's response shape
const DefaultPrompt = `You are a wound care assistant measuring a wound photograph.

Return JSON only:
{
  "wound_type": "string",
  "stage": "string",
  "dimensions": {"length": 0.0, "width": 0.0, "depth": 0.0},
  "tissue_composition": {"granulation": 0, "slough": 0, "necrotic": 0},
  "confidence_score": 0.0,
  "healing_index": 0.0,
  "cure_recommendation": "one or two sentences",
  "healing_estimate_days": 0
}

HARD RULES
- wound_type is one of: Pressure Ulcer, Diabetic Foot Ulcer, Venous Ulcer, Arterial Ulcer, Surgical Wound, Burn, Laceration, Other.
- stage is "Stage I" to "Stage IV", "Unstageable" or "N/A".
- dimensions are centimetres; use 0 when a value cannot be estimated.
- tissue_composition values are percentages that sum to 100.
- confidence_score and healing_index are in [0,100].
- Do not guess patient identity.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Detector measures wounds with a general purpose vision model
type Detector struct {
	client client.VisionClient
	model  string
	prompt string
}

// NewDetector creates a detector running model on a vision client
func NewDetector(client client.VisionClient, model string) *Detector {
	return &Detector{client: client, model: model, prompt: DefaultPrompt}
}

// WithPrompt replaces the analysis prompt
func (d *Detector) WithPrompt(prompt string) *Detector {
	if strings.TrimSpace(prompt) != "" {
		d.prompt = prompt
	}
	return d
}

// AnalyzeWound implements client.WoundAnalyzer
func (d *Detector) AnalyzeWound(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error) {
	reply, err := d.client.SimpleQuery(ctx, d.model, d.prompt, base64.StdEncoding.EncodeToString(jpeg))
	if err != nil {
		return nil, &types.AnalysisServiceError{Err: err}
	}

	result, err := ParseModelResult(reply)
	if err != nil {
		return nil, &types.AnalysisServiceError{Detail: "unusable model response", Err: err}
	}
	return result, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, imageB64)
}

// ParseModelResult decodes and validates a model reply. Unlike the
// measurement service a model may wrap or comment its JSON; those are
// stripped. A reply with no JSON object is an error.
func ParseModelResult(raw string) (*types.AnalysisResult, error) {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}

	validate(&result)
	return &result, nil
}

// validate forces model output into the ranges the service guarantees
func validate(r *types.AnalysisResult) {
	r.WoundType = strings.TrimSpace(r.WoundType)
	r.Stage = strings.TrimSpace(r.Stage)
	r.CureRecommendation = strings.TrimSpace(r.CureRecommendation)

	r.Dimensions.Length = nonNegative(r.Dimensions.Length)
	r.Dimensions.Width = nonNegative(r.Dimensions.Width)
	r.Dimensions.Depth = nonNegative(r.Dimensions.Depth)

	r.ConfidenceScore = clamp(r.ConfidenceScore, 0, 100)
	r.HealingIndex = clamp(r.HealingIndex, 0, 100)
	if r.HealingEstimateDays < 0 {
		r.HealingEstimateDays = 0
	}

	t := &r.TissueComposition
	t.Granulation = clamp(t.Granulation, 0, 100)
	t.Slough = clamp(t.Slough, 0, 100)
	t.Necrotic = clamp(t.Necrotic, 0, 100)
	if sum := t.Granulation + t.Slough + t.Necrotic; sum > 100 {
		t.Granulation = t.Granulation / sum * 100
		t.Slough = t.Slough / sum * 100
		t.Necrotic = t.Necrotic / sum * 100
	}
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

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	// Inline comments need leading whitespace so URLs in strings survive
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
