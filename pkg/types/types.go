package types

import "time"

// Point is an annotation point in percent of the image's natural bounds, [0,100] on both axes
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp returns the point with both coordinates forced into [0,100]
func (p Point) Clamp() Point {
	return Point{X: clampPercent(p.X), Y: clampPercent(p.Y)}
}

// Pixels converts the point to natural pixel coordinates of a width x height image
func (p Point) Pixels(width, height int) (float64, float64) {
	return p.X / 100 * float64(width), p.Y / 100 * float64(height)
}

// Polygon is an ordered, never auto-closed, sequence of annotation points.
type Polygon []Point

// Valid reports whether the polygon has enough points to render or crop
func (p Polygon) Valid() bool {
	return len(p) >= 3
}

// Clone returns an independent copy of the polygon
func (p Polygon) Clone() Polygon {
	if p == nil {
		return nil
	}
	out := make(Polygon, len(p))
	copy(out, p)
	return out
}

// Dimensions are wound measurements in centimetres. Zero means not measured.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth,omitempty"`
}

// Area returns length*width
func (d Dimensions) Area() float64 {
	return d.Length * d.Width
}

// Complete reports whether both length and width are present
func (d Dimensions) Complete() bool {
	return d.Length > 0 && d.Width > 0
}

// TissueComposition holds tissue percentages of the wound bed
type TissueComposition struct {
	Granulation float64 `json:"granulation"`
	Slough      float64 `json:"slough"`
	Necrotic    float64 `json:"necrotic"`
}

// AnalysisResult is the measurement returned by the AI analysis service
type AnalysisResult struct {
	WoundType           string            `json:"wound_type,omitempty"`
	Stage               string            `json:"stage,omitempty"`
	Dimensions          Dimensions        `json:"dimensions"`
	TissueComposition   TissueComposition `json:"tissue_composition"`
	ConfidenceScore     float64           `json:"confidence_score"`
	HealingIndex        float64           `json:"healing_index"`
	CureRecommendation  string            `json:"cure_recommendation,omitempty"`
	HealingEstimateDays int               `json:"healing_estimate_days,omitempty"`
	AlgorithmSteps      []string          `json:"algorithm_analysis,omitempty"`
}

// PriorAssessment is the subset of a stored assessment used for healing progress
type PriorAssessment struct {
	ID        int       `json:"id"`
	Length    Decimal   `json:"length"`
	Width     Decimal   `json:"width"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Format      string  `json:"format"`
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
