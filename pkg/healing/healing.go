// Package healing derives wound healing progress from prior assessments.
package healing

import (
	"fmt"
	"math"

	"github.com/menta2k/wound-roi/pkg/types"
)

// Compute returns the percentage reduction of length*width against
// previousArea, or nil when the previous area or either dimension is missing.
// A negative rate means the wound grew.
func Compute(previousArea *float64, length, width float64) *float64 {
	if previousArea == nil || *previousArea <= 0 || length <= 0 || width <= 0 {
		return nil
	}
	current := length * width
	rate := (*previousArea - current) / *previousArea * 100
	return &rate
}

// PreviousArea returns length*width of the most recent assessment that has
// both dimensions recorded, or nil when none does. Assessments are compared
// by CreatedAt; entries without a timestamp keep list order, which the
// assessments API returns newest first.
func PreviousArea(assessments []types.PriorAssessment) *float64 {
	var best *types.PriorAssessment
	for i := range assessments {
		a := &assessments[i]
		if !a.Length.Present() || !a.Width.Present() {
			continue
		}
		if best == nil || a.CreatedAt.After(best.CreatedAt) {
			best = a
		}
	}
	if best == nil {
		return nil
	}
	area := best.Length.Value * best.Width.Value
	return &area
}

// Round1 rounds a rate to one decimal place for display
func Round1(rate float64) float64 {
	return math.Round(rate*10) / 10
}

// ProgressNote is the clinical notes line describing the reduction
func ProgressNote(rate float64) string {
	return fmt.Sprintf("[AI HEALING PROGRESS]: Wound area has reduced by %.1f%% since last assessment.", rate)
}
