package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  Decimal
	}{
		{`5`, NewDecimal(5)},
		{`"5.00"`, NewDecimal(5)},
		{`" 2.5 "`, NewDecimal(2.5)},
		{`null`, Decimal{}},
		{`""`, Decimal{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Decimal
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.want, d)
		})
	}

	var d Decimal
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &d))
}

func TestDecimalInStruct(t *testing.T) {
	var a PriorAssessment
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "length": "4.50", "width": null}`), &a))
	assert.Equal(t, 7, a.ID)
	assert.True(t, a.Length.Present())
	assert.Equal(t, 4.5, a.Length.Value)
	assert.False(t, a.Width.Present())

	out, err := json.Marshal(a.Length)
	require.NoError(t, err)
	assert.Equal(t, "4.5", string(out))

	out, err = json.Marshal(a.Width)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestPointClampAndPixels(t *testing.T) {
	p := Point{X: -5, Y: 150}.Clamp()
	assert.Equal(t, Point{X: 0, Y: 100}, p)

	x, y := Point{X: 25, Y: 50}.Pixels(200, 100)
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 50.0, y)
}

func TestPolygonValid(t *testing.T) {
	assert.False(t, Polygon{}.Valid())
	assert.False(t, Polygon{{X: 1}, {X: 2}}.Valid())
	assert.True(t, Polygon{{X: 1}, {X: 2}, {X: 3, Y: 3}}.Valid())
}

func TestDimensions(t *testing.T) {
	d := Dimensions{Length: 4, Width: 2.5}
	assert.Equal(t, 10.0, d.Area())
	assert.True(t, d.Complete())
	assert.False(t, Dimensions{Length: 4}.Complete())
}

func TestAnalysisResultJSON(t *testing.T) {
	body := `{
		"wound_type": "Diabetic Foot Ulcer",
		"stage": "Stage III",
		"dimensions": {"length": 3.2, "width": 2.1, "depth": 0.4},
		"tissue_composition": {"granulation": 60, "slough": 30, "necrotic": 10},
		"confidence_score": 91.5,
		"healing_index": 42,
		"cure_recommendation": "Offload pressure.",
		"healing_estimate_days": 35
	}`
	var r AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	assert.Equal(t, "Diabetic Foot Ulcer", r.WoundType)
	assert.Equal(t, 3.2, r.Dimensions.Length)
	assert.Equal(t, 0.4, r.Dimensions.Depth)
	assert.Equal(t, 60.0, r.TissueComposition.Granulation)
	assert.Equal(t, 91.5, r.ConfidenceScore)
	assert.Equal(t, 35, r.HealingEstimateDays)
}

func TestFilterParams(t *testing.T) {
	f := DefaultFilterParams()
	assert.True(t, f.IsIdentity())
	assert.Equal(t, "brightness(100%) contrast(100%) grayscale(0%) invert(0%)", f.CSS())

	f, err := f.With(Grayscale, 250)
	require.NoError(t, err)
	assert.Equal(t, 100, f.Grayscale)
	assert.False(t, f.IsIdentity())

	_, err = f.With("sepia", 10)
	assert.Error(t, err)

	r, ok := RangeOf(Contrast)
	require.True(t, ok)
	assert.Equal(t, FilterRange{Min: 50, Max: 250, Default: 100}, r)
}

func TestFilterPresets(t *testing.T) {
	base := DefaultFilterParams()

	boost, err := PresetBoost.Apply(base)
	require.NoError(t, err)
	assert.Equal(t, FilterParams{Brightness: 110, Contrast: 180}, boost)

	bw, err := PresetBlackAndWhite.Apply(boost)
	require.NoError(t, err)
	assert.Equal(t, FilterParams{Brightness: 110, Contrast: 180, Grayscale: 100}, bw)

	inv, err := PresetInvert.Apply(base)
	require.NoError(t, err)
	assert.Equal(t, 100, inv.Invert)

	_, err = FilterPreset("vintage").Apply(base)
	assert.Error(t, err)
}

func TestErrors(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	serviceErr := &AnalysisServiceError{Err: cause}
	assert.ErrorIs(t, serviceErr, cause)
	assert.True(t, serviceErr.Retryable())
	assert.Contains(t, serviceErr.Error(), "unavailable")
	assert.Contains(t, (&AnalysisServiceError{StatusCode: 502, Detail: "bad gateway"}).Error(), "502")

	submitErr := &SubmissionError{StatusCode: 400, Detail: `{"length": ["required"]}`}
	assert.Contains(t, submitErr.Error(), "400")

	decodeErr := &DecodeError{Err: cause}
	assert.ErrorIs(t, decodeErr, cause)
}
