package types

import "fmt"

// FilterProperty names one of the viewer enhancement parameters
type FilterProperty string

const (
	Brightness FilterProperty = "brightness"
	Contrast   FilterProperty = "contrast"
	Grayscale  FilterProperty = "grayscale"
	Invert     FilterProperty = "invert"
)

// FilterRange is the allowed interval and default for a property
type FilterRange struct {
	Min     int
	Max     int
	Default int
}

var filterRanges = map[FilterProperty]FilterRange{
	Brightness: {Min: 50, Max: 200, Default: 100},
	Contrast:   {Min: 50, Max: 250, Default: 100},
	Grayscale:  {Min: 0, Max: 100, Default: 0},
	Invert:     {Min: 0, Max: 100, Default: 0},
}

// RangeOf returns the range of a property
func RangeOf(p FilterProperty) (FilterRange, bool) {
	r, ok := filterRanges[p]
	return r, ok
}

// Clamp forces v into the range
func (r FilterRange) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// FilterParams are non-destructive per-image enhancement parameters, all in percent
type FilterParams struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Grayscale  int `json:"grayscale"`
	Invert     int `json:"invert"`
}

// DefaultFilterParams returns the identity parameters
func DefaultFilterParams() FilterParams {
	return FilterParams{
		Brightness: filterRanges[Brightness].Default,
		Contrast:   filterRanges[Contrast].Default,
		Grayscale:  filterRanges[Grayscale].Default,
		Invert:     filterRanges[Invert].Default,
	}
}

// With returns a copy with property p set to the clamped value v
func (f FilterParams) With(p FilterProperty, v int) (FilterParams, error) {
	r, ok := filterRanges[p]
	if !ok {
		return f, fmt.Errorf("unknown filter property %q", p)
	}
	v = r.Clamp(v)
	switch p {
	case Brightness:
		f.Brightness = v
	case Contrast:
		f.Contrast = v
	case Grayscale:
		f.Grayscale = v
	case Invert:
		f.Invert = v
	}
	return f, nil
}

// IsIdentity reports whether applying the parameters leaves an image unchanged
func (f FilterParams) IsIdentity() bool {
	return f == DefaultFilterParams()
}

// CSS renders the parameters as a CSS filter value
func (f FilterParams) CSS() string {
	return fmt.Sprintf("brightness(%d%%) contrast(%d%%) grayscale(%d%%) invert(%d%%)",
		f.Brightness, f.Contrast, f.Grayscale, f.Invert)
}

// FilterPreset is a named quick-filter
type FilterPreset string

const (
	PresetBoost         FilterPreset = "boost"
	PresetBlackAndWhite FilterPreset = "bw"
	PresetInvert        FilterPreset = "invert"
)

// Apply returns f with the preset's properties overridden
func (p FilterPreset) Apply(f FilterParams) (FilterParams, error) {
	switch p {
	case PresetBoost:
		f.Contrast = 180
		f.Brightness = 110
	case PresetBlackAndWhite:
		f.Grayscale = 100
	case PresetInvert:
		f.Invert = 100
	default:
		return f, fmt.Errorf("unknown filter preset %q", p)
	}
	return f, nil
}
