package draft

import (
	"math"

	"golang.org/x/image/math/f64"

	"github.com/menta2k/wound-roi/pkg/types"
)

// Viewer limits
const (
	MinZoom  = 0.5
	MaxZoom  = 3.0
	ZoomStep = 0.2
)

// ViewerState is the single active viewer. Active is -1 when closed.
// Pointing and Editing are never both true.
type ViewerState struct {
	Active   int     `json:"active"`
	Zoom     float64 `json:"zoom"`
	Rotation int     `json:"rotation"`
	Pointing bool    `json:"pointing"`
	Editing  bool    `json:"editing"`
}

func closedViewer() ViewerState {
	return ViewerState{Active: -1, Zoom: 1}
}

// IsOpen reports whether an image is being viewed
func (v ViewerState) IsOpen() bool {
	return v.Active >= 0
}

// ImageTransform is scale(zoom) ∘ rotate(rotation) about the viewer centre,
// in screen coordinates with y pointing down.
func (v ViewerState) ImageTransform() f64.Aff3 {
	cos, sin := quarterTurn(v.Rotation)
	z := v.Zoom
	return f64.Aff3{
		z * cos, -z * sin, 0,
		z * sin, z * cos, 0,
	}
}

// MarkerTransform is the inverse of ImageTransform's linear part. Markers
// drawn under both keep a constant on-screen size and orientation.
func (v ViewerState) MarkerTransform() f64.Aff3 {
	cos, sin := quarterTurn(v.Rotation)
	z := v.Zoom
	return f64.Aff3{
		cos / z, sin / z, 0,
		-sin / z, cos / z, 0,
	}
}

// ScreenToPercent maps a screen offset from the viewer centre back to percent
// coordinates of an image displayed untransformed at displayW x displayH.
// ok is false when the point falls outside the image.
func (v ViewerState) ScreenToPercent(sx, sy, displayW, displayH float64) (types.Point, bool) {
	if displayW <= 0 || displayH <= 0 {
		return types.Point{}, false
	}
	x, y := Apply(v.MarkerTransform(), sx, sy)
	p := types.Point{
		X: (x/displayW + 0.5) * 100,
		Y: (y/displayH + 0.5) * 100,
	}
	const eps = 1e-9
	if p.X < -eps || p.X > 100+eps || p.Y < -eps || p.Y > 100+eps {
		return types.Point{}, false
	}
	return p.Clamp(), true
}

// Apply transforms the point (x, y)
func Apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// Compose returns the transform that applies b first and then a
func Compose(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func quarterTurn(deg int) (cos, sin float64) {
	switch ((deg % 360) + 360) % 360 {
	case 0:
		return 1, 0
	case 90:
		return 0, 1
	case 180:
		return -1, 0
	case 270:
		return 0, -1
	}
	rad := float64(deg) * math.Pi / 180
	return math.Cos(rad), math.Sin(rad)
}

// Viewer returns the viewer state
func (d *Draft) Viewer() ViewerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewer
}

// OpenViewer makes index the active image with a fresh transform
func (d *Draft) OpenViewer(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validLocked(index) {
		return ErrIndexOutOfRange
	}
	d.viewer = ViewerState{Active: index, Zoom: 1}
	return nil
}

// CloseViewer clears the active image and resets the transform
func (d *Draft) CloseViewer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewer = closedViewer()
}

// ZoomIn increases zoom by one step up to MaxZoom
func (d *Draft) ZoomIn() error {
	return d.updateViewer(func(v *ViewerState) {
		v.Zoom = clampZoom(v.Zoom + ZoomStep)
	})
}

// ZoomOut decreases zoom by one step down to MinZoom
func (d *Draft) ZoomOut() error {
	return d.updateViewer(func(v *ViewerState) {
		v.Zoom = clampZoom(v.Zoom - ZoomStep)
	})
}

// Rotate turns the image a quarter turn clockwise
func (d *Draft) Rotate() error {
	return d.updateViewer(func(v *ViewerState) {
		v.Rotation = (v.Rotation + 90) % 360
	})
}

// TogglePointing flips pointing mode, turning editing off
func (d *Draft) TogglePointing() error {
	return d.updateViewer(func(v *ViewerState) {
		v.Pointing = !v.Pointing
		v.Editing = false
	})
}

// ToggleEditing flips editing mode, turning pointing off
func (d *Draft) ToggleEditing() error {
	return d.updateViewer(func(v *ViewerState) {
		v.Editing = !v.Editing
		v.Pointing = false
	})
}

func (d *Draft) updateViewer(fn func(v *ViewerState)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.viewer.IsOpen() {
		return ErrViewerClosed
	}
	fn(&d.viewer)
	return nil
}

func clampZoom(z float64) float64 {
	// Round away the drift of repeated 0.2 steps
	z = math.Round(z*100) / 100
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}
