package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/wound-roi/pkg/types"
)

func TestViewerClosedOperations(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)

	assert.ErrorIs(t, d.ZoomIn(), ErrViewerClosed)
	assert.ErrorIs(t, d.ZoomOut(), ErrViewerClosed)
	assert.ErrorIs(t, d.Rotate(), ErrViewerClosed)
	assert.ErrorIs(t, d.TogglePointing(), ErrViewerClosed)
	assert.ErrorIs(t, d.ToggleEditing(), ErrViewerClosed)
	assert.ErrorIs(t, d.OpenViewer(3), ErrIndexOutOfRange)
}

func TestZoomClamps(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)
	require.NoError(t, d.OpenViewer(0))

	for i := 0; i < 20; i++ {
		require.NoError(t, d.ZoomIn())
	}
	assert.Equal(t, MaxZoom, d.Viewer().Zoom)

	for i := 0; i < 20; i++ {
		require.NoError(t, d.ZoomOut())
	}
	assert.Equal(t, MinZoom, d.Viewer().Zoom)

	require.NoError(t, d.ZoomIn())
	assert.Equal(t, 0.7, d.Viewer().Zoom)
}

func TestRotateCycles(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)
	require.NoError(t, d.OpenViewer(0))

	for _, want := range []int{90, 180, 270, 0} {
		require.NoError(t, d.Rotate())
		assert.Equal(t, want, d.Viewer().Rotation)
	}
}

func TestOpenViewerResetsTransform(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)
	upload(t, d, 10, 10)

	require.NoError(t, d.OpenViewer(0))
	require.NoError(t, d.ZoomIn())
	require.NoError(t, d.Rotate())
	require.NoError(t, d.TogglePointing())

	require.NoError(t, d.OpenViewer(1))
	assert.Equal(t, ViewerState{Active: 1, Zoom: 1}, d.Viewer())

	d.CloseViewer()
	assert.Equal(t, ViewerState{Active: -1, Zoom: 1}, d.Viewer())
}

func TestPointingAndEditingExclusive(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)
	require.NoError(t, d.OpenViewer(0))

	require.NoError(t, d.TogglePointing())
	v := d.Viewer()
	assert.True(t, v.Pointing)
	assert.False(t, v.Editing)

	require.NoError(t, d.ToggleEditing())
	v = d.Viewer()
	assert.False(t, v.Pointing)
	assert.True(t, v.Editing)

	require.NoError(t, d.TogglePointing())
	v = d.Viewer()
	assert.True(t, v.Pointing)
	assert.False(t, v.Editing)

	require.NoError(t, d.TogglePointing())
	v = d.Viewer()
	assert.False(t, v.Pointing)
	assert.False(t, v.Editing)
}

func TestAddPointRequiresPointing(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)
	upload(t, d, 10, 10)

	assert.ErrorIs(t, d.AddPoint(0, types.Point{X: 10, Y: 10}), ErrNotPointing)

	require.NoError(t, d.OpenViewer(0))
	assert.ErrorIs(t, d.AddPoint(0, types.Point{X: 10, Y: 10}), ErrNotPointing)

	require.NoError(t, d.TogglePointing())
	assert.ErrorIs(t, d.AddPoint(1, types.Point{X: 10, Y: 10}), ErrNotPointing)
	assert.ErrorIs(t, d.AddPoint(5, types.Point{X: 10, Y: 10}), ErrIndexOutOfRange)

	require.NoError(t, d.AddPoint(0, types.Point{X: 10, Y: 20}))
	require.NoError(t, d.AddPoint(0, types.Point{X: 120, Y: -5}))
	assert.Equal(t, types.Polygon{{X: 10, Y: 20}, {X: 100, Y: 0}}, d.Polygon(0))

	require.NoError(t, d.ClearPoints(0))
	assert.Nil(t, d.Polygon(0))
}

func TestAddScreenPoint(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)
	assert.ErrorIs(t, d.AddScreenPoint(0, 0, 200, 100), ErrViewerClosed)

	require.NoError(t, d.OpenViewer(0))
	require.NoError(t, d.TogglePointing())

	// Centre of the viewer is the centre of the image
	require.NoError(t, d.AddScreenPoint(0, 0, 200, 100))
	// Zoomed to 2x and rotated a quarter turn, a point right of centre
	// lies above the centre of the unrotated image
	for i := 0; i < 5; i++ {
		require.NoError(t, d.ZoomIn())
	}
	require.NoError(t, d.Rotate())
	require.NoError(t, d.AddScreenPoint(40, 0, 200, 100))

	poly := d.Polygon(0)
	require.Len(t, poly, 2)
	assert.InDelta(t, 50, poly[0].X, 1e-9)
	assert.InDelta(t, 50, poly[0].Y, 1e-9)
	assert.InDelta(t, 50, poly[1].X, 1e-9)
	assert.InDelta(t, 30, poly[1].Y, 1e-9)

	assert.ErrorIs(t, d.AddScreenPoint(1000, 0, 200, 100), ErrOutsideImage)
}

func TestTransformsAreInverse(t *testing.T) {
	identity := f64.Aff3{1, 0, 0, 0, 1, 0}
	for _, rotation := range []int{0, 90, 180, 270} {
		for _, zoom := range []float64{0.5, 1, 1.4, 3} {
			v := ViewerState{Active: 0, Zoom: zoom, Rotation: rotation}
			got := Compose(v.ImageTransform(), v.MarkerTransform())
			for i := range got {
				assert.InDelta(t, identity[i], got[i], 1e-9, "rotation %d zoom %v", rotation, zoom)
			}
		}
	}
}

func TestImageTransformRotatesClockwise(t *testing.T) {
	v := ViewerState{Zoom: 1, Rotation: 90}
	x, y := Apply(v.ImageTransform(), 1, 0)
	// y points down on screen, so +x turns to +y
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 1, y, 1e-9)
}

func TestFilterClampingAndEffect(t *testing.T) {
	d := newDraft(t, nil)
	upload(t, d, 10, 10)

	assert.Equal(t, types.DefaultFilterParams(), d.Effect(0))
	assert.ErrorIs(t, d.SetFilter(4, types.Brightness, 50), ErrIndexOutOfRange)

	require.NoError(t, d.SetFilter(0, types.Brightness, 500))
	require.NoError(t, d.SetFilter(0, types.Contrast, -20))
	require.NoError(t, d.SetFilter(0, types.Grayscale, 30))
	effect := d.Effect(0)
	assert.Equal(t, 200, effect.Brightness)
	assert.Equal(t, 50, effect.Contrast)
	assert.Equal(t, 30, effect.Grayscale)
	assert.Equal(t, 0, effect.Invert)

	require.NoError(t, d.ApplyPreset(0, types.PresetInvert))
	assert.Equal(t, 100, d.Effect(0).Invert)

	require.NoError(t, d.ResetFilters(0))
	assert.Equal(t, types.DefaultFilterParams(), d.Effect(0))
}
