package draft

import "github.com/menta2k/wound-roi/pkg/types"

// AddPoint appends p to the polygon of imageIndex. It is only allowed while
// pointing mode is on and imageIndex is the active image. Coordinates are
// clamped to [0,100].
func (d *Draft) AddPoint(imageIndex int, p types.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addPointLocked(imageIndex, p)
}

// AddScreenPoint adds a point clicked at (sx, sy) relative to the viewer
// centre on an image displayed at displayW x displayH before zoom and rotation.
func (d *Draft) AddScreenPoint(sx, sy, displayW, displayH float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.viewer.IsOpen() {
		return ErrViewerClosed
	}
	p, ok := d.viewer.ScreenToPercent(sx, sy, displayW, displayH)
	if !ok {
		return ErrOutsideImage
	}
	return d.addPointLocked(d.viewer.Active, p)
}

func (d *Draft) addPointLocked(imageIndex int, p types.Point) error {
	if !d.validLocked(imageIndex) {
		return ErrIndexOutOfRange
	}
	if !d.viewer.Pointing || d.viewer.Active != imageIndex {
		return ErrNotPointing
	}
	d.polygons[imageIndex] = append(d.polygons[imageIndex], p.Clamp())
	return nil
}

// ClearPoints removes the polygon of imageIndex
func (d *Draft) ClearPoints(imageIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validLocked(imageIndex) {
		return ErrIndexOutOfRange
	}
	delete(d.polygons, imageIndex)
	return nil
}

// Polygon returns a copy of the points marked on imageIndex in insertion order.
// Callers render or crop it only when it has at least 3 points.
func (d *Draft) Polygon(imageIndex int) types.Polygon {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polygons[imageIndex].Clone()
}

// Annotated returns image index together with its polygon, read under one lock
// so a concurrent Remove cannot pair an image with a neighbour's outline.
func (d *Draft) Annotated(index int) (*Image, types.Polygon, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validLocked(index) {
		return nil, nil, ErrIndexOutOfRange
	}
	return d.images[index], d.polygons[index].Clone(), nil
}

// SetPolygon replaces the polygon of imageIndex, e.g. when restoring saved annotations.
// Unlike AddPoint it does not require pointing mode.
func (d *Draft) SetPolygon(imageIndex int, polygon types.Polygon) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validLocked(imageIndex) {
		return ErrIndexOutOfRange
	}
	if len(polygon) == 0 {
		delete(d.polygons, imageIndex)
		return nil
	}
	points := make(types.Polygon, len(polygon))
	for i, p := range polygon {
		points[i] = p.Clamp()
	}
	d.polygons[imageIndex] = points
	return nil
}
