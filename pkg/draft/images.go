package draft

import (
	"context"
	"image"

	"github.com/menta2k/wound-roi/pkg/processing"
	"github.com/menta2k/wound-roi/pkg/types"
)

// Image is a decoded upload. It is immutable once stored; its index is its
// position in the draft and changes when an earlier image is removed.
type Image struct {
	// Data is the uploaded file as received
	Data []byte
	// Format is the decoder name ("jpeg", "png", "gif", "webp")
	Format  string
	Decoded image.Image
}

// NewImage decodes an upload. Malformed data yields a *types.DecodeError.
func NewImage(data []byte) (*Image, error) {
	img, format, err := processing.Decode(data)
	if err != nil {
		return nil, err
	}
	return &Image{Data: data, Format: format, Decoded: img}, nil
}

// NaturalWidth is the width in intrinsic pixels
func (i *Image) NaturalWidth() int {
	return i.Decoded.Bounds().Dx()
}

// NaturalHeight is the height in intrinsic pixels
func (i *Image) NaturalHeight() int {
	return i.Decoded.Bounds().Dy()
}

// Info returns basic metadata of the image
func (i *Image) Info() types.ImageInfo {
	return processing.Info(i.Decoded, i.Format)
}

// Upload decodes data and appends it. A decode failure leaves the draft unchanged.
func (d *Draft) Upload(ctx context.Context, data []byte) (int, error) {
	img, err := NewImage(data)
	if err != nil {
		d.logger.Warn("upload rejected", "draft", d.ID(), "error", err)
		return -1, err
	}
	return d.Append(ctx, img), nil
}

// Append stores img at the end and returns its index. The first image
// appended to an empty draft starts the AI analysis.
func (d *Draft) Append(ctx context.Context, img *Image) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasEmpty := len(d.images) == 0
	d.images = append(d.images, img)
	index := len(d.images) - 1

	d.logger.Debug("image appended", "draft", d.id, "image", index,
		"width", img.NaturalWidth(), "height", img.NaturalHeight())

	if wasEmpty && d.analysis.state == AnalysisEmpty {
		d.startAnalysisLocked(ctx, img)
	}
	return index
}

// Len returns the number of images
func (d *Draft) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.images)
}

// Image returns the image at index
func (d *Draft) Image(index int) (*Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validLocked(index) {
		return nil, ErrIndexOutOfRange
	}
	return d.images[index], nil
}

// Images returns the images in order
func (d *Draft) Images() []*Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Image(nil), d.images...)
}

// Remove deletes the image at index. Polygons and filters of later images
// move down one index, and the viewer follows its image or closes.
func (d *Draft) Remove(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.validLocked(index) {
		return ErrIndexOutOfRange
	}

	removed := d.images[index]
	d.images = append(d.images[:index:index], d.images[index+1:]...)
	d.polygons = rekey(d.polygons, index)
	d.filters = rekey(d.filters, index)

	if d.viewer.Active == index {
		d.viewer = closedViewer()
	} else if d.viewer.Active > index {
		d.viewer.Active--
	}

	d.sourceRemovedLocked(removed)
	d.logger.Debug("image removed", "draft", d.id, "image", index, "remaining", len(d.images))
	return nil
}

// Clear removes every image and all per-image state
func (d *Draft) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	source := d.analysis.source
	d.images = nil
	d.polygons = make(map[int]types.Polygon)
	d.filters = make(map[int]types.FilterParams)
	d.viewer = closedViewer()
	if source != nil {
		d.sourceRemovedLocked(source)
	}
}

func (d *Draft) validLocked(index int) bool {
	return index >= 0 && index < len(d.images)
}

func (d *Draft) containsLocked(img *Image) bool {
	for _, i := range d.images {
		if i == img {
			return true
		}
	}
	return false
}

// rekey drops the entry at removed and shifts every later key down by one
func rekey[V any](m map[int]V, removed int) map[int]V {
	out := make(map[int]V, len(m))
	for k, v := range m {
		switch {
		case k < removed:
			out[k] = v
		case k > removed:
			out[k-1] = v
		}
	}
	return out
}
