package cropper

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"

	"github.com/menta2k/wound-roi/pkg/types"
)

// Default crop settings
const (
	DefaultPadding = 20
	DefaultQuality = 90
)

// PolygonCropper isolates the region inside an annotation polygon
type PolygonCropper struct {
	config CropConfig
}

// CropConfig holds configuration for polygon cropping
type CropConfig struct {
	// Padding is added on every side of the polygon bounding box, in natural pixels
	Padding int
	// Quality is the JPEG quality used by CropJPEG (1-100)
	Quality int
}

// New creates a new PolygonCropper with default configuration
func New() *PolygonCropper {
	return &PolygonCropper{
		config: CropConfig{
			Padding: DefaultPadding,
			Quality: DefaultQuality,
		},
	}
}

// NewWithConfig creates a new PolygonCropper with custom configuration
func NewWithConfig(config CropConfig) *PolygonCropper {
	if config.Padding < 0 {
		config.Padding = 0
	}
	if config.Quality < 1 || config.Quality > 100 {
		config.Quality = DefaultQuality
	}
	return &PolygonCropper{config: config}
}

// Config returns the active configuration
func (c *PolygonCropper) Config() CropConfig {
	return c.config
}

// Bounds is the polygon bounding box in natural pixel coordinates
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Width returns the box width rounded to whole pixels. A box narrower than
// half a pixel still covers one.
func (b Bounds) Width() int {
	return pixelSpan(b.MaxX - b.MinX)
}

// Height returns the box height rounded to whole pixels, at least one when non-zero
func (b Bounds) Height() int {
	return pixelSpan(b.MaxY - b.MinY)
}

// Empty reports whether the box has zero width or zero height
func (b Bounds) Empty() bool {
	return b.MaxX-b.MinX <= 0 || b.MaxY-b.MinY <= 0
}

func pixelSpan(span float64) int {
	if span <= 0 {
		return 0
	}
	return max(1, int(math.Round(span)))
}

// PixelBounds converts a percent polygon to natural pixels of an image with the given size
// and returns its bounding box. It returns ErrDegenerateGeometry for polygons that cannot be cropped.
func PixelBounds(polygon types.Polygon, width, height int) (Bounds, error) {
	if !polygon.Valid() {
		return Bounds{}, types.ErrDegenerateGeometry
	}

	b := Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range polygon {
		x, y := p.Clamp().Pixels(width, height)
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}

	if b.Empty() {
		return Bounds{}, types.ErrDegenerateGeometry
	}
	return b, nil
}

// Crop returns the part of img inside polygon on a transparent raster of
// (bboxWidth+2*padding) x (bboxHeight+2*padding) natural pixels.
// It returns false for fewer than 3 points or a degenerate bounding box.
func (c *PolygonCropper) Crop(img image.Image, polygon types.Polygon) (*image.NRGBA, bool) {
	if img == nil {
		return nil, false
	}
	src := img.Bounds()
	box, err := PixelBounds(polygon, src.Dx(), src.Dy())
	if err != nil {
		return nil, false
	}

	pad := c.config.Padding
	outW := box.Width() + 2*pad
	outH := box.Height() + 2*pad

	// Whole-pixel origin so the source lands 1:1 on the output grid
	originX := math.Floor(box.MinX)
	originY := math.Floor(box.MinY)

	mask := image.NewAlpha(image.Rect(0, 0, outW, outH))
	z := vector.NewRasterizer(outW, outH)
	z.DrawOp = draw.Src
	for i, p := range polygon {
		x, y := p.Clamp().Pixels(src.Dx(), src.Dy())
		ox := float32(clamp(x-originX+float64(pad), 0, float64(outW)))
		oy := float32(clamp(y-originY+float64(pad), 0, float64(outH)))
		if i == 0 {
			z.MoveTo(ox, oy)
		} else {
			z.LineTo(ox, oy)
		}
	}
	z.ClosePath()
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	out := image.NewNRGBA(image.Rect(0, 0, outW, outH))
	sp := image.Point{
		X: src.Min.X + int(originX) - pad,
		Y: src.Min.Y + int(originY) - pad,
	}
	draw.DrawMask(out, out.Bounds(), img, sp, mask, image.Point{}, draw.Over)

	return out, true
}

// CropJPEG crops and encodes the result as JPEG. Degenerate polygons yield nil, nil.
func (c *PolygonCropper) CropJPEG(img image.Image, polygon types.Polygon) ([]byte, error) {
	cropped, ok := c.Crop(img, polygon)
	if !ok {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(c.config.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
