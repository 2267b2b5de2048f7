// Package overlay renders the viewer as SVG: the filtered image under the
// viewer transform, the annotation polygon and its point markers.
package overlay

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/menta2k/wound-roi/pkg/draft"
	"github.com/menta2k/wound-roi/pkg/types"
)

// DefaultMarkerRadius is the on-screen marker radius in pixels
const DefaultMarkerRadius = 6

// Options controls the rendered canvas
type Options struct {
	// Width and Height of the image box before zoom and rotation
	Width  int
	Height int
	// Href is the image link, typically a data URI from DataURI
	Href         string
	MarkerRadius int
	// Title is written as the SVG <title> when set
	Title string
}

// Render writes the viewer for view to w. Markers cancel the viewer
// transform so they keep a fixed on-screen size and stay upright. The
// polygon is only drawn once it has at least 3 points.
func Render(w io.Writer, view draft.ViewerState, polygon types.Polygon, filters types.FilterParams, opts Options) error {
	if !view.IsOpen() {
		return draft.ErrViewerClosed
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", opts.Width, opts.Height)
	}
	if opts.MarkerRadius <= 0 {
		opts.MarkerRadius = DefaultMarkerRadius
	}

	width, height := float64(opts.Width), float64(opts.Height)
	canvas := svg.New(w)
	canvas.Start(opts.Width, opts.Height)
	if opts.Title != "" {
		canvas.Title(opts.Title)
	}

	// scale(zoom) rotate(rotation) about the centre of the box
	canvas.Gtransform(fmt.Sprintf("translate(%s %s) scale(%s) rotate(%d) translate(%s %s)",
		num(width/2), num(height/2), num(view.Zoom), view.Rotation, num(-width/2), num(-height/2)))

	canvas.Image(0, 0, opts.Width, opts.Height, opts.Href,
		"filter:"+filters.CSS(), `preserveAspectRatio="none"`)

	if polygon.Valid() {
		canvas.Gtransform(fmt.Sprintf("scale(%s %s)", num(width/100), num(height/100)))
		canvas.Path(percentPath(polygon),
			"fill:rgba(255,82,82,0.25);stroke:#ff5252;stroke-width:2",
			`vector-effect="non-scaling-stroke"`)
		canvas.Gend()
	}

	inverse := fmt.Sprintf("rotate(%d) scale(%s)", -view.Rotation, num(1/view.Zoom))
	for i, p := range polygon {
		x, y := p.Pixels(opts.Width, opts.Height)
		canvas.Gtransform(fmt.Sprintf("translate(%s %s) %s", num(x), num(y), inverse))
		canvas.Circle(0, 0, opts.MarkerRadius, "fill:#ff5252;stroke:#ffffff;stroke-width:2")
		canvas.Text(0, opts.MarkerRadius*2+8, strconv.Itoa(i+1),
			"fill:#ffffff;font-size:10px;font-family:sans-serif;text-anchor:middle")
		canvas.Gend()
	}

	canvas.Gend()
	canvas.End()
	return nil
}

// DataURI embeds an uploaded image for use as Options.Href
func DataURI(img *draft.Image) string {
	return "data:" + mimeType(img.Format) + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func mimeType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// percentPath is the closed outline of polygon in percent coordinates
func percentPath(polygon types.Polygon) string {
	var b strings.Builder
	for i, p := range polygon {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		b.WriteString(num(p.X))
		b.WriteString(" ")
		b.WriteString(num(p.Y))
	}
	b.WriteString(" Z")
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
