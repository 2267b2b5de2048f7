package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/wound-roi/pkg/types"
)

// Processor handles image ingress, encoding and filter application
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ReadSource returns the raw bytes of a file path or an http(s) URL
func (p *Processor) ReadSource(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.readURL(source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

func (p *Processor) readURL(imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "wound-roi/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// Decode decodes an uploaded file. Failures are reported as *types.DecodeError.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &types.DecodeError{Err: fmt.Errorf("empty upload")}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, format, nil
	}

	// Lossless and animated WebP variants are only handled by libwebp
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, "webp", nil
	}

	return nil, "", &types.DecodeError{Err: err}
}

// Info returns basic information about an image
func Info(img image.Image, format string) types.ImageInfo {
	b := img.Bounds()
	info := types.ImageInfo{Width: b.Dx(), Height: b.Dy(), Format: format}
	if b.Dy() > 0 {
		info.AspectRatio = float64(b.Dx()) / float64(b.Dy())
	}
	return info
}

// PrepareJPEG returns JPEG bytes for the analysis service. Original JPEG
// uploads that fit within maxDim are passed through untouched.
func PrepareJPEG(img image.Image, original []byte, format string, maxDim, quality int) ([]byte, error) {
	b := img.Bounds()
	fits := maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim)
	if fits && strings.EqualFold(format, "jpeg") && len(original) > 0 {
		return original, nil
	}

	if !fits {
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ApplyFilters renders the enhancement parameters onto a copy of img using
// CSS filter semantics, applied in order brightness, contrast, grayscale, invert.
// The source image is never modified.
func ApplyFilters(img image.Image, params types.FilterParams) *image.NRGBA {
	if params.IsIdentity() {
		return imaging.Clone(img)
	}

	brightness := float64(params.Brightness) / 100
	contrast := float64(params.Contrast) / 100
	gray := float64(params.Grayscale) / 100
	invert := float64(params.Invert) / 100

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r := float64(c.R) / 255
		g := float64(c.G) / 255
		b := float64(c.B) / 255

		r, g, b = unit(r*brightness), unit(g*brightness), unit(b*brightness)
		r = unit((r-0.5)*contrast + 0.5)
		g = unit((g-0.5)*contrast + 0.5)
		b = unit((b-0.5)*contrast + 0.5)

		if gray > 0 {
			lum := 0.2126*r + 0.7152*g + 0.0722*b
			r = r*(1-gray) + lum*gray
			g = g*(1-gray) + lum*gray
			b = b*(1-gray) + lum*gray
		}
		if invert > 0 {
			r = r*(1-invert) + (1-r)*invert
			g = g*(1-invert) + (1-g)*invert
			b = b*(1-invert) + (1-b)*invert
		}

		return color.NRGBA{R: to8(r), G: to8(g), B: to8(b), A: c.A}
	})
}

// SaveImage saves an image to a file with the specified format and quality
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

func unit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8(v float64) uint8 {
	return uint8(math.Round(unit(v) * 255))
}
