package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"

	"github.com/menta2k/wound-roi/pkg/cropper"
	"github.com/menta2k/wound-roi/pkg/draft"
	"github.com/menta2k/wound-roi/pkg/processing"
	"github.com/menta2k/wound-roi/pkg/types"
)

// FullImageQuality is used when a non-JPEG upload is re-encoded for submission
const FullImageQuality = 90

var ErrMissingPatient = errors.New("assessment has no patient")

// ImagePart is one image of a submission
type ImagePart struct {
	// Full is the whole image as JPEG
	Full []byte
	// Selected is the polygon crop, nil when the image has no usable polygon
	Selected []byte
	// Annotations is the polygon, nil when it has fewer than 3 points
	Annotations types.Polygon
}

// Payload is a complete assessment ready for submission
type Payload struct {
	PatientID string
	Fields    draft.Measurements
	Images    []ImagePart
}

// BuildPayload renders a draft snapshot into a payload, cropping every image
// that has at least 3 annotation points.
func BuildPayload(snap draft.Snapshot, c *cropper.PolygonCropper) (*Payload, error) {
	if snap.PatientID == "" {
		return nil, ErrMissingPatient
	}
	if c == nil {
		c = cropper.New()
	}

	payload := &Payload{
		PatientID: snap.PatientID,
		Fields:    snap.Fields,
		Images:    make([]ImagePart, 0, len(snap.Images)),
	}

	for i, img := range snap.Images {
		full, err := processing.PrepareJPEG(img.Decoded, img.Data, img.Format, 0, FullImageQuality)
		if err != nil {
			return nil, fmt.Errorf("failed to encode image %d: %w", i, err)
		}
		part := ImagePart{Full: full}

		if polygon := snap.Polygons[i]; polygon.Valid() {
			selected, err := c.CropJPEG(img.Decoded, polygon)
			if err != nil {
				return nil, fmt.Errorf("failed to crop image %d: %w", i, err)
			}
			part.Selected = selected
			part.Annotations = polygon.Clone()
		}
		payload.Images = append(payload.Images, part)
	}
	return payload, nil
}

// Encode writes the payload as a multipart form and returns its content type
func (p *Payload) Encode(buf *bytes.Buffer) (string, error) {
	w := multipart.NewWriter(buf)

	f := p.Fields
	fields := [][2]string{
		{"patient", p.PatientID},
		{"wound_type", f.WoundType},
		{"wound_stage", f.Stage},
		{"exudate_amount", f.ExudateAmount},
		{"length", formatMeasure(f.Length)},
		{"width", formatMeasure(f.Width)},
		{"depth", formatMeasure(f.Depth)},
		{"pain_level", strconv.Itoa(f.PainLevel)},
		{"notes", f.Notes},
		{"body_location", f.BodyLocation},
	}
	if f.OnsetDate != "" {
		fields = append(fields, [2]string{"onset_date", f.OnsetDate})
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", kv[0], err)
		}
	}

	for i, img := range p.Images {
		if err := writeFile(w, fmt.Sprintf("images[%d][full]", i), fmt.Sprintf("wound_%d_full.jpg", i), img.Full); err != nil {
			return "", err
		}
		if img.Selected != nil {
			if err := writeFile(w, fmt.Sprintf("images[%d][selected]", i), fmt.Sprintf("wound_%d_selected.jpg", i), img.Selected); err != nil {
				return "", err
			}
		}
		if img.Annotations != nil {
			points, err := json.Marshal(img.Annotations)
			if err != nil {
				return "", fmt.Errorf("failed to encode annotations of image %d: %w", i, err)
			}
			if err := w.WriteField(fmt.Sprintf("images[%d][annotations]", i), string(points)); err != nil {
				return "", fmt.Errorf("failed to write annotations of image %d: %w", i, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field, name string, data []byte) error {
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", field, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", field, err)
	}
	return nil
}

// formatMeasure leaves unmeasured values blank like an empty form input
func formatMeasure(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
