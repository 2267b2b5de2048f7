package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/wound-roi/pkg/cropper"
	"github.com/menta2k/wound-roi/pkg/draft"
	"github.com/menta2k/wound-roi/pkg/types"
)

func encodeImage(t *testing.T, width, height int, asJPEG bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{200, uint8(x), uint8(y), 255})
		}
	}
	var buf bytes.Buffer
	if asJPEG {
		require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	} else {
		require.NoError(t, png.Encode(&buf, img))
	}
	return buf.Bytes()
}

func sampleDraft(t *testing.T) (*draft.Draft, []byte) {
	t.Helper()
	d := draft.New(nil, draft.WithPatient("12"))
	original := encodeImage(t, 200, 100, true)

	_, err := d.Upload(context.Background(), original)
	require.NoError(t, err)
	_, err = d.Upload(context.Background(), encodeImage(t, 50, 50, false))
	require.NoError(t, err)

	square := types.Polygon{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 50}, {X: 10, Y: 50}}
	require.NoError(t, d.SetPolygon(0, square))
	require.NoError(t, d.SetPolygon(1, types.Polygon{{X: 10, Y: 10}, {X: 20, Y: 20}}))

	require.NoError(t, d.SetField(draft.FieldWoundType, "Pressure Ulcer"))
	require.NoError(t, d.SetField(draft.FieldStage, "Stage II"))
	require.NoError(t, d.SetField(draft.FieldLength, "4.5"))
	require.NoError(t, d.SetField(draft.FieldWidth, "2"))
	require.NoError(t, d.SetField(draft.FieldNotes, "Dressing changed."))
	return d, original
}

func TestBuildPayload(t *testing.T) {
	d, original := sampleDraft(t)

	payload, err := BuildPayload(d.Snapshot(), cropper.New())
	require.NoError(t, err)
	assert.Equal(t, "12", payload.PatientID)
	require.Len(t, payload.Images, 2)

	// The JPEG upload is passed through, the PNG re-encoded
	assert.Equal(t, original, payload.Images[0].Full)
	_, format, err := image.Decode(bytes.NewReader(payload.Images[1].Full))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	crop, err := jpeg.Decode(bytes.NewReader(payload.Images[0].Selected))
	require.NoError(t, err)
	assert.Equal(t, 120, crop.Bounds().Dx())
	assert.Equal(t, 80, crop.Bounds().Dy())
	assert.Len(t, payload.Images[0].Annotations, 4)

	assert.Nil(t, payload.Images[1].Selected)
	assert.Nil(t, payload.Images[1].Annotations)
}

func TestBuildPayloadMissingPatient(t *testing.T) {
	_, err := BuildPayload(draft.New(nil).Snapshot(), nil)
	assert.ErrorIs(t, err, ErrMissingPatient)
}

func TestSubmit(t *testing.T) {
	d, original := sampleDraft(t)
	payload, err := BuildPayload(d.Snapshot(), nil)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/assessments/", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(10<<20))

		assert.Equal(t, "12", r.FormValue("patient"))
		assert.Equal(t, "Pressure Ulcer", r.FormValue("wound_type"))
		assert.Equal(t, "Stage II", r.FormValue("wound_stage"))
		assert.Equal(t, "4.5", r.FormValue("length"))
		assert.Equal(t, "2", r.FormValue("width"))
		assert.Equal(t, "", r.FormValue("depth"))
		assert.Equal(t, "4", r.FormValue("pain_level"))
		assert.Equal(t, "Dressing changed.", r.FormValue("notes"))
		_, hasOnset := r.MultipartForm.Value["onset_date"]
		assert.False(t, hasOnset)

		full := r.MultipartForm.File["images[0][full]"]
		require.Len(t, full, 1)
		assert.Equal(t, "wound_0_full.jpg", full[0].Filename)
		f, err := full[0].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		f.Close()
		assert.Equal(t, original, data)

		selected := r.MultipartForm.File["images[0][selected]"]
		require.Len(t, selected, 1)
		assert.Equal(t, "wound_0_selected.jpg", selected[0].Filename)

		var points []types.Point
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("images[0][annotations]")), &points))
		assert.Equal(t, types.Point{X: 50, Y: 10}, points[1])

		assert.Len(t, r.MultipartForm.File["images[1][full]"], 1)
		assert.Empty(t, r.MultipartForm.File["images[1][selected]"])
		assert.Empty(t, r.FormValue("images[1][annotations]"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 31, "length": "4.50", "width": "2.00", "created_at": "2026-10-14T09:30:00Z"}`))
	}))
	defer server.Close()

	created, err := NewClient(server.URL, "secret").Submit(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 31, created.ID)
	assert.Equal(t, 4.5, created.Length.Value)
}

func TestSubmitRejected(t *testing.T) {
	d, _ := sampleDraft(t)
	payload, err := BuildPayload(d.Snapshot(), nil)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"wound_type": ["This field is required."]}`))
	}))
	defer server.Close()

	_, err = NewClient(server.URL+"/", "").Submit(context.Background(), payload)
	var submitErr *types.SubmissionError
	require.True(t, errors.As(err, &submitErr))
	assert.Equal(t, http.StatusBadRequest, submitErr.StatusCode)
	assert.Contains(t, submitErr.Detail, "This field is required.")
}

func TestSubmitMissingPatient(t *testing.T) {
	_, err := NewClient("http://localhost", "").Submit(context.Background(), &Payload{})
	var submitErr *types.SubmissionError
	require.True(t, errors.As(err, &submitErr))
	assert.ErrorIs(t, err, ErrMissingPatient)
}

func TestPriorAssessments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assessments/", r.URL.Path)
		assert.Equal(t, "12", r.URL.Query().Get("patient_id"))
		_, _ = w.Write([]byte(`[
			{"id": 9, "length": "5.00", "width": "4.00", "created_at": "2026-10-01T08:00:00Z"},
			{"id": 4, "length": "10.00", "width": "10.00", "created_at": "2026-09-01T08:00:00Z"}
		]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	list, err := c.PriorAssessments(context.Background(), "12")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 9, list[0].ID)

	area, err := c.PreviousArea(context.Background(), "12")
	require.NoError(t, err)
	require.NotNil(t, area)
	assert.InDelta(t, 20.0, *area, 1e-9)
}

func TestPriorAssessmentsPaginated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count": 1, "results": [{"id": 2, "length": null, "width": "3"}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	list, err := c.PriorAssessments(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, list, 1)

	area, err := c.PreviousArea(context.Background(), "7")
	require.NoError(t, err)
	assert.Nil(t, area)
}

func TestPriorAssessmentsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").PriorAssessments(context.Background(), "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
