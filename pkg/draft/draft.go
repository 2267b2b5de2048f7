// Package draft holds the in-progress assessment being composed before
// submission: its images, per-image polygons and filter parameters, the
// single active viewer and the AI analysis state machine.
//
// Every per-image map is keyed by image index and is only mutated through
// Draft methods, which keep the keys in step with the image slice when an
// image is removed. All methods are safe for concurrent use.
package draft

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/wound-roi/pkg/client"
	"github.com/menta2k/wound-roi/pkg/healing"
	"github.com/menta2k/wound-roi/pkg/types"
)

// Defaults for the analysis request
const (
	DefaultAnalysisTimeout = 30 * time.Second
	DefaultSendSize        = 1536
	DefaultSendQuality     = 85
	DefaultPainLevel       = 4
)

var (
	ErrIndexOutOfRange = errors.New("image index out of range")
	ErrViewerClosed    = errors.New("viewer is not open")
	ErrNotPointing     = errors.New("pointing mode is not active for this image")
	ErrOutsideImage    = errors.New("point lies outside the image")
	ErrFieldReadOnly   = errors.New("field is owned by the AI analysis")
	ErrUnknownField    = errors.New("unknown measurement field")
)

// Field names a scalar clinical field of the draft. Values match the submission form keys.
type Field string

const (
	FieldWoundType    Field = "wound_type"
	FieldStage        Field = "wound_stage"
	FieldLength       Field = "length"
	FieldWidth        Field = "width"
	FieldDepth        Field = "depth"
	FieldExudate      Field = "exudate_amount"
	FieldPainLevel    Field = "pain_level"
	FieldNotes        Field = "notes"
	FieldOnsetDate    Field = "onset_date"
	FieldBodyLocation Field = "body_location"
)

// aiFields become read-only once an analysis result has been applied
var aiFields = map[Field]bool{
	FieldWoundType: true,
	FieldStage:     true,
	FieldLength:    true,
	FieldWidth:     true,
}

// Measurements are the scalar clinical fields of the draft
type Measurements struct {
	WoundType     string  `json:"wound_type"`
	Stage         string  `json:"wound_stage"`
	Length        float64 `json:"length"`
	Width         float64 `json:"width"`
	Depth         float64 `json:"depth"`
	ExudateAmount string  `json:"exudate_amount"`
	PainLevel     int     `json:"pain_level"`
	Notes         string  `json:"notes"`
	OnsetDate     string  `json:"onset_date,omitempty"`
	BodyLocation  string  `json:"body_location"`
}

// Draft is the aggregate owning all state of one assessment draft
type Draft struct {
	mu sync.Mutex

	id        uuid.UUID
	patientID string

	analyzer    client.WoundAnalyzer
	timeout     time.Duration
	sendSize    int
	sendQuality int
	logger      *slog.Logger

	images   []*Image
	polygons map[int]types.Polygon
	filters  map[int]types.FilterParams
	viewer   ViewerState

	analysis     analysis
	fields       Measurements
	aiOwned      bool
	previousArea *float64

	inflight sync.WaitGroup
}

// Option configures a Draft
type Option func(*Draft)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Draft) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithAnalysisTimeout bounds each analysis request
func WithAnalysisTimeout(timeout time.Duration) Option {
	return func(d *Draft) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithSendLimits caps the longest side and JPEG quality of the image sent for analysis
func WithSendLimits(maxDim, quality int) Option {
	return func(d *Draft) {
		d.sendSize = maxDim
		if quality > 0 && quality <= 100 {
			d.sendQuality = quality
		}
	}
}

// WithPatient associates the draft with a patient
func WithPatient(patientID string) Option {
	return func(d *Draft) {
		d.patientID = patientID
	}
}

// WithPreviousArea sets the wound area of the most recent prior assessment
func WithPreviousArea(area *float64) Option {
	return func(d *Draft) {
		d.previousArea = area
	}
}

// New creates an empty draft. A nil analyzer disables AI analysis.
func New(analyzer client.WoundAnalyzer, opts ...Option) *Draft {
	d := &Draft{
		id:          uuid.New(),
		analyzer:    analyzer,
		timeout:     DefaultAnalysisTimeout,
		sendSize:    DefaultSendSize,
		sendQuality: DefaultSendQuality,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.resetLocked()
	return d
}

// ID returns the identity of the current draft lifecycle
func (d *Draft) ID() uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// PatientID returns the patient the draft belongs to
func (d *Draft) PatientID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.patientID
}

// Reset abandons the draft: all images, annotations, fields and analysis
// state are discarded and a new draft identity is issued. An analysis still
// in flight for the abandoned draft is ignored when it completes.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.id = uuid.New()
	d.resetLocked()
	d.logger.Info("draft reset", "draft", d.id)
}

func (d *Draft) resetLocked() {
	d.images = nil
	d.polygons = make(map[int]types.Polygon)
	d.filters = make(map[int]types.FilterParams)
	d.viewer = closedViewer()
	d.analysis = analysis{}
	d.fields = Measurements{PainLevel: DefaultPainLevel}
	d.aiOwned = false
}

// SetPreviousArea records the area of the most recent prior assessment, nil when unknown
func (d *Draft) SetPreviousArea(area *float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.previousArea = area
}

// PreviousArea returns the prior wound area, nil when unknown
func (d *Draft) PreviousArea() *float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyFloat(d.previousArea)
}

// ReductionRate returns the percentage area reduction against the previous assessment
func (d *Draft) ReductionRate() *float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return healing.Compute(d.previousArea, d.fields.Length, d.fields.Width)
}

// Fields returns the scalar clinical fields
func (d *Draft) Fields() Measurements {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fields
}

// ReadOnly reports whether a field is locked by the AI analysis
func (d *Draft) ReadOnly(field Field) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aiOwned && aiFields[field]
}

// SetField sets a scalar clinical field from its form value
func (d *Draft) SetField(field Field, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.aiOwned && aiFields[field] {
		return fmt.Errorf("%s: %w", field, ErrFieldReadOnly)
	}

	value = strings.TrimSpace(value)
	switch field {
	case FieldWoundType:
		d.fields.WoundType = value
	case FieldStage:
		d.fields.Stage = value
	case FieldLength, FieldWidth, FieldDepth:
		v, err := parseMeasure(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		switch field {
		case FieldLength:
			d.fields.Length = v
		case FieldWidth:
			d.fields.Width = v
		default:
			d.fields.Depth = v
		}
	case FieldExudate:
		d.fields.ExudateAmount = value
	case FieldPainLevel:
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 || v > 10 {
			return fmt.Errorf("pain_level must be an integer between 0 and 10, got %q", value)
		}
		d.fields.PainLevel = v
	case FieldNotes:
		d.fields.Notes = value
	case FieldOnsetDate:
		if value != "" {
			if _, err := time.Parse(time.DateOnly, value); err != nil {
				return fmt.Errorf("onset_date must be YYYY-MM-DD: %w", err)
			}
		}
		d.fields.OnsetDate = value
	case FieldBodyLocation:
		d.fields.BodyLocation = value
	default:
		return fmt.Errorf("%q: %w", field, ErrUnknownField)
	}
	return nil
}

// Snapshot is a consistent copy of the draft for submission
type Snapshot struct {
	DraftID       uuid.UUID
	PatientID     string
	Fields        Measurements
	Images        []*Image
	Polygons      map[int]types.Polygon
	Analysis      *types.AnalysisResult
	ReductionRate *float64
}

// Snapshot returns a copy of the draft state
func (d *Draft) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	polygons := make(map[int]types.Polygon, len(d.polygons))
	for i, p := range d.polygons {
		polygons[i] = p.Clone()
	}

	var result *types.AnalysisResult
	if d.analysis.result != nil {
		r := *d.analysis.result
		result = &r
	}

	return Snapshot{
		DraftID:       d.id,
		PatientID:     d.patientID,
		Fields:        d.fields,
		Images:        append([]*Image(nil), d.images...),
		Polygons:      polygons,
		Analysis:      result,
		ReductionRate: healing.Compute(d.previousArea, d.fields.Length, d.fields.Width),
	}
}

func parseMeasure(value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid measurement %q", value)
	}
	if v < 0 {
		return 0, fmt.Errorf("measurement cannot be negative: %v", v)
	}
	return v, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
