// Package woundroi composes wound assessments from clinical photographs.
//
// A Workspace wires the pieces together: uploads are decoded into a
// draft.Draft, the first image of a draft is measured by the configured AI
// backend, clinicians mark the wound outline as a polygon in percent
// coordinates, and on submission every outlined image is cropped to the
// polygon's padded bounding box and posted with the measurements.
//
// Basic usage:
//
//	ws, err := woundroi.New(woundroi.DefaultConfig(), nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	d, err := ws.NewDraft(ctx, "42")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := ws.AddSources(ctx, d, []string{"heel.jpg"}); err != nil {
//		log.Fatal(err)
//	}
//	d.Wait()
//
//	_ = d.SetPolygon(0, types.Polygon{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 50}})
//	if _, err := ws.Submit(ctx, d); err != nil {
//		log.Fatal(err)
//	}
//
// Components:
//
//  1. Draft (pkg/draft): images, annotations, viewer, filters and the analysis state machine
//  2. Cropper (pkg/cropper): polygon region extraction at natural resolution
//  3. Analysis backends (pkg/mlservice, pkg/detection with pkg/ollama or pkg/llamacpp)
//  4. Records (pkg/assessment): submission and prior assessment lookup
//  5. Healing (pkg/healing): area reduction against the previous assessment
package woundroi

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/wound-roi/internal/config"
	"github.com/menta2k/wound-roi/pkg/assessment"
	"github.com/menta2k/wound-roi/pkg/client"
	"github.com/menta2k/wound-roi/pkg/cropper"
	"github.com/menta2k/wound-roi/pkg/detection"
	"github.com/menta2k/wound-roi/pkg/draft"
	"github.com/menta2k/wound-roi/pkg/llamacpp"
	"github.com/menta2k/wound-roi/pkg/mlservice"
	"github.com/menta2k/wound-roi/pkg/ollama"
	"github.com/menta2k/wound-roi/pkg/processing"
	"github.com/menta2k/wound-roi/pkg/types"
)

// Version of the wound-roi library
const Version = "1.0.0"

// Config is the application configuration
type Config = config.Config

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return config.Default()
}

// Workspace creates drafts and carries them through analysis and submission
type Workspace struct {
	config    *Config
	analyzer  client.WoundAnalyzer
	cropper   *cropper.PolygonCropper
	processor *processing.Processor
	records   *assessment.Client
	logger    *slog.Logger
}

// New creates a Workspace from cfg. A nil logger uses slog.Default().
func New(cfg *Config, logger *slog.Logger) (*Workspace, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	analyzer, err := NewAnalyzer(cfg.Analysis, logger)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		config:   cfg,
		analyzer: analyzer,
		cropper: cropper.NewWithConfig(cropper.CropConfig{
			Padding: cfg.Cropper.Padding,
			Quality: cfg.Cropper.Quality,
		}),
		processor: processing.NewProcessor(),
		logger:    logger,
	}
	if cfg.API.BaseURL != "" {
		ws.records = assessment.NewClient(cfg.API.BaseURL, cfg.API.Token).WithLogger(logger)
	}
	return ws, nil
}

// NewAnalyzer builds the configured analysis backend. The none backend
// returns a nil analyzer, which leaves drafts to manual entry.
func NewAnalyzer(cfg config.AnalysisConfig, logger *slog.Logger) (client.WoundAnalyzer, error) {
	switch cfg.Backend {
	case config.BackendMLService:
		return mlservice.NewClient(cfg.URL).WithLogger(logger), nil
	case config.BackendOllama:
		vc, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return detection.NewDetector(vc, cfg.Model), nil
	case config.BackendLlamaCpp:
		vc, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return detection.NewDetector(vc, cfg.Model), nil
	case config.BackendNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown analysis backend: %s", cfg.Backend)
}

// Config returns the workspace configuration
func (ws *Workspace) Config() *Config {
	return ws.config
}

// Cropper returns the polygon cropper used for submissions
func (ws *Workspace) Cropper() *cropper.PolygonCropper {
	return ws.cropper
}

// NewDraft starts a draft for patientID. When the records API is configured
// the previous wound area is looked up; a failed lookup only disables the
// healing progress calculation.
func (ws *Workspace) NewDraft(ctx context.Context, patientID string) (*draft.Draft, error) {
	opts := []draft.Option{
		draft.WithLogger(ws.logger),
		draft.WithPatient(patientID),
		draft.WithAnalysisTimeout(ws.config.Analysis.Timeout()),
		draft.WithSendLimits(ws.config.Analysis.SendMaxDim, ws.config.Analysis.SendQuality),
	}

	d := draft.New(ws.analyzer, opts...)

	if patientID != "" && ws.records != nil {
		area, err := ws.records.PreviousArea(ctx, patientID)
		if err != nil {
			ws.logger.Warn("previous assessment lookup failed", "patient", patientID, "error", err)
		} else {
			d.SetPreviousArea(area)
		}
	}
	return d, nil
}

// AddSources reads files or URLs and uploads them into d in order. A source
// that cannot be read or decoded is skipped and reported in the returned error;
// the others are still added.
func (ws *Workspace) AddSources(ctx context.Context, d *draft.Draft, sources []string) ([]int, error) {
	var indices []int
	var firstErr error
	for _, src := range sources {
		data, err := ws.processor.ReadSource(src)
		if err == nil {
			var index int
			index, err = d.Upload(ctx, data)
			if err == nil {
				indices = append(indices, index)
				continue
			}
		}
		ws.logger.Warn("source skipped", "source", src, "error", err)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", src, err)
		}
	}
	return indices, firstErr
}

// Crop extracts the annotated region of image index, false when it has no usable polygon
func (ws *Workspace) Crop(d *draft.Draft, index int) (*image.NRGBA, bool, error) {
	img, polygon, err := d.Annotated(index)
	if err != nil {
		return nil, false, err
	}
	out, ok := ws.cropper.Crop(img.Decoded, polygon)
	return out, ok, nil
}

// Submit builds the draft payload, including crops, and posts it
func (ws *Workspace) Submit(ctx context.Context, d *draft.Draft) (*types.PriorAssessment, error) {
	if ws.records == nil {
		return nil, &types.SubmissionError{Err: fmt.Errorf("no records API configured")}
	}
	if d.Analysis().Analyzing() {
		ws.logger.Info("submitting while analysis is still running", "draft", d.ID())
	}

	payload, err := assessment.BuildPayload(d.Snapshot(), ws.cropper)
	if err != nil {
		return nil, &types.SubmissionError{Err: err}
	}
	return ws.records.Submit(ctx, payload)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
