package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/menta2k/wound-roi/pkg/healing"
	"github.com/menta2k/wound-roi/pkg/processing"
	"github.com/menta2k/wound-roi/pkg/types"
)

var (
	ErrNoAnalyzer            = errors.New("no analysis backend configured")
	ErrNoImages              = errors.New("draft has no images")
	ErrAnalysisInProgress    = errors.New("analysis already in progress")
	ErrAlreadyAnalyzed       = errors.New("draft already has an analysis result")
	ErrAnalysisNotFailed     = errors.New("analysis has not failed")
	ErrAnalysisSourceRemoved = errors.New("analysed image was removed before the result arrived")
)

// AnalysisState is the per-draft analysis state machine:
// Empty -> Analyzing -> Analyzed | Failed, and Failed -> Analyzing on retry.
type AnalysisState int

const (
	AnalysisEmpty AnalysisState = iota
	AnalysisAnalyzing
	AnalysisAnalyzed
	AnalysisFailed
)

func (s AnalysisState) String() string {
	switch s {
	case AnalysisEmpty:
		return "empty"
	case AnalysisAnalyzing:
		return "analyzing"
	case AnalysisAnalyzed:
		return "analyzed"
	case AnalysisFailed:
		return "failed"
	}
	return fmt.Sprintf("AnalysisState(%d)", int(s))
}

type analysis struct {
	state   AnalysisState
	request uuid.UUID
	source  *Image
	result  *types.AnalysisResult
	err     error
}

// AnalysisStatus is a snapshot of the analysis state
type AnalysisStatus struct {
	State     AnalysisState
	RequestID uuid.UUID
	Result    *types.AnalysisResult
	Err       error
}

// Analyzing reports whether a request is in flight
func (s AnalysisStatus) Analyzing() bool {
	return s.State == AnalysisAnalyzing
}

// Analysis returns the analysis state
func (d *Draft) Analysis() AnalysisStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := AnalysisStatus{
		State:     d.analysis.state,
		RequestID: d.analysis.request,
		Err:       d.analysis.err,
	}
	if d.analysis.result != nil {
		r := *d.analysis.result
		status.Result = &r
	}
	return status
}

// RetryAnalysis re-runs a failed analysis on the same image, or on the
// current first image when that one has since been removed.
func (d *Draft) RetryAnalysis(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.analyzer == nil {
		return ErrNoAnalyzer
	}
	switch d.analysis.state {
	case AnalysisAnalyzing:
		return ErrAnalysisInProgress
	case AnalysisAnalyzed:
		return ErrAlreadyAnalyzed
	case AnalysisEmpty:
		if len(d.images) == 0 {
			return ErrNoImages
		}
		return ErrAnalysisNotFailed
	}

	source := d.analysis.source
	if source == nil || !d.containsLocked(source) {
		if len(d.images) == 0 {
			return ErrNoImages
		}
		source = d.images[0]
	}
	d.startAnalysisLocked(ctx, source)
	return nil
}

// Wait blocks until every in-flight analysis request has completed
func (d *Draft) Wait() {
	d.inflight.Wait()
}

func (d *Draft) startAnalysisLocked(ctx context.Context, img *Image) {
	if d.analyzer == nil {
		return
	}

	request := uuid.New()
	d.analysis = analysis{
		state:   AnalysisAnalyzing,
		request: request,
		source:  img,
	}
	d.logger.Info("analysis started", "draft", d.id, "request", request)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		result, err := d.runAnalysis(ctx, img)
		d.completeAnalysis(request, img, result, err)
	}()
}

func (d *Draft) runAnalysis(ctx context.Context, img *Image) (*types.AnalysisResult, error) {
	// Detached from the caller: removal or abandonment does not cancel the
	// request, only the timeout does.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	payload, err := processing.PrepareJPEG(img.Decoded, img.Data, img.Format, d.sendSize, d.sendQuality)
	if err != nil {
		return nil, &types.AnalysisServiceError{Err: err}
	}

	result, err := d.analyzer.AnalyzeWound(ctx, payload)
	if err != nil {
		var serviceErr *types.AnalysisServiceError
		if errors.As(err, &serviceErr) {
			return nil, err
		}
		return nil, &types.AnalysisServiceError{Err: err}
	}
	if result == nil {
		return nil, &types.AnalysisServiceError{Detail: "empty analysis result"}
	}
	return result, nil
}

// completeAnalysis applies a finished request unless it is stale: the
// request must still be the current one and its image must still be stored.
func (d *Draft) completeAnalysis(request uuid.UUID, source *Image, result *types.AnalysisResult, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.analysis.request != request || d.analysis.state != AnalysisAnalyzing || !d.containsLocked(source) {
		d.logger.Info("discarding stale analysis result", "draft", d.id, "request", request)
		return
	}

	if err != nil {
		d.analysis.state = AnalysisFailed
		d.analysis.err = err
		d.logger.Warn("analysis failed", "draft", d.id, "request", request, "error", err)
		return
	}

	d.analysis.state = AnalysisAnalyzed
	d.analysis.result = result
	d.applyResultLocked(result)
	d.logger.Info("analysis complete", "draft", d.id, "request", request,
		"wound_type", result.WoundType, "stage", result.Stage,
		"confidence", result.ConfidenceScore)
}

// applyResultLocked prefills the AI-owned fields once per draft and appends
// the recommendation and healing progress to the notes.
func (d *Draft) applyResultLocked(result *types.AnalysisResult) {
	if d.aiOwned {
		return
	}

	if result.WoundType != "" {
		d.fields.WoundType = result.WoundType
	}
	if result.Stage != "" {
		d.fields.Stage = result.Stage
	}
	if result.Dimensions.Length > 0 {
		d.fields.Length = result.Dimensions.Length
	}
	if result.Dimensions.Width > 0 {
		d.fields.Width = result.Dimensions.Width
	}
	d.aiOwned = true

	var notes []string
	if strings.TrimSpace(d.fields.Notes) != "" {
		notes = append(notes, d.fields.Notes)
	}
	if result.CureRecommendation != "" {
		notes = append(notes, "[AI SUGGESTION]: "+result.CureRecommendation)
	}
	if rate := healing.Compute(d.previousArea, d.fields.Length, d.fields.Width); rate != nil {
		notes = append(notes, healing.ProgressNote(*rate))
	}
	d.fields.Notes = strings.Join(notes, "\n\n")
}

// sourceRemovedLocked invalidates a pending request whose image is gone.
// The draft never drops back to Empty here, so later uploads cannot start a
// second request; only RetryAnalysis or Reset move it on.
func (d *Draft) sourceRemovedLocked(removed *Image) {
	if d.analysis.source != removed {
		return
	}
	if d.analysis.state == AnalysisAnalyzing {
		d.analysis.state = AnalysisFailed
		d.analysis.err = ErrAnalysisSourceRemoved
		d.analysis.request = uuid.Nil
	}
}
