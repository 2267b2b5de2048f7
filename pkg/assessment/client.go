// Package assessment submits finished assessments and looks up prior ones
// on the clinical records API.
package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/menta2k/wound-roi/pkg/healing"
	"github.com/menta2k/wound-roi/pkg/types"
)

const assessmentsPath = "/api/assessments/"

// Client is a clinical records API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the API at baseURL. An empty token sends
// unauthenticated requests.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.Default(),
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the structured logger
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// PriorAssessments lists the stored assessments of a patient, newest first
func (c *Client) PriorAssessments(ctx context.Context, patientID string) ([]types.PriorAssessment, error) {
	endpoint := c.baseURL + assessmentsPath + "?" + url.Values{"patient_id": {patientID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessments: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assessments lookup returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	assessments, err := decodeList(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("prior assessments loaded", "patient", patientID, "count", len(assessments))
	return assessments, nil
}

// PreviousArea returns the wound area of the patient's latest measured assessment
func (c *Client) PreviousArea(ctx context.Context, patientID string) (*float64, error) {
	assessments, err := c.PriorAssessments(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return healing.PreviousArea(assessments), nil
}

// Submit posts the payload. Only 200 and 201 are success; any other outcome
// is a *types.SubmissionError carrying the server response.
func (c *Client) Submit(ctx context.Context, payload *Payload) (*types.PriorAssessment, error) {
	if payload == nil || payload.PatientID == "" {
		return nil, &types.SubmissionError{Err: ErrMissingPatient}
	}

	var buf bytes.Buffer
	contentType, err := payload.Encode(&buf)
	if err != nil {
		return nil, &types.SubmissionError{Err: err}
	}
	size := buf.Len()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+assessmentsPath, &buf)
	if err != nil {
		return nil, &types.SubmissionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.SubmissionError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Warn("assessment submission rejected", "patient", payload.PatientID,
			"status", resp.StatusCode, "body", string(body))
		return nil, &types.SubmissionError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}

	c.logger.Info("assessment submitted", "patient", payload.PatientID,
		"images", len(payload.Images), "size", humanize.Bytes(uint64(size)))

	var created types.PriorAssessment
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &created); err != nil {
			// The record exists; an unexpected body is not a failure
			c.logger.Warn("unexpected submission response", "error", err)
		}
	}
	return &created, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeList accepts a bare JSON array or a paginated {"results": [...]} page
func decodeList(body []byte) ([]types.PriorAssessment, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []types.PriorAssessment
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("failed to parse assessments: %w", err)
		}
		return list, nil
	}

	var page struct {
		Results []types.PriorAssessment `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse assessments: %w", err)
	}
	return page.Results, nil
}
