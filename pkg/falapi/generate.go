package falapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GenerateRequest is the text-to-image payload.
type GenerateRequest struct {
	Prompt              string `json:"prompt"`
	ImageSize           string `json:"image_size,omitempty"`
	NumInferenceSteps   int    `json:"num_inference_steps,omitempty"`
	Seed                *int   `json:"seed,omitempty"`
	NumImages           int    `json:"num_images,omitempty"`
	EnableSafetyChecker bool   `json:"enable_safety_checker"`
	OutputFormat        string `json:"output_format,omitempty"` // "jpeg" or "png"
}

// SubmitResponse is returned immediately after queueing.
type SubmitResponse struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
}

type StatusResponse struct {
	Status        string       `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED, FAILED
	QueuePosition *int         `json:"queue_position,omitempty"`
	Error         *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Message string `json:"message"`
}

type GenerateResponse struct {
	Images          []ImageInfo `json:"images"`
	Seed            uint64      `json:"seed"`
	HasNsfwConcepts []bool      `json:"has_nsfw_concepts"`
	Prompt          string      `json:"prompt"`
}

type ImageInfo struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Queued identifies a submitted request and where to poll for it.
type Queued struct {
	RequestID   string
	StatusURL   string
	ResponseURL string
}

var ErrGenerationFailed = errors.New("falapi: generation failed")

// Submit queues req and returns where to poll.
func (c *Client) Submit(ctx context.Context, req GenerateRequest) (*Queued, error) {
	c.logger.Debug("Submitting generation request", zap.String("prompt", req.Prompt))

	var resp SubmitResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("generation submission failed: %w", err)
	}
	if resp.RequestID == "" {
		return nil, fmt.Errorf("request_id not found in submission response")
	}

	base := strings.TrimSuffix(c.endpoint, "/")
	q := &Queued{
		RequestID:   resp.RequestID,
		StatusURL:   resp.StatusURL,
		ResponseURL: resp.ResponseURL,
	}
	if q.StatusURL == "" {
		q.StatusURL = fmt.Sprintf("%s/requests/%s/status", base, resp.RequestID)
	}
	if q.ResponseURL == "" {
		q.ResponseURL = fmt.Sprintf("%s/requests/%s", base, resp.RequestID)
	}
	return q, nil
}

func (c *Client) Status(ctx context.Context, q *Queued) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, q.StatusURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("status check for %s: %w", q.RequestID, err)
	}
	return &resp, nil
}

func (c *Client) Result(ctx context.Context, q *Queued) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.doJSON(ctx, http.MethodGet, q.ResponseURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("result fetch for %s: %w", q.RequestID, err)
	}
	return &resp, nil
}

// PollForResult polls until the request completes, fails or ctx ends.
func (c *Client) PollForResult(ctx context.Context, q *Queued, pollInterval time.Duration) (*GenerateResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("polling stopped for request %s: %w", q.RequestID, ctx.Err())
		case <-ticker.C:
			status, err := c.Status(ctx, q)
			if err != nil {
				return nil, err
			}
			c.logger.Debug("Polling status for request", zap.String("request_id", q.RequestID), zap.String("status", status.Status))

			switch status.Status {
			case "COMPLETED":
				return c.Result(ctx, q)
			case "FAILED":
				if status.Error != nil {
					return nil, fmt.Errorf("%w: %s (request_id: %s)", ErrGenerationFailed, status.Error.Message, q.RequestID)
				}
				return nil, fmt.Errorf("%w (request_id: %s)", ErrGenerationFailed, q.RequestID)
			case "IN_PROGRESS", "IN_QUEUE":
				continue
			default:
				return nil, fmt.Errorf("unknown status '%s' for request %s", status.Status, q.RequestID)
			}
		}
	}
}

// Generate submits req and waits for the result.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, pollInterval time.Duration) (*GenerateResponse, error) {
	q, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Generation queued", zap.String("request_id", q.RequestID))
	return c.PollForResult(ctx, q, pollInterval)
}
