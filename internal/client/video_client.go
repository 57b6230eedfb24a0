package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/rs/zerolog"
)

// VideoClient submits video jobs to the video API and polls them
type VideoClient struct {
	api apiClient
}

// videoJobResponse covers both id spellings the API uses
type videoJobResponse struct {
	TaskID   string `json:"task_id"`
	ID       string `json:"id"`
	Status   string `json:"status"`
	URL      string `json:"url"`
	VideoURL string `json:"video_url"`
	Progress int    `json:"progress"`
	Error    string `json:"error"`
}

func (r *videoJobResponse) jobID() string {
	if r.TaskID != "" {
		return r.TaskID
	}
	return r.ID
}

func (r *videoJobResponse) url() string {
	if r.URL != "" {
		return r.URL
	}
	return r.VideoURL
}

// NewVideoClient creates a new video API client
func NewVideoClient(cfg *config.VideoConfig, log zerolog.Logger) *VideoClient {
	return &VideoClient{
		api: newAPIClient("video", cfg.BaseURL, cfg.APIKey, time.Duration(cfg.Timeout)*time.Second, log),
	}
}

// GenerateVideo submits a multipart video job
func (c *VideoClient) GenerateVideo(ctx context.Context, params *model.VideoParams) (*VideoJob, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := [][2]string{
		{"model", params.Model},
		{"prompt", params.Prompt},
		{"seconds", params.Seconds},
	}
	if params.ImageURL != "" {
		fields = append(fields, [2]string{"input_reference", params.ImageURL})
	}
	for i, ref := range params.ReferenceImages {
		fields = append(fields, [2]string{fmt.Sprintf("input_reference_%d", i), ref})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api.baseURL+"/v1/videos", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp videoJobResponse
	if err := c.api.doRequest(req, &resp); err != nil {
		return nil, err
	}

	if resp.jobID() == "" {
		return nil, apperr.Provider("video provider returned no job id")
	}

	return &VideoJob{JobID: resp.jobID(), Status: resp.Status}, nil
}

// GetVideoStatus retrieves the status of a video job
func (c *VideoClient) GetVideoStatus(ctx context.Context, jobID string) (*VideoStatus, error) {
	var resp videoJobResponse
	if err := c.api.get(ctx, "/v1/videos/"+url.PathEscape(jobID), &resp); err != nil {
		return nil, err
	}

	return &VideoStatus{
		JobID:    jobID,
		Status:   resp.Status,
		URL:      resp.url(),
		Progress: resp.Progress,
		Error:    resp.Error,
	}, nil
}

// WaitForVideo polls until the job completes, fails, or maxWait elapses
func (c *VideoClient) WaitForVideo(ctx context.Context, jobID string, maxWait, interval time.Duration) (*VideoStatus, error) {
	return pollVideo(ctx, c, c.api.log, jobID, maxWait, interval)
}

// IsConfigured returns true if the client has valid configuration
func (c *VideoClient) IsConfigured() bool {
	return c.api.apiKey != ""
}

type videoStatusGetter interface {
	GetVideoStatus(ctx context.Context, jobID string) (*VideoStatus, error)
}

// pollVideo is the wait loop behind WaitForVideo. A completed job without
// a url counts as a provider failure.
func pollVideo(ctx context.Context, src videoStatusGetter, log zerolog.Logger, jobID string, maxWait, interval time.Duration) (*VideoStatus, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for {
		attempt++
		status, err := src.GetVideoStatus(ctx, jobID)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("job", jobID).Msg("poll video failed")
			return nil, err
		}

		log.Debug().Int("attempt", attempt).Str("job", jobID).Str("status", status.Status).Msg("poll video")

		switch status.Status {
		case VideoStatusCompleted:
			if status.URL == "" {
				return nil, apperr.Provider("video job %s completed without url", jobID)
			}
			return status, nil
		case VideoStatusFailed:
			reason := status.Error
			if reason == "" {
				reason = "unknown error"
			}
			return nil, apperr.Provider("video generation failed: %s", reason)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, apperr.Timeout("video generation timed out after %v", maxWait)
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, classifyTransportError("video", ctx.Err())
		case <-time.After(wait):
		}
	}
}
