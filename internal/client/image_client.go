package client

import (
	"context"
	"time"

	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/rs/zerolog"
)

// ImageClient calls an OpenAI-compatible image generation endpoint
type ImageClient struct {
	api apiClient
}

// ImageGenerationRequest represents the request body for image generation
type ImageGenerationRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	Size           string   `json:"size"`
	ResponseFormat string   `json:"response_format"`
	N              int      `json:"n"`
	Image          []string `json:"image,omitempty"`
}

// ImageGenerationResponse represents the response from image generation
type ImageGenerationResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// NewImageClient creates a new image API client
func NewImageClient(cfg *config.ImageConfig, log zerolog.Logger) *ImageClient {
	return &ImageClient{
		api: newAPIClient("image", cfg.BaseURL, cfg.APIKey, time.Duration(cfg.Timeout)*time.Second, log),
	}
}

// GenerateImage generates one image and returns its URL
func (c *ImageClient) GenerateImage(ctx context.Context, params *model.ImageParams) (*ImageResult, error) {
	reqBody := ImageGenerationRequest{
		Model:          params.Model,
		Prompt:         params.Prompt,
		Size:           params.Size,
		ResponseFormat: "url",
		N:              1,
		Image:          params.ReferenceImages,
	}

	var resp ImageGenerationResponse
	if err := c.api.post(ctx, "/v1/images/generations", reqBody, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, apperr.Provider("image provider returned no images")
	}
	if resp.Data[0].URL == "" {
		return nil, apperr.Provider("image provider returned an image without url")
	}

	return &ImageResult{URL: resp.Data[0].URL, RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ImageClient) IsConfigured() bool {
	return c.api.apiKey != ""
}
