package client

import (
	"context"
	"time"

	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/rs/zerolog"
)

// GLMClient drafts scripts through the Zhipu GLM chat completions API
type GLMClient struct {
	api   apiClient
	model string
}

// ChatMessage is a message in a chat completion request. Content is either a
// string or a list of ContentPart.
type ChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart is one part of a multimodal user message
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewGLMClient creates a new GLM API client
func NewGLMClient(cfg *config.GLMConfig, log zerolog.Logger) *GLMClient {
	return &GLMClient{
		api:   newAPIClient("glm", cfg.BaseURL, cfg.APIKey, time.Duration(cfg.Timeout)*time.Second, log),
		model: cfg.Model,
	}
}

// GenerateScript asks GLM for a script and validates the JSON it returns
func (c *GLMClient) GenerateScript(ctx context.Context, params *model.ScriptParams) (*model.Script, error) {
	var user interface{} = params.Prompt
	if len(params.UserImages) > 0 {
		parts := []ContentPart{{Type: "text", Text: params.Prompt}}
		for _, img := range params.UserImages {
			parts = append(parts, ContentPart{
				Type:     "image_url",
				ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + img},
			})
		}
		user = parts
	}

	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: screenplaySystemPrompt(params.SceneCount, params.CharacterCount)},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
	}

	var chatResp ChatCompletionResponse
	if err := c.api.post(ctx, "/chat/completions", reqBody, &chatResp); err != nil {
		return nil, err
	}

	if len(chatResp.Choices) == 0 {
		return nil, apperr.Provider("glm returned no choices")
	}

	return parseScript("glm", chatResp.Choices[0].Message.Content)
}

// IsConfigured returns true if the client has valid configuration
func (c *GLMClient) IsConfigured() bool {
	return c.api.apiKey != ""
}
