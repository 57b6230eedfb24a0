package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// generateContentFunc matches genai's Models.GenerateContent.
type generateContentFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiClient drafts scripts through the Gemini API. It is the alternative
// to GLMClient when text.provider is "gemini".
type GeminiClient struct {
	generate generateContentFunc
	model    string
	log      zerolog.Logger
}

// NewGeminiClient creates a Gemini client for the developer API backend
func NewGeminiClient(ctx context.Context, cfg *config.GeminiConfig, log zerolog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini model name cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		generate: client.Models.GenerateContent,
		model:    cfg.Model,
		log:      log.With().Str("provider", "gemini").Logger(),
	}, nil
}

// GenerateScript requests JSON output and validates it like the GLM path
func (c *GeminiClient) GenerateScript(ctx context.Context, params *model.ScriptParams) (*model.Script, error) {
	parts := []*genai.Part{{Text: params.Prompt}}
	for i, img := range params.UserImages {
		data, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, apperr.Validation("userImages[%d] is not valid base64", i)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: data},
		})
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: screenplaySystemPrompt(params.SceneCount, params.CharacterCount)}},
		},
		ResponseMIMEType: "application/json",
	}

	c.log.Debug().Str("model", c.model).Msg("gemini generate content")

	resp, err := c.generate(ctx, c.model, []*genai.Content{{Role: "user", Parts: parts}}, cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	switch {
	case resp == nil || len(resp.Candidates) == 0:
		return nil, apperr.Provider("gemini returned no candidates")
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return nil, apperr.Provider("gemini blocked the prompt by safety filters")
	case resp.Candidates[0].Content == nil:
		return nil, apperr.Provider("gemini returned empty content")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	return parseScript("gemini", text.String())
}

// classifyGeminiError keeps answers from the API as provider errors and
// routes round-trip failures through the shared transport taxonomy.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Wrap(apperr.KindProvider, err, "gemini API error (status %d): %s", apiErr.Code, apiErr.Message)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classifyTransportError("gemini", err)
	}
	return apperr.Wrap(apperr.KindProvider, err, "gemini API error: %v", err)
}
