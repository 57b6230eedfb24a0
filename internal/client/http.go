package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// apiClient is the JSON transport shared by the HTTP providers.
type apiClient struct {
	name       string
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        zerolog.Logger
}

func newAPIClient(name, baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) apiClient {
	return apiClient{
		name: name,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log.With().Str("provider", name).Logger(),
	}
}

// post sends a POST request with JSON body
func (c *apiClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *apiClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response. Failures are
// classified so callers can tell a timeout from an unreachable provider from
// a provider that answered with an error.
func (c *apiClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	c.log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("provider request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("provider request failed")
		return classifyTransportError(c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(c.name, err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Dur("elapsed", time.Since(start)).
		Msg("provider response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Provider("%s API error (status %d): %s", c.name, resp.StatusCode, truncate(respBody, maxErrorBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "%s API returned malformed JSON: %v", c.name, err)
	}

	return nil
}

// classifyTransportError maps a failed round trip onto the error taxonomy.
func classifyTransportError(provider string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTimeout, err, "%s request timed out", provider)
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperr.Wrap(apperr.KindTimeout, err, "%s request timed out", provider)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindServiceUnavailable, err, "%s request cancelled", provider)
	default:
		return apperr.Wrap(apperr.KindServiceUnavailable, err, "%s service unavailable", provider)
	}
}

// truncate cuts b to at most n bytes without splitting a UTF-8 sequence.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "..."
}
