package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/loopyluu007/anime-ai/internal/admission"
	"github.com/loopyluu007/anime-ai/internal/auth"
	"github.com/loopyluu007/anime-ai/internal/client"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/loopyluu007/anime-ai/internal/server"
	"github.com/loopyluu007/anime-ai/internal/service"
	"github.com/loopyluu007/anime-ai/internal/store"
	ws "github.com/loopyluu007/anime-ai/internal/websocket"
	"github.com/loopyluu007/anime-ai/internal/worker"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	tasks   *service.TaskService
	hub     *ws.Hub
	limiter *admission.Limiter
}

// providerURLs points the image and video clients at test servers. Empty
// entries leave that provider unconfigured.
type providerURLs struct {
	image string
	video string
}

// setupApp creates the same app as the serve command over the memory
// store and the local worker pool.
func setupApp(t *testing.T, urls providerURLs, wait service.VideoWait) *testApp {
	t.Helper()
	log := zerolog.Nop()

	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, Requests: 10000, WindowSeconds: 60},
		WebSocket: config.WebSocketConfig{SendBuffer: 64, PingIntervalSeconds: 30},
	}

	var providers service.Providers
	if urls.image != "" {
		providers.Image = client.NewImageClient(&config.ImageConfig{APIKey: "k", BaseURL: urls.image, Timeout: 5}, log)
	}
	if urls.video != "" {
		providers.Video = client.NewVideoClient(&config.VideoConfig{APIKey: "k", BaseURL: urls.video, Timeout: 5}, log)
	}

	validate := validator.New()
	hub := ws.NewHub(cfg.WebSocket.SendBuffer, log)
	tasks := service.NewTaskService(store.NewMemoryStore(), providers, hub, validate, log, service.WithVideoWait(wait))

	pool := worker.NewPool(tasks, worker.PoolConfig{WorkerCount: 2}, log)
	pool.Start()
	tasks.SetDispatcher(pool)
	t.Cleanup(func() {
		_ = pool.Stop(context.Background())
		hub.Close()
	})

	limiter := admission.New(true)
	app := server.New(server.Deps{
		Config:    cfg,
		Log:       log,
		Tasks:     tasks,
		Hub:       hub,
		Resolver:  auth.NewResolver(nil, testJWTSecret),
		Limiter:   limiter,
		Validator: validate,
		Services:  map[string]bool{"auth": true},
	})
	return &testApp{app: app, tasks: tasks, hub: hub, limiter: limiter}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	signed, err := auth.GenerateLegacyToken(auth.Principal{
		UserID: userID,
		Email:  userID + "@example.com",
		Roles:  roles,
	}, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest sends an authenticated request through app.Test.
func doRequest(t *testing.T, app *fiber.App, method, path, body, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

// parseJSON decodes a response body into v.
func parseJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// assertStatus fails with the body when the status is not expected.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

// createTask submits a task and returns its id.
func createTask(t *testing.T, app *fiber.App, token, body string) string {
	t.Helper()
	resp := doRequest(t, app, http.MethodPost, "/api/tasks", body, token)
	assertStatus(t, resp, http.StatusAccepted)
	var created model.TaskCreatedResponse
	parseJSON(t, resp, &created)
	if created.ID == "" {
		t.Fatal("expected task id")
	}
	return created.ID
}

// waitForTerminal polls the task until it leaves pending/processing.
func waitForTerminal(t *testing.T, app *fiber.App, token, taskID string) *model.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := doRequest(t, app, http.MethodGet, "/api/tasks/"+taskID, "", token)
		assertStatus(t, resp, http.StatusOK)
		var task model.Task
		parseJSON(t, resp, &task)
		if task.Status.IsTerminal() {
			return &task
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", taskID)
	return nil
}
