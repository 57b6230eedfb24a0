package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/loopyluu007/anime-ai/internal/service"
	"github.com/loopyluu007/anime-ai/pkg/response"
)

var fastWait = service.VideoWait{MaxWait: 2 * time.Second, PollInterval: 10 * time.Millisecond}

// videoProvider fakes the video API. status is what every poll reports.
func videoProvider(t *testing.T, status, videoURL string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/videos":
			_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "vid-42", "status": "queued"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/videos/"):
			_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "video_url": videoURL})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVideoTaskCompletes(t *testing.T) {
	provider := videoProvider(t, "completed", "https://x/vid.mp4")
	ta := setupApp(t, providerURLs{video: provider.URL}, fastWait)
	token := generateToken(t, testUserID)

	id := createTask(t, ta.app, token, `{"type":"video","params":{"prompt":"a cat surfing"}}`)
	task := waitForTerminal(t, ta.app, token, id)

	assert.Equal(t, model.TaskStatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	assert.Nil(t, task.Error)
	require.NotNil(t, task.CompletedAt)

	var result model.MediaResult
	require.NoError(t, json.Unmarshal(task.Result, &result))
	assert.Equal(t, "https://x/vid.mp4", result.URL)
	assert.Equal(t, "vid-42", result.ProviderJobID)
}

func TestVideoTaskTimesOut(t *testing.T) {
	provider := videoProvider(t, "processing", "")
	ta := setupApp(t, providerURLs{video: provider.URL}, service.VideoWait{MaxWait: 150 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	token := generateToken(t, testUserID)

	id := createTask(t, ta.app, token, `{"type":"video","params":{"prompt":"a cat surfing"}}`)
	task := waitForTerminal(t, ta.app, token, id)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Contains(t, *task.Error, "timed out")
	assert.Nil(t, task.Result)
	assert.NotNil(t, task.CompletedAt)
}

func TestImageProviderErrorRecorded(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	t.Cleanup(provider.Close)
	ta := setupApp(t, providerURLs{image: provider.URL}, fastWait)
	token := generateToken(t, testUserID)

	id := createTask(t, ta.app, token, `{"type":"image","params":{"prompt":"a castle"}}`)
	task := waitForTerminal(t, ta.app, token, id)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Equal(t, `image API error (status 500): {"error":"model overloaded"}`, *task.Error)

	resp := doRequest(t, ta.app, http.MethodGet, "/api/tasks/"+id+"/progress", "", token)
	assertStatus(t, resp, http.StatusOK)
	var progress model.TaskProgressResponse
	parseJSON(t, resp, &progress)
	assert.Equal(t, model.TaskStatusFailed, progress.Status)
	assert.Equal(t, *task.Error, *progress.ErrorMessage)
}

func TestUnconfiguredProviderFailsTask(t *testing.T) {
	ta := setupApp(t, providerURLs{}, fastWait)
	token := generateToken(t, testUserID)

	id := createTask(t, ta.app, token, `{"type":"screenplay","params":{"prompt":"x"}}`)
	task := waitForTerminal(t, ta.app, token, id)
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Equal(t, "Script provider not configured", *task.Error)
}

func TestTaskAccessAndListing(t *testing.T) {
	provider := videoProvider(t, "completed", "https://x/vid.mp4")
	ta := setupApp(t, providerURLs{video: provider.URL}, fastWait)
	alice := generateToken(t, "alice")
	bob := generateToken(t, "bob")

	id := createTask(t, ta.app, alice, `{"type":"video","params":{"prompt":"x"}}`)
	waitForTerminal(t, ta.app, alice, id)

	resp := doRequest(t, ta.app, http.MethodGet, "/api/tasks/"+id, "", bob)
	assertStatus(t, resp, http.StatusForbidden)

	resp = doRequest(t, ta.app, http.MethodGet, "/api/tasks/"+id, "", "")
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = doRequest(t, ta.app, http.MethodGet, "/api/tasks?page=1&pageSize=10", "", alice)
	assertStatus(t, resp, http.StatusOK)
	var list model.TaskListResponse
	parseJSON(t, resp, &list)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, id, list.Items[0].ID)

	resp = doRequest(t, ta.app, http.MethodGet, "/api/tasks", "", bob)
	parseJSON(t, resp, &list)
	assert.Equal(t, 0, list.Total)

	resp = doRequest(t, ta.app, http.MethodPost, "/api/tasks/"+id+"/cancel", "", alice)
	assertStatus(t, resp, http.StatusConflict)
	var env response.ErrorResponse
	parseJSON(t, resp, &env)
	assert.Equal(t, response.CodeConflict, env.Error.Code)
}

func TestTypedShortcuts(t *testing.T) {
	provider := videoProvider(t, "completed", "https://x/vid.mp4")
	ta := setupApp(t, providerURLs{video: provider.URL}, fastWait)
	token := generateToken(t, testUserID)

	resp := doRequest(t, ta.app, http.MethodPost, "/api/videos", `{"prompt":"waves","seconds":"5"}`, token)
	assertStatus(t, resp, http.StatusAccepted)
	var created model.TaskCreatedResponse
	parseJSON(t, resp, &created)
	assert.Equal(t, model.TaskTypeVideo, created.Type)

	task := waitForTerminal(t, ta.app, token, created.ID)
	var result model.MediaResult
	require.NoError(t, json.Unmarshal(task.Result, &result))
	assert.Equal(t, "5", result.Seconds)

	resp = doRequest(t, ta.app, http.MethodPost, "/api/videos", `{"seconds":"7"}`, token)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestSystemNoticeRequiresAdmin(t *testing.T) {
	ta := setupApp(t, providerURLs{}, fastWait)

	resp := doRequest(t, ta.app, http.MethodPost, "/api/system/notices", `{"message":"hello"}`, generateToken(t, "u"))
	assertStatus(t, resp, http.StatusForbidden)

	resp = doRequest(t, ta.app, http.MethodPost, "/api/system/notices", `{"message":"hello"}`, generateToken(t, "root", "admin"))
	assertStatus(t, resp, http.StatusOK)
}

func TestErrorEnvelopeCarriesRequestID(t *testing.T) {
	ta := setupApp(t, providerURLs{}, fastWait)

	resp := doRequest(t, ta.app, http.MethodGet, "/api/tasks/unknown", "", generateToken(t, testUserID))
	assertStatus(t, resp, http.StatusNotFound)
	var env response.ErrorResponse
	parseJSON(t, resp, &env)
	assert.Equal(t, response.CodeNotFound, env.Error.Code)
	assert.NotEmpty(t, env.Error.ErrorID)

	resp = doRequest(t, ta.app, http.MethodGet, "/no/such/route", "", "")
	assertStatus(t, resp, http.StatusNotFound)
}
