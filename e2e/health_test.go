package e2e

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t, providerURLs{}, fastWait)

	resp := doRequest(t, ta.app, http.MethodGet, "/health", "", "")
	assertStatus(t, resp, http.StatusOK)

	var body map[string]interface{}
	parseJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if _, ok := body["connections"]; !ok {
		t.Error("expected connections count")
	}
}

func TestRoot(t *testing.T) {
	ta := setupApp(t, providerURLs{}, fastWait)

	resp := doRequest(t, ta.app, http.MethodGet, "/", "", "")
	assertStatus(t, resp, http.StatusOK)
}

func TestAuthVerify(t *testing.T) {
	ta := setupApp(t, providerURLs{}, fastWait)

	resp := doRequest(t, ta.app, http.MethodGet, "/auth/verify", "", generateToken(t, testUserID))
	assertStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("X-User-Id"); got != testUserID {
		t.Errorf("expected X-User-Id %s, got %q", testUserID, got)
	}

	resp = doRequest(t, ta.app, http.MethodGet, "/auth/verify", "", "")
	assertStatus(t, resp, http.StatusUnauthorized)
}
