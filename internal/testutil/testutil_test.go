package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/golang/geo/r3"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertVectorNear(t *testing.T) {
	t.Parallel()
	AssertVectorNear(t, r3.Vector{X: 1}, r3.Vector{X: 1, Y: 1e-9}, 1e-6)
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodPost, "/api/models?name=a", "1 2 3\n")
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if req.URL.Query().Get("name") != "a" {
		t.Errorf("expected name=a, got %q", req.URL.RawQuery)
	}
	if req.RemoteAddr != "127.0.0.1:40000" {
		t.Errorf("expected loopback remote address, got %s", req.RemoteAddr)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != "1 2 3\n" {
		t.Errorf("expected body %q, got %q", "1 2 3\n", body)
	}

	req = NewTestRequest(http.MethodGet, "/health", "")
	if req.ContentLength != 0 {
		t.Errorf("expected empty body, got length %d", req.ContentLength)
	}
}

func TestServeAndDecodeJSON(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	w := Serve(h, NewTestRequest(http.MethodGet, "/health", ""))
	AssertStatusCode(t, w.Code, http.StatusOK)

	var got map[string]string
	DecodeJSON(t, w, &got)
	if got["status"] != "ok" {
		t.Errorf("expected status ok, got %v", got)
	}
}
