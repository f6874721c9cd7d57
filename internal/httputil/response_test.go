package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]float64{"length": 12.5})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got := rec.Body.String(); got != "{\"length\":12.5}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestWriteJSONUnencodable(t *testing.T) {
	var logged string
	defer monitoring.SetLogger(nil)
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = format })

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, math.NaN())

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if logged == "" {
		t.Error("Expected the encoding failure to be logged")
	}
}

func TestSetAttachment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base, ext, want string
	}{
		{"tube", "obj", `attachment; filename="tube.obj"`},
		{"my scan (1)", "stl", `attachment; filename="my_scan_1.stl"`},
		{`../"quoted"`, "csv", `attachment; filename="quoted.csv"`},
		{"", "obj", `attachment; filename="unnamed.obj"`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		SetAttachment(rec, "model/obj", tt.base, tt.ext)
		if got := rec.Header().Get("Content-Disposition"); got != tt.want {
			t.Errorf("SetAttachment(%q) = %s, want %s", tt.base, got, tt.want)
		}
		if got := rec.Header().Get("Content-Type"); got != "model/obj" {
			t.Errorf("content-type = %s, want model/obj", got)
		}
	}
}
