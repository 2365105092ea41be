package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/james-see/ratiokeys/pkg/engine"
	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/registry"
	"github.com/james-see/ratiokeys/pkg/voice"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, settle registry.SettleOptions) (*Server, *registry.Registry) {
	t.Helper()
	analyzer, err := engine.NewAnalyzer(1024, 48000)
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(engine.Options{Analyzer: analyzer})
	reg, err := registry.New(ratio.DefaultTable(), eng, registry.Options{Settle: settle})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(context.Background(), reg, analyzer, nil), reg
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: invalid json %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, registry.SettleOptions{})
	r := s.Router()

	for _, path := range []string{"/health", "/api/v1/health"} {
		w, body := do(t, r, http.MethodGet, path)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
		if body["status"] != "healthy" {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, registry.SettleOptions{})
	w, _ := do(t, s.Router(), http.MethodOptions, "/api/v1/keys/KeyQ/press")
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestPlayThroughAPI(t *testing.T) {
	s, reg := newTestServer(t, registry.SettleOptions{})
	r := s.Router()

	tests := []struct {
		method string
		path   string
		status int
		hz     float64
	}{
		{http.MethodPost, "/api/v1/keys/Digit1/press", http.StatusOK, 440},
		{http.MethodPost, "/api/v1/keys/Digit2/press", http.StatusOK, 880},
		{http.MethodPost, "/api/v1/keys/Digit3/press", http.StatusOK, 1320},
		{http.MethodPost, "/api/v1/keys/Digit2/release", http.StatusOK, 1320},
		{http.MethodPost, "/api/v1/keys/Digit2/press", http.StatusOK, 2640},
		{http.MethodPost, "/api/v1/keys/NoSuchKey/press", http.StatusOK, 2640},
	}

	for _, tt := range tests {
		w, _ := do(t, r, tt.method, tt.path)
		if w.Code != tt.status {
			t.Fatalf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.status)
		}
		if got := reg.Pitch(); got != tt.hz {
			t.Errorf("after %s pitch = %v, want %v", tt.path, got, tt.hz)
		}
	}

	_, body := do(t, r, http.MethodGet, "/api/v1/sounding")
	if got := len(body["sounding"].([]any)); got != 3 {
		t.Errorf("sounding has %d entries, want 3", got)
	}

	_, body = do(t, r, http.MethodGet, "/api/v1/voices")
	voices := body["voices"].([]any)
	first := voices[0].(map[string]any)
	if first["id"] != "Digit1" || first["state"] != "sounding" || first["waveform"] != "sine" {
		t.Errorf("first voice = %v", first)
	}

	w, body := do(t, r, http.MethodPost, "/api/v1/reset")
	if w.Code != http.StatusOK || body["hz"] != 440.0 {
		t.Errorf("reset = %d %v", w.Code, body)
	}

	w, _ = do(t, r, http.MethodPost, "/api/v1/panic")
	if w.Code != http.StatusOK {
		t.Errorf("panic = %d", w.Code)
	}
	for _, st := range reg.Snapshot() {
		if st.State != voice.Idle {
			t.Errorf("%s still sounding after panic", st.ID)
		}
	}
}

func TestTable(t *testing.T) {
	s, _ := newTestServer(t, registry.SettleOptions{})
	r := s.Router()

	_, body := do(t, r, http.MethodGet, "/api/v1/table")
	keys := body["keys"].([]any)
	if len(keys) != ratio.DefaultTable().Len() {
		t.Fatalf("table has %d keys", len(keys))
	}
	if k := keys[0].(map[string]any); k["key"] != "Digit1" || k["ratio"] != "1/1" {
		t.Errorf("first key = %v", k)
	}

	_, body = do(t, r, http.MethodGet, "/api/v1/table?sort=distance")
	keys = body["keys"].([]any)
	prev := 0.0
	for _, k := range keys {
		d := k.(map[string]any)["distance"].(float64)
		if d < prev {
			t.Fatalf("table not sorted by distance: %v after %v", d, prev)
		}
		prev = d
	}

	w, _ := do(t, r, http.MethodGet, "/api/v1/table?sort=pitch")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad sort = %d, want 400", w.Code)
	}
}

func TestAnalysis(t *testing.T) {
	s, _ := newTestServer(t, registry.SettleOptions{})
	w, body := do(t, s.Router(), http.MethodGet, "/api/v1/analysis")
	if w.Code != http.StatusOK {
		t.Fatalf("analysis = %d", w.Code)
	}
	if body["level"] != 0.0 || body["peak_hz"] != 0.0 {
		t.Errorf("silent analysis = %v", body)
	}

	s.analyzer = nil
	w, _ = do(t, s.Router(), http.MethodGet, "/api/v1/analysis")
	if w.Code != http.StatusNotFound {
		t.Errorf("analysis without analyzer = %d, want 404", w.Code)
	}
}

func TestSettleConflicts(t *testing.T) {
	s, reg := newTestServer(t, registry.SettleOptions{Steps: 2, Interval: time.Hour})
	r := s.Router()
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx

	w, _ := do(t, r, http.MethodPost, "/api/v1/settle")
	if w.Code != http.StatusAccepted {
		t.Fatalf("settle = %d, want 202", w.Code)
	}

	// the sequence is claimed before the 202 is written
	if !reg.Settling() {
		t.Fatal("settle not running after 202")
	}
	deadline := time.Now().Add(2 * time.Second)

	for _, path := range []string{"/api/v1/keys/KeyQ/press", "/api/v1/keys/KeyQ/release", "/api/v1/reset", "/api/v1/panic", "/api/v1/settle"} {
		w, body := do(t, r, http.MethodPost, path)
		if w.Code != http.StatusConflict {
			t.Errorf("POST %s during settle = %d, want 409", path, w.Code)
		}
		if body["error"] == nil {
			t.Errorf("POST %s body = %v, want error", path, body)
		}
	}

	cancel()
	for reg.Settling() {
		if time.Now().After(deadline) {
			t.Fatal("settle did not stop")
		}
		time.Sleep(time.Millisecond)
	}
	if reg.Pitch() != 440 {
		t.Errorf("pitch = %v after settle, want 440", reg.Pitch())
	}
}

func TestSettleWait(t *testing.T) {
	s, reg := newTestServer(t, registry.SettleOptions{Interval: 0})
	w, body := do(t, s.Router(), http.MethodPost, "/api/v1/settle?wait=true")
	if w.Code != http.StatusOK || body["hz"] != 440.0 {
		t.Errorf("settle = %d %v", w.Code, body)
	}
	if reg.Settling() {
		t.Error("still settling")
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{registry.ErrSettling, http.StatusConflict},
		{registry.ErrNoSettle, http.StatusNotImplemented},
		{errors.Join(voice.ErrBackend, engine.ErrTooManyOscillators), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		abortWithError(c, tt.err)
		if w.Code != tt.want {
			t.Errorf("abortWithError(%v) = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}
