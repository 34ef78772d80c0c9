package sandbox

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"dlclient/internal/remote"
)

func setupRouter(t *testing.T) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	return NewRouter(m, "/api"), m
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
}

func TestInfo(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/info", map[string]string{"url": "https://example.org/watch?v=abc&subs=en"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var meta remote.Metadata
	decode(t, w, &meta)
	if meta.Title != "abc" || len(meta.Subtitles) != 1 || meta.Subtitles[0] != "en" {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	w = doJSON(t, router, http.MethodPost, "/api/info", map[string]string{"url": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/api/info", map[string]string{"url": "nope"})
	var env map[string]string
	decode(t, w, &env)
	if w.Code != http.StatusInternalServerError || env["error"] == "" {
		t.Fatalf("expected error body, got %d %v", w.Code, env)
	}
}

func TestInfoEmptySubtitlesIsArray(t *testing.T) {
	router, _ := setupRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/info", map[string]string{"url": "https://example.org/a"})
	if !strings.Contains(w.Body.String(), `"subtitles":[]`) {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}

func TestDownloadStatusAndArtifact(t *testing.T) {
	router, m := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/download", remote.DownloadRequest{URL: "https://example.org/watch/song", Format: "audio"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var created struct {
		TaskID string `json:"task_id"`
	}
	decode(t, w, &created)
	if created.TaskID == "" {
		t.Fatalf("expected non-empty task_id")
	}

	waitTerminal(t, m, created.TaskID)

	w = doJSON(t, router, http.MethodGet, "/api/status/"+created.TaskID, nil)
	var st remote.TaskStatus
	decode(t, w, &st)
	if st.Status != remote.StatusCompleted || st.Filename != "song.mp3" {
		t.Fatalf("unexpected status %+v", st)
	}

	w = doJSON(t, router, http.MethodGet, "/downloads/song.mp3", nil)
	if w.Code != http.StatusOK || w.Body.Len() != 1024 {
		t.Fatalf("expected artifact body, got %d (%d bytes)", w.Code, w.Body.Len())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
	w = doJSON(t, router, http.MethodGet, "/view/song.mp3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected inline view, got %d", w.Code)
	}
}

func TestStatusUnknown(t *testing.T) {
	router, _ := setupRouter(t)
	w := doJSON(t, router, http.MethodGet, "/api/status/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManagerWithOptions(Options{DataDir: t.TempDir(), StepDelay: 20 * time.Millisecond, StepsPerItem: 100})
	router := NewRouter(m, "/api")

	job, err := m.CreateJob(remote.DownloadRequest{URL: "https://example.org/long"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := doJSON(t, router, http.MethodPost, "/api/cancel", map[string]string{"task_id": job.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}
	if st := waitTerminal(t, m, job.ID); st.Status != remote.StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", st)
	}
	w = doJSON(t, router, http.MethodPost, "/api/cancel", map[string]string{"task_id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHistoryAndDelete(t *testing.T) {
	router, m := setupRouter(t)
	if err := m.Store().WriteFile("a b.mp4", strings.NewReader("data")); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/history", nil)
	var entries []remote.HistoryEntry
	decode(t, w, &entries)
	if len(entries) != 1 || entries[0].Name != "a b.mp4" || entries[0].Size != 4 {
		t.Fatalf("unexpected history %+v", entries)
	}
	if entries[0].ExpiresAt <= float64(time.Now().Unix()) {
		t.Fatalf("expiry should be in the future: %v", entries[0].ExpiresAt)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/files/a%20b.mp4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodDelete, "/api/files/a%20b.mp4", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected %d, got %d", http.StatusNotFound, w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/history", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty history, got %s", w.Body.String())
	}
}

func TestCookies(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/cookies-status", nil)
	var st map[string]bool
	decode(t, w, &st)
	if st["exists"] {
		t.Fatalf("no cookies expected yet")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "cookies.txt")
	_, _ = part.Write([]byte("# Netscape HTTP Cookie File\n"))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload-cookies", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/cookies-status", nil)
	decode(t, w, &st)
	if !st["exists"] {
		t.Fatalf("cookies should exist after upload")
	}
	w = doJSON(t, router, http.MethodGet, "/api/history", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("cookies must not show up in history: %s", w.Body.String())
	}
}

func TestIndexPage(t *testing.T) {
	router, _ := setupRouter(t)
	w := doJSON(t, router, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Download sandbox") {
		t.Fatalf("unexpected index %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/ui/tasks?id=missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlerContinuesClientTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&logs)
	t.Cleanup(func() { log.Logger = prev })

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	h := Handler(newTestManager(t), "/api",
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(propagation.TraceContext{}),
	)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	req.Header.Set(sessionHeader, "session-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	line := logs.String()
	if !strings.Contains(line, `"trace_id":"`+traceID+`"`) {
		t.Fatalf("request log lacks the caller's trace id: %s", line)
	}
	if !strings.Contains(line, `"session":"session-1"`) {
		t.Fatalf("request log lacks the session: %s", line)
	}
	ended := spans.Ended()
	if len(ended) != 1 || ended[0].Parent().SpanID().String() != "00f067aa0ba902b7" {
		t.Fatalf("server span should be a child of the client span, got %v", ended)
	}
	if ended[0].Name() != "sandbox GET /api/history" {
		t.Fatalf("unexpected span name %q", ended[0].Name())
	}
}
