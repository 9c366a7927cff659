package errors

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusCodes(t *testing.T) {
	cause := stderrors.New("boom")
	tests := []struct {
		err  *AppError
		want int
	}{
		{BadRequestWrap(cause, "bad"), http.StatusBadRequest},
		{RateLimit("slow down"), http.StatusTooManyRequests},
		{SourceUnavailable(cause), http.StatusServiceUnavailable},
		{MalformedRecord(cause), http.StatusInternalServerError},
		{Internal("oops"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if tt.err.StatusCode != tt.want {
			t.Errorf("%s status = %d, want %d", tt.err.Code, tt.err.StatusCode, tt.want)
		}
	}

	if err := SourceUnavailable(cause); !stderrors.Is(err, cause) || err.Details != "boom" {
		t.Errorf("SourceUnavailable should wrap its cause, got %v", err)
	}
}

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := httptest.NewRecorder()

	WriteError(w, logger, stderrors.New("plain"), "req-1")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	var body struct {
		Error   AppError `json:"error"`
		Success bool     `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != CodeInternal || body.Error.RequestID != "req-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteSuccessCached(t *testing.T) {
	data := map[string]int{"orders": 3}

	first := httptest.NewRecorder()
	if err := WriteSuccessCached(first, httptest.NewRequest(http.MethodGet, "/", nil), data, map[string]string{"Cache-Control": "private"}); err != nil {
		t.Fatalf("WriteSuccessCached() error = %v", err)
	}
	etag := first.Header().Get("ETag")
	if first.Code != http.StatusOK || etag == "" {
		t.Fatalf("status = %d, etag = %q", first.Code, etag)
	}
	if first.Header().Get("Cache-Control") != "private" {
		t.Error("extra headers should be applied")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	if err := WriteSuccessCached(second, req, data, nil); err != nil {
		t.Fatalf("WriteSuccessCached() error = %v", err)
	}
	if second.Code != http.StatusNotModified || second.Body.Len() != 0 {
		t.Errorf("status = %d, body = %q, want empty 304", second.Code, second.Body.String())
	}

	third := httptest.NewRecorder()
	if err := WriteSuccessCached(third, req, map[string]int{"orders": 4}, nil); err != nil {
		t.Fatalf("WriteSuccessCached() error = %v", err)
	}
	if third.Code != http.StatusOK || third.Header().Get("ETag") == etag {
		t.Error("changed data should produce a new ETag and a full response")
	}
}

func TestWriteSuccessCached_EncodeError(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteSuccessCached(w, httptest.NewRequest(http.MethodGet, "/", nil), map[string]float64{"revenue": math.NaN()}, nil)

	appErr, ok := err.(*AppError)
	if !ok || appErr.Code != CodeInternal {
		t.Fatalf("WriteSuccessCached() error = %v, want an internal *AppError", err)
	}
	if w.Body.Len() != 0 || w.Header().Get("ETag") != "" {
		t.Error("nothing should be written when encoding fails")
	}
}
