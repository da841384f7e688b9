package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestLogger_PassesStatusThrough(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test-path", nil))

		if rr.Code != code {
			t.Errorf("expected status %d, got %d", code, rr.Code)
		}
	}
}

func TestStatusWriter_DefaultsTo200AndCountsBytes(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	sw.Write([]byte("hello"))

	if sw.status != http.StatusOK || sw.bytes != 5 {
		t.Errorf("status = %d, bytes = %d", sw.status, sw.bytes)
	}
}

func TestStatusWriter_CapturesFirstWriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusNotFound)

	if sw.status != http.StatusCreated {
		t.Errorf("expected captured status 201, got %d", sw.status)
	}
}
