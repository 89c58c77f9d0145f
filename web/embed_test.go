package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSPAHandlerServesIndexForUnknownPaths(t *testing.T) {
	h := SPAHandler()
	for _, path := range []string{"/", "/chat", "/signup/step", "/apidocs"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "<title>Smart Star</title>") {
			t.Fatalf("%s: expected the chat page", path)
		}
	}
}

func TestSPAHandlerUnknownAPIPathIsJSONNotFound(t *testing.T) {
	h := SPAHandler()
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/chat-typo"},
		{http.MethodDelete, "/api/chat-typo/1"},
		{http.MethodGet, "/ws/unknown"},
		{http.MethodGet, "/api"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s %s: expected JSON, got %q", tc.method, tc.path, ct)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] != "not found" {
			t.Fatalf("%s %s: unexpected body %q", tc.method, tc.path, rec.Body.String())
		}
	}
}

func TestSPAHandlerRejectsWritesToPage(t *testing.T) {
	h := SPAHandler()
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/chat", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", method, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != "GET, HEAD" {
			t.Fatalf("%s: unexpected Allow header %q", method, allow)
		}
	}
}

func TestSPAHandlerHeadServesPage(t *testing.T) {
	rec := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/chat", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatal("expected empty body for HEAD")
	}
}
