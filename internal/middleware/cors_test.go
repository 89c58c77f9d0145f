package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{"explicit origin", []string{"https://app.example.com"}, "https://app.example.com", http.MethodGet, "https://app.example.com", "true", http.StatusTeapot},
		{"wildcard origin", []string{"*"}, "https://other.example.com", http.MethodGet, "https://other.example.com", "", http.StatusTeapot},
		{"rejected origin", []string{"https://app.example.com"}, "https://evil.example.com", http.MethodGet, "", "", http.StatusTeapot},
		{"preflight", []string{"*"}, "https://other.example.com", http.MethodOptions, "https://other.example.com", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/chat", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected allow origin %q, got %q", tt.wantOrigin, got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("expected credentials %q, got %q", tt.wantCreds, got)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	got := Origins(" https://a.example.com/, ,https://b.example.com")
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if Origins("") != nil {
		t.Fatal("expected nil for empty list")
	}
}
