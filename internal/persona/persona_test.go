package persona

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPResolverSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "ops" {
			t.Errorf("persona id = %q, want ops", r.URL.Query().Get("id"))
		}
		w.Write([]byte(`{"id":"ops","display_name":"Atlas","greeting":"Atlas here."}`))
	}))
	defer server.Close()

	profile := NewHTTPResolver(server.URL).Resolve(context.Background(), "ops")
	if profile.DisplayName != "Atlas" {
		t.Fatalf("display name = %q, want Atlas", profile.DisplayName)
	}
	if profile.SystemPrompt == "" {
		t.Fatalf("missing fields should inherit defaults")
	}
}

func TestHTTPResolverFallsBackOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	profile := NewHTTPResolver(server.URL).Resolve(context.Background(), "ops")
	if profile.DisplayName != DefaultProfile().DisplayName {
		t.Fatalf("profile = %+v, want defaults", profile)
	}
}

func TestHTTPResolverFallsBackOnUnreachableHost(t *testing.T) {
	profile := NewHTTPResolver("http://127.0.0.1:1/persona").Resolve(context.Background(), "ops")
	if profile.DisplayName != DefaultProfile().DisplayName {
		t.Fatalf("profile = %+v, want defaults", profile)
	}
}

func TestHTTPResolverFallsBackOnGarbagePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	profile := NewHTTPResolver(server.URL).Resolve(context.Background(), "ops")
	if profile.DisplayName != DefaultProfile().DisplayName {
		t.Fatalf("profile = %+v, want defaults", profile)
	}
}
