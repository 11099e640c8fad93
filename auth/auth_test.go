package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func tokenServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"token123","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetTokenAndSetAuthHeader(t *testing.T) {
	var hits atomic.Int32
	server := tokenServer(t, &hits)

	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL})

	token, err := client.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken returned error: %v", err)
	}
	if token != "token123" {
		t.Fatalf("unexpected token %s", token)
	}

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	if err := client.SetAuthHeader(req); err != nil {
		t.Fatalf("SetAuthHeader returned error: %v", err)
	}
	if auth := req.Header.Get("Authorization"); auth != "Bearer token123" {
		t.Fatalf("unexpected Authorization header %q", auth)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cached token, endpoint hit %d times", hits.Load())
	}
}

func TestForceRefresh(t *testing.T) {
	var hits atomic.Int32
	server := tokenServer(t, &hits)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL})

	if _, err := client.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if _, err := client.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected two token requests, got %d", hits.Load())
	}
}

func TestGetToken_EndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "bad", AuthURL: server.URL})
	if _, err := client.GetToken(context.Background()); err == nil {
		t.Fatal("expected error from token endpoint")
	}
}

func TestConfValidate(t *testing.T) {
	if err := (Conf{}).Validate(); err != nil {
		t.Fatalf("disabled conf should validate: %v", err)
	}
	if err := (Conf{AuthURL: "http://idp"}).Validate(); err == nil {
		t.Fatal("expected missing credentials error")
	}
}
