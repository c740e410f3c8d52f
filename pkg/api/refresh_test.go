package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mockmate/mockmate/pkg/api"
	"github.com/mockmate/mockmate/pkg/creds"
)

// authedServer accepts only the given token on protected paths and
// counts refresh calls. The refresh endpoint rotates to newToken.
type authedServer struct {
	mu           sync.Mutex
	goodToken    string
	newToken     string
	refreshCalls atomic.Int32
	refreshFails bool
}

func (s *authedServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if r.Header.Get("Authorization") != "" {
			// The stale access token must never ride along on a refresh.
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if s.refreshFails || body.RefreshToken == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid refresh token"}`))
			return
		}
		s.mu.Lock()
		s.goodToken = s.newToken
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  s.newToken,
			"refresh_token": "ref-next",
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		good := "Bearer " + s.goodToken
		s.mu.Unlock()
		if r.Header.Get("Authorization") != good {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

func newAuthedClient(t *testing.T, srv *authedServer) (*api.Client, *creds.MemoryStore) {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	store := creds.NewMemory()
	client, err := api.New(ts.URL, store)
	if err != nil {
		t.Fatal(err)
	}
	return client, store
}

func TestConcurrent401sTriggerExactlyOneRefresh(t *testing.T) {
	t.Parallel()
	const n = 8

	// The refresh response is held back until every first attempt has hit
	// the server with the stale token, so all n requests are guaranteed to
	// queue behind the one in-flight refresh.
	var staleSeen atomic.Int32
	allStale := make(chan struct{})
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		<-allStale
		refreshCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "fresh",
			"refresh_token": "ref-next",
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			if staleSeen.Add(1) == n {
				close(allStale)
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	store := creds.NewMemory()
	store.SaveTokens(creds.TokenPair{AccessToken: "stale", RefreshToken: "ref-1"})
	client, err := api.New(ts.URL, store)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.GetJSON(context.Background(), "/round1/summary", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := store.AccessToken(); got != "fresh" {
		t.Errorf("stored access token = %q, want fresh", got)
	}
	if got := store.RefreshToken(); got != "ref-next" {
		t.Errorf("stored refresh token = %q, want ref-next", got)
	}
}

func TestNoRefreshTokenClearsAndInvalidates(t *testing.T) {
	t.Parallel()
	srv := &authedServer{goodToken: "good", newToken: "good"}
	client, store := newAuthedClient(t, srv)
	store.SaveTokens(creds.TokenPair{AccessToken: "stale"})
	store.SaveUser(&creds.Profile{Name: "Jane"})

	var invalidated atomic.Int32
	client.OnSessionInvalidated = func() { invalidated.Add(1) }

	err := client.GetJSON(context.Background(), "/round1/summary", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := srv.refreshCalls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0", got)
	}
	if got := invalidated.Load(); got != 1 {
		t.Errorf("invalidated callbacks = %d, want 1", got)
	}
	if store.User() != nil || store.AccessToken() != "" {
		t.Error("credentials not cleared")
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	t.Parallel()
	srv := &authedServer{goodToken: "good", newToken: "good", refreshFails: true}
	client, store := newAuthedClient(t, srv)
	store.SaveTokens(creds.TokenPair{AccessToken: "stale", RefreshToken: "ref-1"})

	var invalidated atomic.Int32
	client.OnSessionInvalidated = func() { invalidated.Add(1) }

	err := client.GetJSON(context.Background(), "/round1/summary", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "invalid refresh token" {
		t.Errorf("error = %v, want refresh rejection to surface", err)
	}
	if got := srv.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := invalidated.Load(); got != 1 {
		t.Errorf("invalidated callbacks = %d, want 1", got)
	}
	if store.AccessToken() != "" || store.RefreshToken() != "" {
		t.Error("tokens not cleared after refresh failure")
	}
}

func TestPersistent401DoesNotLoop(t *testing.T) {
	t.Parallel()
	// The server "successfully" rotates tokens but keeps rejecting the
	// protected call; the per-request retry marker must stop a second
	// refresh cycle for the same request.
	var protectedCalls atomic.Int32
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "rotated"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		protectedCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"still unauthorized"}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	store := creds.NewMemory()
	store.SaveTokens(creds.TokenPair{AccessToken: "stale", RefreshToken: "ref-1"})
	client, err := api.New(ts.URL, store)
	if err != nil {
		t.Fatal(err)
	}

	if err := client.GetJSON(context.Background(), "/round1/summary", nil); err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := protectedCalls.Load(); got != 2 {
		t.Errorf("protected calls = %d, want 2 (original + single retry)", got)
	}
}

func TestAuthEndpointsExemptFromRefresh(t *testing.T) {
	t.Parallel()
	srv := &authedServer{goodToken: "good", newToken: "good"}
	client, store := newAuthedClient(t, srv)
	store.SaveTokens(creds.TokenPair{AccessToken: "stale", RefreshToken: "ref-1"})

	// A 401 from login itself must surface directly, not start a refresh.
	err := client.PostJSON(context.Background(), "/auth/login", map[string]string{"email": "x"}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := srv.refreshCalls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0", got)
	}
}

func TestManualRefreshSharesGate(t *testing.T) {
	t.Parallel()
	srv := &authedServer{goodToken: "fresh", newToken: "fresh"}
	client, store := newAuthedClient(t, srv)
	store.SaveTokens(creds.TokenPair{RefreshToken: "ref-1"})

	pair, err := client.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.AccessToken != "fresh" {
		t.Errorf("AccessToken = %q, want fresh", pair.AccessToken)
	}
	if got := store.RefreshToken(); got != "ref-next" {
		t.Errorf("stored refresh token = %q, want ref-next", got)
	}
}
