package redfish

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSessionManagerCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" && r.URL.Path == "/redfish/v1/SessionService/Sessions" {
			w.Header().Set("X-Auth-Token", "test-token-123")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"@odata.id": "/redfish/v1/SessionService/Sessions/1", "Id": "1"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL})
	info, err := client.SessionManager.CreateSession(context.Background(), "root", "0penBmc")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if info.Token != "test-token-123" {
		t.Errorf("Expected token 'test-token-123', got '%s'", info.Token)
	}
	if info.SessionURI != "/redfish/v1/SessionService/Sessions/1" {
		t.Errorf("Expected sessionURI '/redfish/v1/SessionService/Sessions/1', got '%s'", info.SessionURI)
	}
	if info.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", info.Attempts)
	}
}

func TestSessionManagerStatusOKWithLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Auth-Token", "tok")
		w.Header().Set("Location", "/redfish/v1/SessionService/Sessions/loc")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL})
	info, err := client.SessionManager.CreateSessionOnce(context.Background(), "root", "0penBmc")
	if err != nil {
		t.Fatalf("CreateSessionOnce failed: %v", err)
	}
	if info.SessionURI != "/redfish/v1/SessionService/Sessions/loc" {
		t.Errorf("Expected Location header to be used as session URI, got '%s'", info.SessionURI)
	}
}

func TestSessionManagerMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"@odata.id": "/redfish/v1/SessionService/Sessions/1"}`))
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL})
	_, err := client.SessionManager.CreateSessionOnce(context.Background(), "root", "0penBmc")
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}
}

func TestSessionManagerRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL})
	_, err := client.SessionManager.CreateSessionOnce(context.Background(), "root", "invalid")
	if !IsSessionAuthError(err) {
		t.Fatalf("Expected SessionAuthError, got %v", err)
	}
	if StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("Expected 401 to be reachable through the error chain, got %d", StatusCode(err))
	}
}

func TestSessionManagerRetriesTransientFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("X-Auth-Token", "test-token")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"@odata.id": "/redfish/v1/SessionService/Sessions/3"}`))
	}))
	defer server.Close()

	var observed []int
	client := NewClient(Options{
		Endpoint: server.URL,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			Delay:       time.Millisecond,
			OnAttempt:   func(attempt int, err error) { observed = append(observed, attempt) },
		},
	})

	info, err := client.SessionManager.CreateSession(context.Background(), "root", "0penBmc")
	if err != nil {
		t.Fatalf("CreateSession with retry failed: %v", err)
	}
	if info.Attempts != 3 {
		t.Errorf("Expected success on attempt 3, got %d", info.Attempts)
	}
	if len(observed) != 3 {
		t.Errorf("Expected OnAttempt to be called 3 times, got %v", observed)
	}
}

func TestSessionManagerRetryExhausted(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Options{
		Endpoint: server.URL,
		Retry:    RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	})

	_, err := client.SessionManager.CreateSession(context.Background(), "root", "wrong")
	if !IsRetryExhaustedError(err) {
		t.Fatalf("Expected RetryExhaustedError, got %v", err)
	}
	var exhausted *RetryExhaustedError
	errors.As(err, &exhausted)
	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", exhausted.Attempts)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("Expected exactly 3 requests, got %d", got)
	}
	if !IsSessionAuthError(err) {
		t.Error("Expected last cause to be a SessionAuthError")
	}
}

func TestSessionManagerRetryHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Options{
		Endpoint: server.URL,
		Retry:    RetryPolicy{MaxAttempts: 5, Delay: time.Hour},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.SessionManager.CreateSession(ctx, "root", "0penBmc")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("CreateSession did not stop waiting on cancellation")
	}
}

func TestSessionManagerDeleteSession(t *testing.T) {
	sessionDeleted := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "DELETE" && r.URL.Path == "/redfish/v1/SessionService/Sessions/1" && r.Header.Get("X-Auth-Token") == "test-token" {
			sessionDeleted = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL})
	err := client.SessionManager.DeleteSession(context.Background(), &SessionInfo{
		Token:      "test-token",
		SessionURI: "/redfish/v1/SessionService/Sessions/1",
	})
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if !sessionDeleted {
		t.Error("Session was not deleted")
	}

	err = client.SessionManager.DeleteSession(context.Background(), &SessionInfo{Token: "other", SessionURI: "/redfish/v1/SessionService/Sessions/1"})
	if StatusCode(err) != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", err)
	}

	if err := client.SessionManager.DeleteSession(context.Background(), &SessionInfo{Token: "t"}); err == nil {
		t.Error("Expected error for empty session URI")
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), 0); err != nil {
		t.Fatalf("zero delay: %v", err)
	}
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("short delay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("SleepContext did not return on cancellation")
	}
}
