package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChiServerHandleRoutesRequests(t *testing.T) {
	s := NewChiServer()
	s.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestChiServerListenAndServeStopsOnContextCancel(t *testing.T) {
	s := NewChiServer()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	// give the listener goroutine a moment to call http.Server.ListenAndServe
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ListenAndServe returned %v, want nil after Shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after context cancellation")
	}
}

func TestChiServerShutdownBeforeStartIsNoOp(t *testing.T) {
	s := NewChiServer()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on an unstarted server: %v", err)
	}
}
