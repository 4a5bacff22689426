package collab

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ChiServer is the default Server MicroKernel composes when the caller
// doesn't inject one: a chi.Mux with the standard request-id/real-ip/
// logger/recoverer middleware stack, wrapped in an http.Server for
// graceful shutdown.
type ChiServer struct {
	router *chi.Mux
	srv    *http.Server
}

// NewChiServer returns a ChiServer with the default middleware stack
// applied.
func NewChiServer() *ChiServer {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return &ChiServer{router: r}
}

// Router returns the underlying chi.Router, for callers that want direct
// access to chi's routing API (Route, Group, With, ...).
func (s *ChiServer) Router() chi.Router { return s.router }

// Handle registers handler for pattern on the chi router.
func (s *ChiServer) Handle(pattern string, handler http.Handler) {
	s.router.Handle(pattern, handler)
}

// ListenAndServe starts serving on addr and blocks until the server stops
// or ctx is done.
func (s *ChiServer) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server.
func (s *ChiServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
