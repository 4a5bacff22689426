// Package collab specifies the external-collaborator boundary named in
// spec §1's "OUT OF SCOPE" list: concrete HTTP/SMTP/SSL, SQL, and I/O
// implementations never live in this repository — only the interfaces the
// kernel consumes. MicroKernel wires one concrete Server (chi-backed, for
// introspection) by default; Database and MailTransport are consumed only
// through their interfaces.
package collab

import (
	"context"
	"net/http"
)

// Server is the HTTP collaborator the kernel consumes for administrative
// and introspection endpoints (module/fiber/event status). Concrete wire
// handling (TLS termination, HTTP semantics) belongs entirely to the
// implementation; the kernel only starts and stops it.
type Server interface {
	// Handle registers a handler for pattern. In ChiServer, which uses
	// chi's Handle, a later registration for the same pattern replaces
	// the earlier one.
	Handle(pattern string, handler http.Handler)
	// ListenAndServe starts serving on addr. It blocks until the server
	// stops or ctx is done.
	ListenAndServe(ctx context.Context, addr string) error
	// Shutdown gracefully stops the server, waiting for in-flight
	// requests to complete or ctx to expire.
	Shutdown(ctx context.Context) error
}

// Row is one row of a Database query result, column name to value.
type Row map[string]any

// Database is the SQL collaborator named in spec §1's out-of-scope list.
// No driver binding lives in this repository; callers inject a concrete
// implementation (e.g. database/sql-backed) that satisfies this
// interface.
type Database interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Exec(ctx context.Context, query string, args ...any) (rowsAffected int64, err error)
	Close() error
}

// Message is an outbound mail message.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// MailTransport is the SMTP collaborator named in spec §1's out-of-scope
// list. No wire-format or TLS handling lives in this repository.
type MailTransport interface {
	Send(ctx context.Context, msg Message) error
}
