// Package monarch hosts the error taxonomy shared across the kernel
// packages (state, dispatcher, kernel, fiber, event, module). Each
// sentinel names a failure kind from the spec, not a call site; wrap with
// fmt.Errorf("%w: ...") for context and inspect with errors.Is/errors.As.
package monarch

import "errors"

var (
	// ErrUnsupportedOperation marks a guard that permanently rejects an
	// operation; the operation is marked canceled.
	ErrUnsupportedOperation = errors.New("monarch: unsupported operation")

	// ErrDependencyViolation marks a module load with a missing, cyclic,
	// or version-mismatched dependency, or an unload blocked by a
	// dependent that is still loaded.
	ErrDependencyViolation = errors.New("monarch: dependency violation")

	// ErrResourceExhaustion marks fiber stack allocation failure or
	// dispatcher thread-pool exhaustion.
	ErrResourceExhaustion = errors.New("monarch: resource exhaustion")

	// ErrCancellation marks an operation or fiber that was externally
	// interrupted before completing normally.
	ErrCancellation = errors.New("monarch: canceled")

	// ErrProtocolMisuse marks a method called in the wrong lifecycle
	// state (e.g. Stop before Start).
	ErrProtocolMisuse = errors.New("monarch: protocol misuse")

	// ErrExternalFailure wraps an error surfaced by a collaborator (I/O,
	// a loaded module image, a database driver).
	ErrExternalFailure = errors.New("monarch: external failure")
)
