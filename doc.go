// Package monarch is a general-purpose systems platform: a single process
// hosting a dynamically loaded set of user modules, coordinating concurrent
// work through an operation/fiber scheduler, exchanging hierarchical events,
// and persisting data through pluggable, externally supplied collaborators.
//
// The hardest engineering lives in the execution kernel, split across six
// packages that share the same state/kernel substrate and mutually depend on
// each other at runtime:
//
//   - monarch/state:      a typed, concurrent key/value store guarding
//     operation admission.
//   - monarch/dispatcher:  a guarded operation dispatcher running
//     precondition-gated units of work on a thread pool.
//   - monarch/fiber:       a fiber scheduler multiplexing cooperative
//     user-mode coroutines onto dispatcher operations.
//   - monarch/event:       a hierarchical event controller fanning posted
//     events out to observers through the dispatcher.
//   - monarch/module:      a module library loading, ordering, and tearing
//     down plugin modules.
//   - monarch/kernel:      the Kernel and MicroKernel facades tying the
//     above together into a single start/stop lifecycle.
//
// Concrete I/O, wire protocols, crypto, compression, and SQL drivers are
// treated as external collaborators: monarch/collab specifies only the
// interfaces the kernel consumes, never their wire formats.
package monarch
