// Package module implements the ModuleLibrary: it loads plugin module
// images from a search path, topologically orders their initialization by
// declared dependency, and tears them down in reverse on unload.
package module

import (
	"github.com/monarchkernel/monarch/kernel"
)

// Dependency names another module this Image requires, optionally within
// a semver version range, and optionally marking it as absent-tolerant.
type Dependency struct {
	Name         string
	VersionRange string
	Optional     bool
}

// Record is the Library's bookkeeping entry for one loaded module: its
// identity, declared dependencies, and exported interface, in the order
// the Library successfully initialized it.
type Record struct {
	Name, Version string
	Dependencies  []Dependency
	Interface     any
}

// Image is the external-collaborator boundary: a loaded module image,
// however it was produced (Go plugin, statically linked, or a test
// double). The Library never depends on *how* an Image was obtained —
// only on this interface.
type Image interface {
	Name() string
	Version() string
	Dependencies() []Dependency
	CreateInterface(k *kernel.Kernel) (any, error)
	Initialize(k *kernel.Kernel) error
	Cleanup(k *kernel.Kernel) error
}

// Loader opens a module image from a filesystem path. The default
// implementation wraps Go's plugin package; tests substitute an in-memory
// Loader.
type Loader interface {
	Load(path string) (Image, error)
}
