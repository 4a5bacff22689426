package module

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/monarchkernel/monarch"
	"github.com/monarchkernel/monarch/kernel"
)

type fakeImage struct {
	name, version string
	deps          []Dependency
	initErr       error
	cleanupErr    error
	initialized   bool
}

func (f *fakeImage) Name() string             { return f.name }
func (f *fakeImage) Version() string          { return f.version }
func (f *fakeImage) Dependencies() []Dependency { return f.deps }
func (f *fakeImage) CreateInterface(k *kernel.Kernel) (any, error) {
	return f.name + "-api", nil
}
func (f *fakeImage) Initialize(k *kernel.Kernel) error {
	f.initialized = true
	return f.initErr
}
func (f *fakeImage) Cleanup(k *kernel.Kernel) error { return f.cleanupErr }

type fakeLoader struct {
	images map[string]Image
}

// Load matches by base name, so it accepts both a bare filename passed
// directly to LoadModule and a resolved path handed to it by
// scanCandidates.
func (l *fakeLoader) Load(path string) (Image, error) {
	img, ok := l.images[filepath.Base(path)]
	if !ok {
		return nil, errors.New("no such fake image: " + path)
	}
	return img, nil
}

// newTestLibrary wires a Library whose searchPaths is a single real
// directory containing one empty placeholder file per named image, so
// scanCandidates' filepath.Glob actually finds them — LoadModules globs
// real directories, it doesn't take image names as paths directly.
func newTestLibrary(t *testing.T, images map[string]Image) (*Library, *kernel.Kernel) {
	t.Helper()
	lib, k, _ := newTestLibraryWithDir(t, images)
	return lib, k
}

// newTestLibraryWithDir is newTestLibrary plus the backing directory, for
// tests that need to drop in additional image files after construction
// (simulating the file appearing mid-Watch).
func newTestLibraryWithDir(t *testing.T, images map[string]Image) (*Library, *kernel.Kernel, string) {
	t.Helper()
	k := kernel.New(kernel.Config{}, nil)
	dir := t.TempDir()
	for name := range images {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	loader := &fakeLoader{images: images}
	return NewLibrary(k, loader, []string{dir}, nil), k, dir
}

func TestLoadModuleInitializesAndRecordsInterface(t *testing.T) {
	img := &fakeImage{name: "cache", version: "1.0.0"}
	lib, _ := newTestLibrary(t, map[string]Image{"cache.so": img})

	if err := lib.LoadModule("cache.so"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if !img.initialized {
		t.Fatal("module was not initialized")
	}
	api, ok := lib.GetModuleAPI("cache")
	if !ok || api != "cache-api" {
		t.Fatalf("GetModuleAPI = %v, %v; want cache-api, true", api, ok)
	}
}

func TestLoadModuleRejectsDuplicateName(t *testing.T) {
	img := &fakeImage{name: "cache", version: "1.0.0"}
	lib, _ := newTestLibrary(t, map[string]Image{"cache.so": img})

	_ = lib.LoadModule("cache.so")
	if err := lib.initialize(img); !errors.Is(err, monarch.ErrDependencyViolation) {
		t.Fatalf("duplicate load err = %v, want ErrDependencyViolation", err)
	}
}

func TestUnloadModuleBlockedByDependent(t *testing.T) {
	base := &fakeImage{name: "db", version: "1.0.0"}
	dependent := &fakeImage{name: "api", version: "1.0.0", deps: []Dependency{{Name: "db"}}}
	lib, _ := newTestLibrary(t, nil)

	_ = lib.initialize(base)
	_ = lib.initialize(dependent)

	if err := lib.UnloadModule("db"); !errors.Is(err, monarch.ErrDependencyViolation) {
		t.Fatalf("UnloadModule(db) err = %v, want ErrDependencyViolation", err)
	}
	if err := lib.UnloadModule("api"); err != nil {
		t.Fatalf("UnloadModule(api): %v", err)
	}
	if err := lib.UnloadModule("db"); err != nil {
		t.Fatalf("UnloadModule(db) after dependent removed: %v", err)
	}
}

func TestDependenciesSatisfiedIgnoresOptional(t *testing.T) {
	lib, _ := newTestLibrary(t, nil)
	img := &fakeImage{name: "api", deps: []Dependency{{Name: "telemetry", Optional: true}}}

	if !lib.dependenciesSatisfied(img, map[string]Image{}) {
		t.Fatal("optional dependency should not block readiness")
	}
}

func TestInitializeFailurePropagatesExternalFailure(t *testing.T) {
	img := &fakeImage{name: "broken", initErr: errors.New("boom")}
	lib, _ := newTestLibrary(t, nil)

	if err := lib.initialize(img); !errors.Is(err, monarch.ErrExternalFailure) {
		t.Fatalf("err = %v, want ErrExternalFailure", err)
	}
}

func TestDependenciesSatisfiedChecksVersionRange(t *testing.T) {
	lib, _ := newTestLibrary(t, nil)
	_ = lib.initialize(&fakeImage{name: "db", version: "1.2.0"})

	tooOld := &fakeImage{name: "api", deps: []Dependency{{Name: "db", VersionRange: ">=2.0.0"}}}
	inRange := &fakeImage{name: "worker", deps: []Dependency{{Name: "db", VersionRange: ">=1.0.0 <2.0.0"}}}

	if lib.dependenciesSatisfied(tooOld, map[string]Image{}) {
		t.Fatal("expected version range >=2.0.0 to reject db@1.2.0")
	}
	if !lib.dependenciesSatisfied(inRange, map[string]Image{}) {
		t.Fatal("expected version range >=1.0.0 <2.0.0 to accept db@1.2.0")
	}
}

func TestLoadModulesRollsBackOnUnresolvedDependency(t *testing.T) {
	ok := &fakeImage{name: "a"}
	stuck := &fakeImage{name: "b", deps: []Dependency{{Name: "missing"}}}
	lib, _ := newTestLibrary(t, map[string]Image{"a.so": ok, "b.so": stuck})

	err := lib.LoadModules(context.Background())
	if !errors.Is(err, monarch.ErrDependencyViolation) {
		t.Fatalf("LoadModules err = %v, want ErrDependencyViolation", err)
	}
	if _, found := lib.GetModuleAPI("a"); found {
		t.Fatal("module a should have been rolled back")
	}
}

// TestLoadModulesRescanSkipsAlreadyLoaded exercises the fsnotify-driven
// rescan path Watch relies on: a second LoadModules call, after a new
// image has appeared alongside ones already loaded, must pick up only
// the new one rather than tripping over the already-loaded names' own
// duplicate-name error.
func TestLoadModulesRescanSkipsAlreadyLoaded(t *testing.T) {
	cache := &fakeImage{name: "cache", version: "1.0.0"}
	lib, _, dir := newTestLibraryWithDir(t, map[string]Image{"cache.so": cache})

	if err := lib.LoadModules(context.Background()); err != nil {
		t.Fatalf("initial LoadModules: %v", err)
	}

	worker := &fakeImage{name: "worker", version: "1.0.0"}
	lib.loader.(*fakeLoader).images["worker.so"] = worker
	if err := os.WriteFile(filepath.Join(dir, "worker.so"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := lib.LoadModules(context.Background()); err != nil {
		t.Fatalf("rescan LoadModules: %v", err)
	}

	if _, found := lib.GetModuleAPI("cache"); !found {
		t.Fatal("previously loaded module cache should still be loaded")
	}
	if !worker.initialized {
		t.Fatal("newly discovered module worker should have been initialized")
	}
	if _, found := lib.GetModuleAPI("worker"); !found {
		t.Fatal("newly discovered module worker should be loaded")
	}
}
