package module

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"

	"github.com/monarchkernel/monarch"
	"github.com/monarchkernel/monarch/kernel"
)

// Logger is the minimal logging surface Library depends on.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Library loads module images, topologically orders their initialization
// by declared dependency, and tears them down in reverse on unload.
// Construct with NewLibrary.
type Library struct {
	k           *kernel.Kernel
	loader      Loader
	searchPaths []string
	log         Logger

	mu        sync.Mutex
	modules   map[string]*Record
	images    map[string]Image
	loadOrder []string
}

// NewLibrary returns a Library that loads module images via loader from
// searchPaths.
func NewLibrary(k *kernel.Kernel, loader Loader, searchPaths []string, logger Logger) *Library {
	return &Library{
		k:           k,
		loader:      loader,
		searchPaths: searchPaths,
		log:         logger,
		modules:     make(map[string]*Record),
		images:      make(map[string]Image),
	}
}

// LoadModule opens the image at filename, initializes it, and records it
// as loaded. It fails if a module of the same name is already loaded.
func (l *Library) LoadModule(filename string) error {
	img, err := l.loader.Load(filename)
	if err != nil {
		return err
	}
	return l.initialize(img)
}

// LoadModules scans searchPaths for candidate images, topologically
// resolves their declared dependencies via an iterative fixed-point pass,
// and initializes them in that order. Candidates already loaded (a
// rescan triggered by Watch will keep finding them on disk) are skipped
// rather than re-initialized — this is what lets Watch pick up a single
// newly-dropped module image without tripping over the ones already
// running. If a pass makes no progress, the remaining modules' unresolved
// dependencies are reported as a single error and every module
// initialized so far in this call is rolled back in reverse order.
func (l *Library) LoadModules(ctx context.Context) error {
	candidates, err := l.scanCandidates()
	if err != nil {
		return err
	}

	l.mu.Lock()
	pending := make(map[string]Image, len(candidates))
	for _, img := range candidates {
		if _, loaded := l.modules[img.Name()]; loaded {
			continue
		}
		pending[img.Name()] = img
	}
	l.mu.Unlock()

	var initializedThisBatch []string

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			l.rollback(initializedThisBatch)
			return ctx.Err()
		default:
		}

		progressed := false
		for _, name := range sortedKeys(pending) {
			img := pending[name]
			if !l.dependenciesSatisfied(img, pending) {
				continue
			}
			if err := l.initialize(img); err != nil {
				l.rollback(initializedThisBatch)
				return err
			}
			initializedThisBatch = append(initializedThisBatch, name)
			delete(pending, name)
			progressed = true
		}

		if !progressed {
			err := fmt.Errorf("%w: unresolved dependencies among modules: %s",
				monarch.ErrDependencyViolation, joinSorted(pending))
			l.rollback(initializedThisBatch)
			return err
		}
	}
	return nil
}

// dependenciesSatisfied reports whether every non-optional dependency of
// img is already loaded at a version satisfying its declared range;
// optional dependencies never block readiness, whether or not they appear
// elsewhere in pending.
func (l *Library) dependenciesSatisfied(img Image, pending map[string]Image) bool {
	for _, dep := range img.Dependencies() {
		if dep.Optional {
			continue
		}
		l.mu.Lock()
		rec, loaded := l.modules[dep.Name]
		l.mu.Unlock()
		if !loaded {
			return false
		}
		if ok, err := versionSatisfies(rec.Version, dep.VersionRange); err != nil || !ok {
			return false
		}
	}
	_ = pending // deps still pending (or missing outright) both read as "not yet satisfied"
	return true
}

// versionSatisfies reports whether version satisfies a Masterminds/semver
// constraint string. An empty constraint matches any version.
func versionSatisfies(version, constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("%w: parsing module version %q: %v", monarch.ErrDependencyViolation, version, err)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("%w: parsing version constraint %q: %v", monarch.ErrDependencyViolation, constraint, err)
	}
	return c.Check(v), nil
}

// initialize runs img's Initialize/CreateInterface and records it.
func (l *Library) initialize(img Image) error {
	name := img.Name()

	l.mu.Lock()
	if _, exists := l.modules[name]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: module %s already loaded", monarch.ErrDependencyViolation, name)
	}
	l.mu.Unlock()

	if err := img.Initialize(l.k); err != nil {
		return fmt.Errorf("%w: initializing module %s: %v", monarch.ErrExternalFailure, name, err)
	}
	iface, err := img.CreateInterface(l.k)
	if err != nil {
		return fmt.Errorf("%w: creating interface for module %s: %v", monarch.ErrExternalFailure, name, err)
	}

	rec := &Record{
		Name:         name,
		Version:      img.Version(),
		Dependencies: img.Dependencies(),
		Interface:    iface,
	}

	l.mu.Lock()
	l.modules[name] = rec
	l.images[name] = img
	l.loadOrder = append(l.loadOrder, name)
	l.mu.Unlock()

	if l.log != nil {
		l.log.Info("module loaded", "name", name, "version", rec.Version)
	}
	return nil
}

// UnloadAll unloads every currently loaded module in reverse load order,
// which always satisfies each module's no-dependents-loaded precondition
// since dependents load after their dependencies. It aggregates, logs, and
// returns any cleanup errors; teardown does not abort on one module's
// failure.
func (l *Library) UnloadAll() error {
	l.mu.Lock()
	order := append([]string(nil), l.loadOrder...)
	l.mu.Unlock()

	var errs error
	for i := len(order) - 1; i >= 0; i-- {
		if err := l.UnloadModule(order[i]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// rollback unloads every named module in reverse order, aggregating any
// cleanup errors; teardown does not abort partway through on an error.
func (l *Library) rollback(order []string) {
	var errs error
	for i := len(order) - 1; i >= 0; i-- {
		if err := l.UnloadModule(order[i]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil && l.log != nil {
		l.log.Error("errors rolling back partial module load", "error", errs)
	}
}

// UnloadModule calls the module's cleanup, removes its image, and deletes
// its record. It fails with ErrDependencyViolation if another loaded
// module still declares name as a dependency.
func (l *Library) UnloadModule(name string) error {
	l.mu.Lock()
	for _, rec := range l.modules {
		for _, dep := range rec.Dependencies {
			if dep.Name == name {
				l.mu.Unlock()
				return fmt.Errorf("%w: module %s is depended upon by %s", monarch.ErrDependencyViolation, name, rec.Name)
			}
		}
	}
	img, ok := l.images[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: module %s not loaded", monarch.ErrDependencyViolation, name)
	}
	l.mu.Unlock()

	cleanupErr := img.Cleanup(l.k)
	if cleanupErr != nil && l.log != nil {
		l.log.Warn("module cleanup failed", "name", name, "error", cleanupErr)
	}

	l.mu.Lock()
	delete(l.modules, name)
	delete(l.images, name)
	for i, n := range l.loadOrder {
		if n == name {
			l.loadOrder = append(l.loadOrder[:i], l.loadOrder[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	if cleanupErr != nil {
		return fmt.Errorf("%w: cleaning up module %s: %v", monarch.ErrExternalFailure, name, cleanupErr)
	}
	return nil
}

// GetModuleAPI returns the exported interface of the loaded module name.
func (l *Library) GetModuleAPI(name string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.modules[name]
	if !ok {
		return nil, false
	}
	return rec.Interface, true
}

// GetModuleAPIByType returns the exported interface of the first loaded
// module whose interface is assignable to t.
func (l *Library) GetModuleAPIByType(t reflect.Type) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, name := range l.loadOrder {
		rec := l.modules[name]
		if rec.Interface == nil {
			continue
		}
		rt := reflect.TypeOf(rec.Interface)
		if rt.AssignableTo(t) || (t.Kind() == reflect.Interface && rt.Implements(t)) {
			return rec.Interface, true
		}
	}
	return nil, false
}

// Watch rescans searchPaths and runs LoadModules whenever fsnotify
// reports a change under them, until ctx is done.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: creating module path watcher: %v", monarch.ErrExternalFailure, err)
	}
	defer watcher.Close()

	for _, p := range l.searchPaths {
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("%w: watching module path %s: %v", monarch.ErrExternalFailure, p, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if l.log != nil {
				l.log.Warn("module path watch error", "error", err)
			}
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if err := l.LoadModules(ctx); err != nil && l.log != nil {
				l.log.Warn("rescanning module path failed", "error", err)
			}
		}
	}
}

// scanCandidates enumerates module images under searchPaths without
// initializing them.
func (l *Library) scanCandidates() ([]Image, error) {
	var images []Image
	for _, dir := range l.searchPaths {
		matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
		if err != nil {
			return nil, fmt.Errorf("%w: scanning module path %s: %v", monarch.ErrExternalFailure, dir, err)
		}
		for _, path := range matches {
			img, err := l.loader.Load(path)
			if err != nil {
				return nil, err
			}
			images = append(images, img)
		}
	}
	return images, nil
}

func sortedKeys(m map[string]Image) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinSorted(m map[string]Image) string {
	keys := sortedKeys(m)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += k
	}
	return out
}
