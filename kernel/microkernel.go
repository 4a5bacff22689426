package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/monarchkernel/monarch"
	"github.com/monarchkernel/monarch/collab"
	"github.com/monarchkernel/monarch/config"
	"github.com/monarchkernel/monarch/event"
	"github.com/monarchkernel/monarch/fiber"
	"github.com/monarchkernel/monarch/module"
)

// MicroKernelConfig configures a MicroKernel. MaxThreadCount, FiberOps and
// Housekeeping get a MicroKernel-supplied default when left at their zero
// value; an empty ModulePath skips module loading, an empty ServerAddr
// leaves the server unstarted, and a nil ConfigManager stays nil.
type MicroKernelConfig struct {
	ModulePath     []string
	MaxThreadCount int             // default 4
	FiberOps       int             // default MaxThreadCount
	ConfigManager  config.Provider // optional; no default is built when nil
	ServerAddr     string          // address the collab.Server listens on; not started when empty
	Housekeeping   string          // cron expression for the housekeeping daemon; default "@every 1m"
}

// Option configures a MicroKernel at construction, overriding a default
// collaborator.
type Option func(*MicroKernel)

// WithServer overrides the default chi-backed collab.Server.
func WithServer(s collab.Server) Option {
	return func(mk *MicroKernel) { mk.server = s }
}

// WithModuleLoader overrides the default plugin.Open-backed module.Loader.
func WithModuleLoader(l module.Loader) Option {
	return func(mk *MicroKernel) { mk.loader = l }
}

// MicroKernel is the facade tying State, the OperationDispatcher, the
// FiberScheduler, the FiberMessageCenter, the EventController, and the
// ModuleLibrary into a single start/stop lifecycle, per spec §4.8.
type MicroKernel struct {
	*Kernel

	cfg    MicroKernelConfig
	log    Logger
	server collab.Server
	loader module.Loader

	scheduler     *fiber.Scheduler
	messageCenter *fiber.MessageCenter
	eventCtrl     *event.Controller
	moduleLibrary *module.Library
	cronDaemon    *cron.Cron
	watchCancel   context.CancelFunc
	serverCancel  context.CancelFunc
}

// NewMicroKernel constructs a MicroKernel. Start must be called before any
// component is usable.
func NewMicroKernel(cfg MicroKernelConfig, logger Logger, opts ...Option) *MicroKernel {
	mk := &MicroKernel{cfg: cfg, log: logger}
	for _, opt := range opts {
		opt(mk)
	}
	return mk
}

// Start composes defaults for any collaborator not injected via Option
// (module loader, chi-backed server), constructs the Kernel and its
// fiber scheduler / message center / event controller / module library,
// starts the dispatcher pool and fiber scheduler, starts a cron-driven
// housekeeping daemon, and runs an initial module load pass.
func (mk *MicroKernel) Start(ctx context.Context) error {
	poolSize := mk.cfg.MaxThreadCount
	if poolSize <= 0 {
		poolSize = 4
	}
	mk.Kernel = New(Config{MaxThreadCount: poolSize}, mk.log)

	fiberOps := mk.cfg.FiberOps
	if fiberOps <= 0 {
		fiberOps = poolSize
	}
	mk.scheduler = fiber.NewScheduler(mk.Kernel, fiberOps)
	mk.scheduler.Start()
	mk.messageCenter = mk.scheduler.MessageCenter()

	mk.eventCtrl = event.NewController(mk.Kernel)

	if mk.loader == nil {
		mk.loader = module.PluginLoader{}
	}
	mk.moduleLibrary = module.NewLibrary(mk.Kernel, mk.loader, mk.cfg.ModulePath, mk.log)

	if mk.server == nil {
		mk.server = collab.NewChiServer()
	}
	mk.server.Handle("/state", http.HandlerFunc(mk.serveStateSnapshot))
	if mk.cfg.ServerAddr != "" {
		serveCtx, cancel := context.WithCancel(context.Background())
		mk.serverCancel = cancel
		go func() {
			if err := mk.server.ListenAndServe(serveCtx, mk.cfg.ServerAddr); err != nil && mk.log != nil {
				mk.log.Error("server stopped", "error", err)
			}
		}()
	}

	mk.cronDaemon = cron.New()
	housekeeping := mk.cfg.Housekeeping
	if housekeeping == "" {
		housekeeping = "@every 1m"
	}
	if _, err := mk.cronDaemon.AddFunc(housekeeping, mk.houseKeep); err != nil {
		return fmt.Errorf("%w: scheduling housekeeping %q: %v", monarch.ErrProtocolMisuse, housekeeping, err)
	}
	mk.cronDaemon.Start()

	if len(mk.cfg.ModulePath) > 0 {
		if err := mk.moduleLibrary.LoadModules(ctx); err != nil {
			return err
		}
		watchCtx, cancel := context.WithCancel(context.Background())
		mk.watchCancel = cancel
		go func() {
			if err := mk.moduleLibrary.Watch(watchCtx); err != nil && mk.log != nil {
				mk.log.Warn("module path watch stopped", "error", err)
			}
		}()
	}

	return nil
}

// Scheduler returns the MicroKernel's fiber scheduler.
func (mk *MicroKernel) Scheduler() *fiber.Scheduler { return mk.scheduler }

// MessageCenter returns the MicroKernel's fiber message center.
func (mk *MicroKernel) MessageCenter() *fiber.MessageCenter { return mk.messageCenter }

// EventController returns the MicroKernel's event controller.
func (mk *MicroKernel) EventController() *event.Controller { return mk.eventCtrl }

// ModuleLibrary returns the MicroKernel's module library.
func (mk *MicroKernel) ModuleLibrary() *module.Library { return mk.moduleLibrary }

// ConfigManager returns the config.Provider supplied via
// MicroKernelConfig.ConfigManager, or nil if none was injected.
func (mk *MicroKernel) ConfigManager() config.Provider { return mk.cfg.ConfigManager }

// Server returns the MicroKernel's HTTP collaborator.
func (mk *MicroKernel) Server() collab.Server { return mk.server }

// serveStateSnapshot serves the kernel's entire State as a JSON object,
// for operational introspection. It reads State.Snapshot() rather than
// name-by-name Get calls, since an HTTP handler has no reason to hold the
// dispatcher's coordination lock a guard would.
func (mk *MicroKernel) serveStateSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(mk.State().Snapshot()); err != nil && mk.log != nil {
		mk.log.Warn("encoding state snapshot failed", "error", err)
	}
}

// houseKeep is the periodic housekeeping tick: today it only logs a
// heartbeat, but it is the seam a future reaper (e.g. expiring stale
// fiber message queues) would hang off.
func (mk *MicroKernel) houseKeep() {
	if mk.log != nil {
		mk.log.Debug("housekeeping tick", "time", time.Now())
	}
}

// Stop reverses Start: cancel the module-path watch and stop the cron
// daemon, then unload modules, stop the server, stop the fiber scheduler,
// and drain the dispatcher.
func (mk *MicroKernel) Stop(ctx context.Context) error {
	if mk.watchCancel != nil {
		mk.watchCancel()
	}
	if mk.cronDaemon != nil {
		cronStopCtx := mk.cronDaemon.Stop()
		select {
		case <-cronStopCtx.Done():
		case <-ctx.Done():
		}
	}

	if mk.moduleLibrary != nil {
		if err := mk.moduleLibrary.UnloadAll(); err != nil && mk.log != nil {
			mk.log.Warn("errors unloading modules during shutdown", "error", err)
		}
	}

	if mk.server != nil {
		if err := mk.server.Shutdown(ctx); err != nil && mk.log != nil {
			mk.log.Warn("error shutting down server", "error", err)
		}
	}
	if mk.serverCancel != nil {
		mk.serverCancel()
	}

	if mk.scheduler != nil {
		mk.scheduler.Stop()
	}

	if mk.Kernel != nil {
		return mk.Kernel.Terminate(ctx)
	}
	return nil
}
