// Package daemon wires the registry, scheduler, store, and HTTP API into a
// long-running orchestrator process.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ade/warden/internal/config"
	"github.com/ade/warden/internal/httpapi"
	"github.com/ade/warden/internal/plan"
	"github.com/ade/warden/internal/registry"
	"github.com/ade/warden/internal/scheduler"
	"github.com/ade/warden/internal/store"
)

// Daemon manages the orchestrator lifecycle
type Daemon struct {
	cfg     *config.Config
	pidFile string
	log     zerolog.Logger

	reg   *registry.Registry
	sched *scheduler.Scheduler
	db    *store.Store

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	plan *plan.Plan
}

// New creates a daemon from the given configuration
func New(cfg *config.Config, log zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:     cfg,
		pidFile: filepath.Join(cfg.Storage.DataDir, "warden.pid"),
		log:     log,
	}
}

// Start begins daemon operation and blocks until shutdown
func (d *Daemon) Start() error {
	if err := os.MkdirAll(d.cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	running, pid, err := CheckExistingDaemon(d.pidFile)
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	if err := WritePID(d.pidFile, os.Getpid()); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer RemovePID(d.pidFile)

	pl, err := plan.Load(d.cfg.Daemon.PlanPath)
	if err != nil {
		return err
	}
	d.plan = pl

	db, err := store.Open(filepath.Join(d.cfg.Storage.DataDir, "warden.db"))
	if err != nil {
		return err
	}
	d.db = db
	defer db.Close()

	d.reg = registry.New(d.log)
	d.sched = scheduler.New(d.reg, pl, d.notifyDispatch, d.cfg.CancelGrace(), d.log)

	if err := d.restore(); err != nil {
		return err
	}
	d.applyPlanAgents(plan.Compute(&plan.Plan{}, pl))

	d.ctx, d.cancel = context.WithCancel(context.Background())
	defer d.cancel()

	api := &httpapi.API{Reg: d.reg, Sched: d.sched, Reload: d.reloadPlan, Log: d.log}
	srv := &http.Server{Addr: d.cfg.HTTP.ListenAddr, Handler: api.Router()}
	httpErr := make(chan error, 1)
	go func() {
		d.log.Info().Str("addr", srv.Addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()

	watcher, err := d.watchPlan()
	if err != nil {
		d.log.Warn().Err(err).Msg("plan watcher unavailable, hot reload disabled")
	} else {
		defer watcher.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	d.log.Info().Msg("warden daemon started")

	sweepTicker := time.NewTicker(d.cfg.SweepInterval())
	dispatchTicker := time.NewTicker(d.cfg.DispatchInterval())
	snapshotTicker := time.NewTicker(d.cfg.SnapshotInterval())
	defer sweepTicker.Stop()
	defer dispatchTicker.Stop()
	defer snapshotTicker.Stop()

	// Run one tick immediately so restored pending work does not wait a
	// full interval.
	d.sched.Tick(time.Now().UTC())

	for {
		select {
		case <-d.ctx.Done():
			return d.shutdown(srv)
		case sig := <-sigChan:
			d.log.Info().Str("signal", sig.String()).Msg("shutting down")
			return d.shutdown(srv)
		case err := <-httpErr:
			d.log.Error().Err(err).Msg("http server failed")
			return d.shutdown(srv)
		case now := <-sweepTicker.C:
			d.reg.Sweep(now.UTC())
		case now := <-dispatchTicker.C:
			d.sched.Tick(now.UTC())
		case <-snapshotTicker.C:
			if err := d.snapshot(); err != nil {
				d.log.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// Stop requests a graceful shutdown
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		d.log.Warn().Err(err).Msg("http shutdown")
	}
	if err := d.snapshot(); err != nil {
		d.log.Error().Err(err).Msg("final snapshot failed")
	}
	d.log.Info().Msg("warden daemon stopped")
	return nil
}

func (d *Daemon) snapshot() error {
	return d.db.SaveSnapshot(d.reg.Snapshot(), d.sched.Snapshot())
}

// restore loads persisted agents and tasks back into the registry and
// scheduler. Corrupt state aborts startup.
func (d *Daemon) restore() error {
	agents, tasks, err := d.db.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	for _, a := range agents {
		d.reg.Restore(a, d.agentConfig(a.Name))
	}
	d.sched.RestoreTasks(tasks)
	if len(agents) > 0 || len(tasks) > 0 {
		d.log.Info().Int("agents", len(agents)).Int("tasks", len(tasks)).Msg("state restored")
	}
	return nil
}

func (d *Daemon) agentConfig(name string) registry.AgentConfig {
	d.mu.Lock()
	pl := d.plan
	d.mu.Unlock()
	spec, ok := pl.Agent(name)
	if !ok {
		return registry.AgentConfig{}
	}
	return specConfig(spec)
}

func specConfig(spec plan.AgentSpec) registry.AgentConfig {
	cfg := registry.AgentConfig{HeartbeatInterval: spec.HeartbeatInterval.Std()}
	if len(spec.Thresholds) > 0 {
		cfg.Thresholds = make(map[string]plan.Threshold, len(spec.Thresholds))
		for k, v := range spec.Thresholds {
			cfg.Thresholds[k] = v
		}
	}
	return cfg
}

// applyPlanAgents reconciles the registry against a plan diff: added
// auto-start agents are registered, removed agents retired, changed agents
// get their config updated.
func (d *Daemon) applyPlanAgents(diff plan.Diff) {
	for _, spec := range diff.Added {
		if !spec.AutoStart {
			continue
		}
		err := d.reg.Register(spec.Name, spec.Machine, spec.Window, spec.Capabilities, specConfig(spec), false)
		if err != nil {
			d.log.Debug().Err(err).Str("agent", spec.Name).Msg("auto-start register skipped")
			continue
		}
		d.log.Info().Str("agent", spec.Name).Msg("auto-start agent registered")
	}
	for _, name := range diff.Removed {
		if err := d.reg.Retire(name); err == nil {
			d.log.Info().Str("agent", name).Msg("agent retired, removed from plan")
		}
	}
	for _, spec := range diff.Changed {
		if err := d.reg.UpdateConfig(spec.Name, specConfig(spec)); err == nil {
			d.log.Info().Str("agent", spec.Name).Msg("agent config updated from plan")
		}
	}
}

// reloadPlan re-reads the plan file and applies the diff. A plan that fails
// validation leaves the previous plan in effect.
func (d *Daemon) reloadPlan() error {
	updated, err := plan.Load(d.cfg.Daemon.PlanPath)
	if err != nil {
		return err
	}
	d.mu.Lock()
	old := d.plan
	d.plan = updated
	d.mu.Unlock()

	d.sched.Reload(updated)
	d.applyPlanAgents(plan.Compute(old, updated))
	return nil
}

// watchPlan watches the plan file's directory and hot-reloads on change.
// Watching the directory rather than the file survives editors that
// rename-replace on save.
func (d *Daemon) watchPlan() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	planPath, err := filepath.Abs(d.cfg.Daemon.PlanPath)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(planPath)); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		var debounce *time.Timer
		for {
			select {
			case <-d.ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != planPath {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := d.reloadPlan(); err != nil {
						d.log.Error().Err(err).Msg("plan reload failed, keeping previous plan")
						return
					}
					d.log.Info().Str("path", planPath).Msg("fleet plan reloaded")
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.log.Warn().Err(err).Msg("plan watcher error")
			}
		}
	}()
	return watcher, nil
}

// notifyDispatch logs dispatch events. Task delivery to agents is pull
// based: agents learn about assignments on their next heartbeat or via
// GET /agents/{name}/next.
func (d *Daemon) notifyDispatch(ev scheduler.Event) {
	d.log.Info().Str("task", ev.TaskID).Str("agent", ev.Agent).
		Str("mode", ev.Mode).Msg("task dispatched")
}
