package monitor

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hopper/internal/archive"
	"hopper/internal/config"
	"hopper/internal/editorial"
	"hopper/internal/guard"
	"hopper/internal/logging"
	"hopper/internal/notify"
	"hopper/internal/store"
	"hopper/internal/wire"
)

// Monitor owns the watch, the candidate queue, and the worker pool.
type Monitor struct {
	cfg       *config.Config
	store     *store.Store
	guard     *guard.Guard
	notifier  notify.Service
	editorial editorial.Client
	logger    *slog.Logger

	reporterMu sync.Mutex
	reporter   *wire.Writer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queue   chan string
	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
}

// New wires a monitor. reporter may be nil to disable the framed report
// stream; editorialClient may be nil when no editorial system is reachable.
func New(cfg *config.Config, st *store.Store, notifier notify.Service, editorialClient editorial.Client, reporter *wire.Writer, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		store:     st,
		guard:     guard.New(cfg.Paths.WorkDir, cfg.Guard.Group, logger),
		notifier:  notifier,
		editorial: editorialClient,
		reporter:  reporter,
		logger:    logging.NewComponentLogger(logger, "monitor"),
		pending:   make(map[string]*time.Timer),
	}
}

// Start registers the watches and launches the worker pool. Idempotent
// start attempts fail.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("monitor already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range m.cfg.Paths.WatchDirs {
		if err := m.registerWatch(watcher, dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.watcher = watcher
	m.cancel = cancel
	m.queue = make(chan string, m.cfg.Intake.QueueCapacity)
	m.started = true

	m.wg.Add(1)
	go m.watchLoop(runCtx)

	for workerID := 1; workerID <= m.cfg.Intake.Workers; workerID++ {
		m.wg.Add(1)
		go m.workerLoop(runCtx, workerID)
	}

	m.logger.Info("monitor started",
		logging.Int("workers", m.cfg.Intake.Workers),
		logging.Int("queue_capacity", m.cfg.Intake.QueueCapacity),
		logging.Int("watch_dirs", len(m.cfg.Paths.WatchDirs)))
	return nil
}

// Stop halts event intake and blocks until all in-flight workers have
// finished their current item. Cancellation only interrupts idle workers
// waiting on the queue; an item being processed is never cut off mid-run.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	watcher := m.watcher
	m.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	cancel()

	m.pendingMu.Lock()
	for path, timer := range m.pending {
		timer.Stop()
		delete(m.pending, path)
	}
	m.pendingMu.Unlock()

	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

func (m *Monitor) registerWatch(watcher *fsnotify.Watcher, root string) error {
	if !m.cfg.Intake.Recursive {
		if err := watcher.Add(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		return nil
	}
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (m *Monitor) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(ctx, event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (m *Monitor) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if m.cfg.Intake.Recursive && event.Op&fsnotify.Create != 0 {
			if err := m.watcher.Add(event.Name); err != nil {
				m.logger.Warn("cannot watch new directory",
					logging.String("dir", event.Name), logging.Error(err))
			}
		}
		return
	}

	m.settle(ctx, event.Name)
}

// settle defers enqueueing until the path has been quiet for the configured
// delay, so half-written archives are not dispatched.
func (m *Monitor) settle(ctx context.Context, path string) {
	delay := time.Duration(m.cfg.Intake.SettleDelayMS) * time.Millisecond

	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if timer, exists := m.pending[path]; exists {
		timer.Reset(delay)
		return
	}
	m.pending[path] = time.AfterFunc(delay, func() {
		m.pendingMu.Lock()
		delete(m.pending, path)
		m.pendingMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		m.enqueue(path)
	})
}

// enqueue pushes an archive-shaped path without blocking. A full queue
// drops the path with a log line; the watch callback must stay responsive.
func (m *Monitor) enqueue(path string) {
	if !archive.LooksLikeArchive(path) {
		m.logger.Debug("ignoring non-archive", logging.String(logging.FieldPackage, path))
		return
	}
	select {
	case m.queue <- path:
		m.logger.Debug("package queued", logging.String(logging.FieldPackage, path))
	default:
		m.logger.Warn("queue full, dropping package",
			logging.String(logging.FieldPackage, path))
		m.report(path, "dropped", "intake queue full")
	}
}

func (m *Monitor) workerLoop(ctx context.Context, workerID int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int(logging.FieldWorker, workerID))

	session, err := m.store.NewSession(ctx)
	if err != nil {
		logger.Error("cannot open worker session", logging.Error(err))
		return
	}
	defer session.Close()

	worker := newWorker(m, session, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-m.queue:
			if !ok {
				return
			}
			// Both channels may be ready at once; never start an item
			// after shutdown began.
			if ctx.Err() != nil {
				return
			}
			// Cancellation governs dequeueing only. An item already
			// picked up runs to completion so no half-validated
			// attempt is left behind.
			worker.process(context.WithoutCancel(ctx), path)
		}
	}
}

func (m *Monitor) report(path, outcome, message string) {
	if m.reporter == nil {
		return
	}
	m.reporterMu.Lock()
	defer m.reporterMu.Unlock()
	err := m.reporter.WriteReport(wire.Report{
		Path:       path,
		Outcome:    outcome,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Warn("report stream write failed", logging.Error(err))
	}
}
