// Package preview serves the rendered site with live reload for htmllive.
// It watches the source tree, rebuilds on change, and notifies connected
// browsers over SSE.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docmake/internal/metrics"
	"git.home.luguber.info/inful/docmake/internal/state"
)

// Options configures the preview server.
type Options struct {
	Port      int
	SiteDir   string   // rendered output directory to serve
	WatchDir  string   // source tree to watch
	SkipDirs  []string // absolute paths excluded from watching (build output, venv)
	Rebuild   func(ctx context.Context) error
	Store     *state.Store  // run history for /api/builds, may be nil
	Interval  time.Duration // periodic full rebuild as watcher safety net, 0 disables
	OnStarted func(url string)
}

// buildStatus tracks the current build state for the health endpoint.
type buildStatus struct {
	mu           sync.RWMutex
	lastError    error
	hasGoodBuild bool
}

func (bs *buildStatus) setError(err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.lastError = err
}

func (bs *buildStatus) setSuccess() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.lastError = nil
	bs.hasGoodBuild = true
}

func (bs *buildStatus) snapshot() (hasGoodBuild bool, err error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.hasGoodBuild, bs.lastError
}

// Run starts the preview server and blocks until the context is canceled.
// The caller is expected to have produced an initial build in opts.SiteDir.
func Run(ctx context.Context, opts Options) error {
	if opts.Rebuild == nil {
		return errors.New("preview requires a rebuild function")
	}
	if st, err := os.Stat(opts.SiteDir); err != nil || !st.IsDir() {
		return fmt.Errorf("site dir not found or not a directory: %s", opts.SiteDir)
	}

	collector := metrics.Default()
	hub := NewLiveReloadHub(collector)
	status := &buildStatus{hasGoodBuild: true}

	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", opts.Port),
		Handler:           buildMux(opts, hub, collector, status),
		ReadHeaderTimeout: 5 * time.Second,
	}

	skip := func(path string) bool {
		for _, dir := range opts.SkipDirs {
			if dir != "" && strings.HasPrefix(path, dir) {
				return true
			}
		}
		return false
	}
	watcher, err := newWatcher(opts.WatchDir, skip)
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	rebuildReq, trigger := newDebouncer()
	startRebuildWorker(ctx, opts, hub, collector, status, rebuildReq)

	scheduler, err := startSchedule(opts.Interval, trigger)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() { _ = scheduler.Shutdown() }()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	url := fmt.Sprintf("http://localhost:%d/", opts.Port)
	slog.Info("Live preview listening", "url", url, "watching", opts.WatchDir)
	if opts.OnStarted != nil {
		opts.OnStarted(url)
	}

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("preview server: %w", err)
		case <-ctx.Done():
			return shutdown(server, hub)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			handleFileEvent(watcher, ev, skip, trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func buildMux(opts Options, hub *LiveReloadHub, collector *metrics.Collector, status *buildStatus) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/livereload", hub)
	mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		if _, err := w.Write([]byte(LiveReloadScript)); err != nil {
			slog.Error("failed to write livereload script", "error", err)
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		good, lastErr := status.snapshot()
		payload := map[string]any{"status": "ok", "has_good_build": good}
		if lastErr != nil {
			payload["status"] = "degraded"
			payload["last_error"] = lastErr.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})
	mux.Handle("/metrics", collector.HTTPHandler())
	mux.HandleFunc("/api/builds", func(w http.ResponseWriter, r *http.Request) {
		if opts.Store == nil {
			http.Error(w, "run history disabled", http.StatusNotFound)
			return
		}
		runs, err := opts.Store.Recent(r.Context(), 20)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runs)
	})
	mux.Handle("/", injectLiveReloadScript(http.FileServer(http.Dir(opts.SiteDir))))
	return mux
}

// startRebuildWorker processes rebuild requests one at a time; requests that
// arrive mid-build queue exactly one follow-up build.
func startRebuildWorker(ctx context.Context, opts Options, hub *LiveReloadHub, collector *metrics.Collector, status *buildStatus, rebuildReq chan struct{}) {
	var mu sync.Mutex
	running := false
	pending := false

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-rebuildReq:
				if !ok {
					return
				}
				mu.Lock()
				if running {
					pending = true
					mu.Unlock()
					continue
				}
				running = true
				mu.Unlock()

				processRebuild(ctx, opts, hub, collector, status)

				mu.Lock()
				running = false
				if pending {
					pending = false
					mu.Unlock()
					select {
					case rebuildReq <- struct{}{}:
					default:
					}
				} else {
					mu.Unlock()
				}
			}
		}
	}()
}

func processRebuild(ctx context.Context, opts Options, hub *LiveReloadHub, collector *metrics.Collector, status *buildStatus) {
	slog.Info("Change detected; rebuilding site")
	collector.RebuildsTotal.Inc()
	start := time.Now()
	err := opts.Rebuild(ctx)
	collector.RebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("rebuild failed", "error", err)
		collector.RebuildsFailedTotal.Inc()
		status.setError(err)
		hub.Broadcast(fmt.Sprintf("error:%d", time.Now().UnixNano()))
		return
	}
	status.setSuccess()
	hub.Broadcast(strconv.FormatInt(time.Now().UnixNano(), 10))
}

// startSchedule installs a periodic full rebuild so changes the watcher missed
// (network mounts, watch-limit overflow) still land eventually.
func startSchedule(interval time.Duration, trigger func()) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(trigger),
		gocron.WithName("periodic-rebuild"),
	); err != nil {
		return nil, fmt.Errorf("failed to create periodic rebuild job: %w", err)
	}
	scheduler.Start()
	slog.Info("Periodic rebuild scheduled", "interval", interval.String())
	return scheduler, nil
}

func handleFileEvent(watcher *fsnotify.Watcher, ev fsnotify.Event, skip func(string) bool, trigger func()) {
	if shouldIgnoreEvent(ev.Name) {
		return
	}
	if skip != nil && skip(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(watcher, ev.Name, skip)
		}
	}
	slog.Debug("File change detected", "path", ev.Name, "op", ev.Op.String())
	trigger()
}

func shutdown(server *http.Server, hub *LiveReloadHub) error {
	slog.Info("Shutting down preview server...")
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}
	return nil
}
