package preview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docmake/internal/metrics"
	"git.home.luguber.info/inful/docmake/internal/state"
)

func newTestMux(t *testing.T, opts Options) http.Handler {
	t.Helper()
	hub := NewLiveReloadHub(nil)
	t.Cleanup(hub.Shutdown)
	return buildMux(opts, hub, metrics.NewCollector(), &buildStatus{hasGoodBuild: true})
}

func TestMux_ServesSiteWithInjection(t *testing.T) {
	site := t.TempDir()
	page := "<html><body><h1>PEP 1</h1></body></html>"
	if err := os.WriteFile(filepath.Join(site, "index.html"), []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}

	mux := newTestMux(t, Options{SiteDir: site})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "livereload.js") {
		t.Error("served page missing livereload script")
	}
}

func TestMux_LiveReloadScript(t *testing.T) {
	mux := newTestMux(t, Options{SiteDir: t.TempDir()})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livereload.js", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "EventSource('/livereload')") {
		t.Error("script does not connect to /livereload")
	}
}

func TestMux_HealthReflectsBuildStatus(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	status := &buildStatus{hasGoodBuild: true}
	mux := buildMux(Options{SiteDir: t.TempDir()}, hub, metrics.NewCollector(), status)

	get := func() map[string]any {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var payload map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("health payload: %v", err)
		}
		return payload
	}

	if payload := get(); payload["status"] != "ok" {
		t.Errorf("status = %v, want ok", payload["status"])
	}

	status.setError(errors.New("sphinx-build failed"))
	payload := get()
	if payload["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", payload["status"])
	}
	if payload["last_error"] != "sphinx-build failed" {
		t.Errorf("last_error = %v", payload["last_error"])
	}

	status.setSuccess()
	if payload := get(); payload["status"] != "ok" {
		t.Errorf("status after recovery = %v, want ok", payload["status"])
	}
}

func TestMux_Metrics(t *testing.T) {
	mux := newTestMux(t, Options{SiteDir: t.TempDir()})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "docmake_rebuilds_total") {
		t.Error("metrics output missing docmake counters")
	}
}

func TestMux_BuildHistory(t *testing.T) {
	store, err := state.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Record(context.Background(), state.Run{
		ID: "run-1", Target: "html", StartedAt: time.Now(), Success: true,
	}); err != nil {
		t.Fatal(err)
	}

	mux := newTestMux(t, Options{SiteDir: t.TempDir(), Store: store})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/builds", nil))

	var runs []state.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("builds payload: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestMux_BuildHistoryDisabled(t *testing.T) {
	mux := newTestMux(t, Options{SiteDir: t.TempDir()})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/builds", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRebuildWorker_CoalescesRequestsDuringBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var builds atomic.Int32
	release := make(chan struct{})
	opts := Options{
		Rebuild: func(context.Context) error {
			builds.Add(1)
			if builds.Load() == 1 {
				<-release
			}
			return nil
		},
	}

	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	status := &buildStatus{}
	rebuildReq := make(chan struct{}, 1)
	startRebuildWorker(ctx, opts, hub, metrics.NewCollector(), status, rebuildReq)

	// Non-blocking send, same as the debounce trigger.
	request := func() {
		select {
		case rebuildReq <- struct{}{}:
		default:
		}
	}

	// First request starts a build that blocks on release.
	request()
	waitFor(t, func() bool { return builds.Load() == 1 })

	// Requests during the build collapse into one follow-up.
	request()
	request()
	request()
	close(release)

	waitFor(t, func() bool { return builds.Load() == 2 })
	time.Sleep(100 * time.Millisecond)
	if got := builds.Load(); got != 2 {
		t.Errorf("builds = %d, want 2", got)
	}

	if _, err := status.snapshot(); err != nil {
		t.Errorf("status error after successful builds: %v", err)
	}
}

func TestRebuildWorker_FailureSetsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	opts := Options{
		Rebuild: func(context.Context) error { return errors.New("boom") },
	}
	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	status := &buildStatus{hasGoodBuild: true}
	rebuildReq := make(chan struct{}, 1)
	startRebuildWorker(ctx, opts, hub, metrics.NewCollector(), status, rebuildReq)

	rebuildReq <- struct{}{}
	waitFor(t, func() bool {
		_, err := status.snapshot()
		return err != nil
	})

	good, _ := status.snapshot()
	if !good {
		t.Error("a failed rebuild should not discard the last good build")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// TestHandleFileEvent_RespectsSkipDirs covers directories created while
// serving: excluded paths must not be added to the watcher or trigger a
// rebuild, while new source directories must do both.
func TestHandleFileEvent_RespectsSkipDirs(t *testing.T) {
	root := t.TempDir()
	excluded := filepath.Join(root, "build")
	if err := os.MkdirAll(filepath.Join(excluded, "html"), 0o755); err != nil {
		t.Fatal(err)
	}
	skip := func(path string) bool { return strings.HasPrefix(path, excluded) }

	watcher, err := newWatcher(root, skip)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	triggered := false
	trigger := func() { triggered = true }

	handleFileEvent(watcher, fsnotify.Event{Name: excluded, Op: fsnotify.Create}, skip, trigger)
	for _, w := range watcher.WatchList() {
		if strings.HasPrefix(w, excluded) {
			t.Errorf("excluded directory was added to the watch list: %s", w)
		}
	}
	if triggered {
		t.Error("event under an excluded path triggered a rebuild")
	}

	added := filepath.Join(root, "chapter")
	if err := os.MkdirAll(added, 0o755); err != nil {
		t.Fatal(err)
	}
	handleFileEvent(watcher, fsnotify.Event{Name: added, Op: fsnotify.Create}, skip, trigger)
	found := false
	for _, w := range watcher.WatchList() {
		if w == added {
			found = true
		}
	}
	if !found {
		t.Error("new source directory was not added to the watch list")
	}
	if !triggered {
		t.Error("new source directory did not trigger a rebuild")
	}
}

func TestStartSchedule_DisabledForZeroInterval(t *testing.T) {
	scheduler, err := startSchedule(0, func() {})
	if err != nil {
		t.Fatalf("startSchedule: %v", err)
	}
	if scheduler != nil {
		t.Error("zero interval should not create a scheduler")
	}
}

func TestStartSchedule_TriggersPeriodically(t *testing.T) {
	var fired atomic.Int32
	scheduler, err := startSchedule(50*time.Millisecond, func() { fired.Add(1) })
	if err != nil {
		t.Fatalf("startSchedule: %v", err)
	}
	defer func() { _ = scheduler.Shutdown() }()

	waitFor(t, func() bool { return fired.Load() >= 1 })
}
