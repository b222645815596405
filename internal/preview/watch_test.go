package preview

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestShouldIgnoreEvent(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"rst source", "docs/pep-0001.rst", false},
		{"conf.py", "docs/conf.py", false},
		{"hidden file", "docs/.hidden", true},
		{"backup file", "docs/pep-0001.rst~", true},
		{"vim swap", "docs/.pep-0001.rst.swp", true},
		{"emacs lock", "docs/.#pep-0001.rst", true},
		{"emacs autosave", "docs/#pep-0001.rst#", true},
		{"macOS junk", "docs/.DS_Store", true},
		{"windows junk", "docs/Thumbs.db", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := shouldIgnoreEvent(test.path); got != test.want {
				t.Errorf("shouldIgnoreEvent(%q) = %v, want %v", test.path, got, test.want)
			}
		})
	}
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	rebuildReq, trigger := newDebouncer()

	// A burst of triggers yields exactly one request.
	for i := 0; i < 5; i++ {
		trigger()
	}

	select {
	case <-rebuildReq:
	case <-time.After(debounceDelay + 500*time.Millisecond):
		t.Fatal("debouncer never fired")
	}

	select {
	case <-rebuildReq:
		t.Fatal("burst produced more than one rebuild request")
	case <-time.After(debounceDelay + 100*time.Millisecond):
	}
}

func TestDebouncer_RetriggersAfterQuietPeriod(t *testing.T) {
	rebuildReq, trigger := newDebouncer()

	trigger()
	select {
	case <-rebuildReq:
	case <-time.After(debounceDelay + 500*time.Millisecond):
		t.Fatal("first trigger never fired")
	}

	trigger()
	select {
	case <-rebuildReq:
	case <-time.After(debounceDelay + 500*time.Millisecond):
		t.Fatal("second trigger never fired")
	}
}

func TestNewWatcher_SkipsExcludedDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"docs", "build/html", ".venv/bin"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	skipped := map[string]bool{
		filepath.Join(root, "build"): true,
		filepath.Join(root, ".venv"): true,
	}

	watcher, err := newWatcher(root, func(path string) bool { return skipped[path] })
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, w := range watcher.WatchList() {
		if skipped[w] || w == filepath.Join(root, "build", "html") || w == filepath.Join(root, ".venv", "bin") {
			t.Errorf("excluded directory is watched: %s", w)
		}
	}
}

func TestNewWatcher_EmitsEvents(t *testing.T) {
	root := t.TempDir()
	watcher, err := newWatcher(root, nil)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Join(root, "pep-9999.rst")
	if err := os.WriteFile(target, []byte("PEP 9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-watcher.Events:
		if ev.Name != target {
			t.Errorf("event for %s, want %s", ev.Name, target)
		}
	case err := <-watcher.Errors:
		t.Fatalf("watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no event for created file")
	}
}
