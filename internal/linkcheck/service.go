// Package linkcheck validates links in the rendered HTML output. Internal
// links are resolved against the output tree; external links are verified
// over HTTP with a result cache in front.
package linkcheck

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/observability"
)

// BrokenLink describes one failed link.
type BrokenLink struct {
	Page       string // page path relative to the output directory
	URL        string
	Status     int // HTTP status, 0 for non-HTTP failures
	Reason     string
	IsInternal bool
}

// Result aggregates one verification run.
type Result struct {
	Pages        int
	LinksChecked int
	Broken       []BrokenLink
	Duration     time.Duration
}

// HasBroken reports whether any link failed.
func (r *Result) HasBroken() bool { return len(r.Broken) > 0 }

// Service verifies all links under one rendered output directory.
type Service struct {
	cfg       *config.LinkCheckConfig
	outputDir string
	runID     string
	cache     Cache
	client    *http.Client

	linkSem chan struct{}
	pageSem chan struct{}

	mu      sync.Mutex
	broken  []BrokenLink
	checked int
	// external results already settled this run, keyed by URL
	settled map[string]*CacheEntry
}

// NewService creates a verification service for the given output directory.
func NewService(cfg *config.LinkCheckConfig, outputDir, runID string) (*Service, error) {
	var cache Cache
	if cfg.NATSURL != "" {
		natsCache, err := NewNATSCache(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("nats cache: %w", err)
		}
		cache = natsCache
	} else {
		cache = NewMemoryCache(time.Hour)
	}

	client := &http.Client{
		Timeout: cfg.Timeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}

	return &Service{
		cfg:       cfg,
		outputDir: outputDir,
		runID:     runID,
		cache:     cache,
		client:    client,
		linkSem:   make(chan struct{}, cfg.MaxConcurrent),
		pageSem:   make(chan struct{}, min(cfg.MaxConcurrent, 4)),
		settled:   map[string]*CacheEntry{},
	}, nil
}

// Close releases the cache.
func (s *Service) Close() error { return s.cache.Close() }

// Run verifies every page under the output directory.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	var pages []string
	err := filepath.WalkDir(s.outputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".html") {
			pages = append(pages, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output directory: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no rendered pages under %s; build first", s.outputDir)
	}

	observability.InfoContext(ctx, "Verifying links",
		slog.Int("pages", len(pages)), slog.String("output", s.outputDir))

	var wg sync.WaitGroup
	for _, page := range pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case s.pageSem <- struct{}{}:
		}
		wg.Add(1)
		go func(page string) {
			defer wg.Done()
			defer func() { <-s.pageSem }()
			s.verifyPage(ctx, page)
		}(page)
	}
	wg.Wait()

	result := &Result{
		Pages:        len(pages),
		LinksChecked: s.checked,
		Broken:       s.broken,
		Duration:     time.Since(start),
	}
	return result, nil
}

func (s *Service) verifyPage(ctx context.Context, pagePath string) {
	rel, relErr := filepath.Rel(s.outputDir, pagePath)
	if relErr != nil {
		rel = pagePath
	}

	links, err := ExtractLinks(pagePath)
	if err != nil {
		slog.Warn("failed to extract links", "page", rel, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, link := range links {
		if !ShouldVerifyLink(link) || s.ignored(link.URL) {
			continue
		}
		s.countCheck()

		if link.IsInternal {
			if reason, ok := s.verifyInternal(pagePath, link.URL); !ok {
				s.reportBroken(ctx, BrokenLink{
					Page: rel, URL: link.URL, Reason: reason, IsInternal: true,
				})
			}
			continue
		}

		if !s.cfg.ExternalEnabled() {
			continue
		}
		wg.Add(1)
		go func(link *Link) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case s.linkSem <- struct{}{}:
			}
			defer func() { <-s.linkSem }()
			entry := s.verifyExternal(ctx, link.URL)
			if !entry.IsValid {
				s.reportBroken(ctx, BrokenLink{
					Page: rel, URL: link.URL, Status: entry.Status, Reason: entry.Error,
				})
			}
		}(link)
	}
	wg.Wait()
}

// ignored checks the configured ignore substrings.
func (s *Service) ignored(linkURL string) bool {
	for _, pattern := range s.cfg.Ignore {
		if pattern != "" && strings.Contains(linkURL, pattern) {
			return true
		}
	}
	return false
}

// verifyInternal resolves a site-relative link against the output tree.
// It accepts both the flat html layout (doc.html) and the dirhtml layout
// (doc/index.html).
func (s *Service) verifyInternal(pagePath, linkURL string) (reason string, ok bool) {
	u, err := url.Parse(linkURL)
	if err != nil {
		return "unparseable URL", false
	}
	p := u.Path
	if p == "" {
		return "", true // pure fragment or query, nothing to resolve
	}

	var target string
	if path.IsAbs(p) {
		target = filepath.Join(s.outputDir, filepath.FromSlash(p))
	} else {
		target = filepath.Join(filepath.Dir(pagePath), filepath.FromSlash(p))
	}

	st, err := os.Stat(target)
	switch {
	case err == nil && st.IsDir():
		if _, err := os.Stat(filepath.Join(target, "index.html")); err != nil {
			return "directory without index.html", false
		}
		return "", true
	case err == nil:
		return "", true
	}

	// dirhtml layout: <doc>/ links may be written without the trailing slash.
	if filepath.Ext(target) == "" {
		if _, err := os.Stat(filepath.Join(target, "index.html")); err == nil {
			return "", true
		}
	}
	return "target not found in output", false
}

// verifyExternal checks an external URL, consulting per-run and shared caches.
func (s *Service) verifyExternal(ctx context.Context, linkURL string) *CacheEntry {
	s.mu.Lock()
	if entry, ok := s.settled[linkURL]; ok {
		s.mu.Unlock()
		return entry
	}
	s.mu.Unlock()

	if entry, err := s.cache.Get(ctx, linkURL); err == nil && s.cache.Valid(entry) {
		s.remember(linkURL, entry)
		return entry
	}

	entry := s.checkHTTP(ctx, linkURL)
	if err := s.cache.Set(ctx, entry); err != nil {
		slog.Debug("link cache set failed", "url", linkURL, "error", err)
	}
	s.remember(linkURL, entry)
	return entry
}

func (s *Service) remember(linkURL string, entry *CacheEntry) {
	s.mu.Lock()
	s.settled[linkURL] = entry
	s.mu.Unlock()
}

// checkHTTP performs the actual request: HEAD first, retried as GET for
// servers that reject HEAD.
func (s *Service) checkHTTP(ctx context.Context, linkURL string) *CacheEntry {
	entry := &CacheEntry{URL: linkURL}

	status, err := s.request(ctx, http.MethodHead, linkURL)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusForbidden) {
		status, err = s.request(ctx, http.MethodGet, linkURL)
	}
	if err != nil {
		entry.Error = err.Error()
		return entry
	}

	entry.Status = status
	if status >= 400 {
		entry.Error = http.StatusText(status)
		return entry
	}
	entry.IsValid = true
	return entry
}

func (s *Service) request(ctx context.Context, method, linkURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, linkURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "docmake-linkcheck/1.0")
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func (s *Service) countCheck() {
	s.mu.Lock()
	s.checked++
	s.mu.Unlock()
}

func (s *Service) reportBroken(ctx context.Context, b BrokenLink) {
	s.mu.Lock()
	s.broken = append(s.broken, b)
	s.mu.Unlock()

	if err := s.cache.PublishBrokenLink(ctx, &BrokenLinkEvent{
		URL:        b.URL,
		Status:     b.Status,
		Error:      b.Reason,
		IsInternal: b.IsInternal,
		SourcePage: b.Page,
		RunID:      s.runID,
	}); err != nil {
		slog.Debug("broken link publish failed", "url", b.URL, "error", err)
	}
}
