// Package watch is an fsnotify-backed change source for the watch command.
//
// fsnotify watches are per directory, so the source walks the tree on Watch
// and adds each non-excluded directory, then follows directory creation.
// Events are debounced per path and delivered as sorted batches.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/match"
)

// DefaultDebounce is how long a path must be quiet before it is reported.
const DefaultDebounce = 100 * time.Millisecond

const clockPrefix = "c:"

var (
	// ErrNotWatching is returned by Subscribe before a successful Watch.
	ErrNotWatching = errors.New("watch: no active watch")

	// ErrBadClock is returned for a since token this source did not issue.
	ErrBadClock = errors.New("watch: unknown clock token")
)

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithDebounce sets the quiet period before a path is reported.
func WithDebounce(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithBase resolves relative watch roots against dir instead of the
// working directory.
func WithBase(dir string) Option {
	return func(s *Source) { s.base = dir }
}

// Source implements engine.ChangeSource over the local filesystem.
type Source struct {
	logger   *slog.Logger
	debounce time.Duration
	base     string
	seq      atomic.Int64

	mu      sync.Mutex
	root    string
	watcher *fsnotify.Watcher
	known   map[string]bool
}

var _ engine.ChangeSource = (*Source)(nil)

// New creates a source. Nothing is watched until Watch is called.
func New(opts ...Option) *Source {
	s := &Source{
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch registers root and every directory beneath it not in the
// always-excluded set.
func (s *Source) Watch(ctx context.Context, root string) error {
	if !filepath.IsAbs(root) && s.base != "" {
		root = filepath.Join(s.base, root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch: %s is not a directory", abs)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	m, err := match.Excluder()
	if err != nil {
		fw.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.root = abs
	s.watcher = fw
	s.known = make(map[string]bool)
	if err := s.addTree(ctx, abs, m, nil); err != nil {
		fw.Close()
		s.watcher = nil
		return err
	}
	s.logger.Debug("watch established", "root", abs, "files", len(s.known))
	return nil
}

// Clock returns a token for "now".
func (s *Source) Clock(context.Context) (string, error) {
	return clockPrefix + strconv.FormatInt(s.seq.Add(1), 10), nil
}

// Subscribe starts delivering event batches. Events the watcher queued since
// Watch are reported too, so edits between Clock and Subscribe are not lost.
// Since must be a token from Clock.
func (s *Source) Subscribe(ctx context.Context, req engine.SubscribeRequest) (engine.Subscription, error) {
	if req.Since != "" {
		n, err := strconv.ParseInt(strings.TrimPrefix(req.Since, clockPrefix), 10, 64)
		if !strings.HasPrefix(req.Since, clockPrefix) || err != nil || n < 1 || n > s.seq.Load() {
			return nil, fmt.Errorf("%w: %q", ErrBadClock, req.Since)
		}
	}
	m, err := match.Excluder(req.Exclude...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	fw := s.watcher
	s.mu.Unlock()
	if fw == nil {
		return nil, ErrNotWatching
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		src:     s,
		matcher: m,
		events:  make(chan []engine.SourceEvent, 16),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go sub.loop(ctx, fw)
	return sub, nil
}

// addTree watches dir and its subdirectories. Files found are added to the
// known set; when found is non-nil they are also appended to it.
func (s *Source) addTree(ctx context.Context, dir string, m *match.Matcher, found *[]string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel := s.rel(p)
		if d.IsDir() {
			if rel != "." && m.SkipDir(rel) {
				return filepath.SkipDir
			}
			if err := s.watcher.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", rel, err)
			}
			return nil
		}
		if d.Type().IsRegular() && m.Matches(rel) {
			if found != nil && !s.known[rel] {
				*found = append(*found, rel)
			}
			s.known[rel] = true
		}
		return nil
	})
}

func (s *Source) rel(p string) string {
	r, err := filepath.Rel(s.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

type subscription struct {
	src     *Source
	matcher *match.Matcher
	events  chan []engine.SourceEvent
	done    chan struct{}
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

func (sub *subscription) Events() <-chan []engine.SourceEvent { return sub.events }

func (sub *subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

func (sub *subscription) Unsubscribe() error {
	sub.cancel()
	<-sub.done
	sub.src.mu.Lock()
	defer sub.src.mu.Unlock()
	if sub.src.watcher == nil {
		return nil
	}
	err := sub.src.watcher.Close()
	sub.src.watcher = nil
	return err
}

func (sub *subscription) fail(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.err == nil {
		sub.err = err
	}
}

func (sub *subscription) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(sub.done)
	defer close(sub.events)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(sub.src.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			for _, p := range sub.observe(ctx, ev) {
				pending[p] = time.Now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				sub.fail(fmt.Errorf("watch: %w", err))
				return
			}
			sub.src.logger.Warn("watch error", "error", err)

		case now := <-ticker.C:
			var ready []string
			for p, t := range pending {
				if now.Sub(t) >= sub.src.debounce {
					ready = append(ready, p)
					delete(pending, p)
				}
			}
			if len(ready) == 0 {
				continue
			}
			batch := sub.src.resolve(ready)
			if len(batch) == 0 {
				continue
			}
			select {
			case sub.events <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// observe returns the relative paths an fsnotify event makes pending.
func (sub *subscription) observe(ctx context.Context, ev fsnotify.Event) []string {
	s := sub.src
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return nil
	}
	rel := s.rel(ev.Name)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return nil
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if sub.matcher.SkipDir(rel) {
				return nil
			}
			var found []string
			s.mu.Lock()
			if s.watcher != nil {
				if err := s.addTree(ctx, ev.Name, sub.matcher, &found); err != nil {
					s.logger.Warn("watch new directory", "dir", rel, "error", err)
				}
			}
			// Reported as new by resolve.
			for _, p := range found {
				delete(s.known, p)
			}
			s.mu.Unlock()
			return found
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.known[rel] {
			return []string{rel}
		}
		var gone []string
		prefix := rel + "/"
		for p := range s.known {
			if strings.HasPrefix(p, prefix) && sub.matcher.Matches(p) {
				gone = append(gone, p)
			}
		}
		return gone
	}

	if !sub.matcher.Matches(rel) {
		return nil
	}
	return []string{rel}
}

// resolve stats each path and turns it into an event, updating the known
// set so that New is accurate.
func (s *Source) resolve(paths []string) []engine.SourceEvent {
	sort.Strings(paths)
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]engine.SourceEvent, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(p)))
		switch {
		case err != nil:
			if !s.known[p] {
				continue
			}
			delete(s.known, p)
			batch = append(batch, engine.SourceEvent{Name: p})
		case info.Mode().IsRegular():
			batch = append(batch, engine.SourceEvent{
				Name:    p,
				Exists:  true,
				New:     !s.known[p],
				MTimeMs: info.ModTime().UnixMilli(),
			})
			s.known[p] = true
		}
	}
	return batch
}
