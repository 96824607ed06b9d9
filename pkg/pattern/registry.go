package pattern

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/fsnotify.v1"
)

// reloadDelay collects the burst of events an editor produces for one save
// into a single reload.
const reloadDelay = 50 * time.Millisecond

// Registry holds compiled rule tables keyed by format ID and can reload them
// from a directory when rule files change.
//
// The registry swaps whole RuleSets; a RuleSet handed out by Get keeps
// working unchanged after a reload.
type Registry struct {
	mu    sync.RWMutex
	sets  map[string]*RuleSet
	files map[string]string // path -> format ID
	dir   string

	onChange func(event string, rs *RuleSet)
	logger   *slog.Logger

	watchMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRegistry creates an empty registry. A nil logger discards log output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		sets:   make(map[string]*RuleSet),
		files:  make(map[string]string),
		logger: logger,
	}
}

// NewRegistryWithDirectory creates a registry and loads rule files from dir.
func NewRegistryWithDirectory(dir string, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.LoadDirectory(dir); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds a compiled rule table, replacing any table with the same
// format ID unless both carry the same version.
func (r *Registry) Register(rs *RuleSet) error {
	if rs == nil {
		return errors.New("rule set cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sets[rs.FormatID()]; ok && existing.Version() == rs.Version() {
		return fmt.Errorf("rule set %q version %s already registered", rs.FormatID(), rs.Version())
	}
	r.sets[rs.FormatID()] = rs
	return nil
}

// Get returns a rule table by format ID.
func (r *Registry) Get(formatID string) (*RuleSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sets[formatID]
	return rs, ok
}

// List returns all registered rule tables ordered by format ID.
func (r *Registry) List() []*RuleSet {
	r.mu.RLock()
	sets := make([]*RuleSet, 0, len(r.sets))
	for _, rs := range r.sets {
		sets = append(sets, rs)
	}
	r.mu.RUnlock()

	sort.Slice(sets, func(i, j int) bool { return sets[i].FormatID() < sets[j].FormatID() })
	return sets
}

// Count returns the number of registered rule tables.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

// LoadDirectory loads every .yaml and .yml file in dir and remembers dir for
// Watch. A missing directory loads nothing. Files that fail to load are
// reported together; the others stay registered.
func (r *Registry) LoadDirectory(dir string) error {
	r.dir = dir

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading rule directory %s: %w", dir, err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("loading rule files: %w", err)
	}
	return nil
}

// LoadFile compiles the rule file at path and registers it, replacing any
// table with the same format ID.
func (r *Registry) LoadFile(path string) error {
	rs, err := LoadRuleSet(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sets[rs.FormatID()] = rs
	r.files[path] = rs.FormatID()
	r.mu.Unlock()

	r.logger.Debug("loaded rule file", "path", path, "format_id", rs.FormatID(), "version", rs.Version(), "rules", rs.Len())
	return nil
}

// SetOnChange sets the callback run after a watched rule file is created,
// modified or removed. The event is "create", "modify" or "remove"; for
// removals the rule set is nil. Set it before Watch.
func (r *Registry) SetOnChange(fn func(event string, rs *RuleSet)) {
	r.onChange = fn
}

// Watch reloads rule files of the registry directory as they change, until
// StopWatch. A file that no longer compiles keeps its last good table.
func (r *Registry) Watch() error {
	if r.dir == "" {
		return errors.New("no rule directory to watch")
	}

	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.cancel != nil {
		return errors.New("registry is already watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", r.dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.watchLoop(ctx, watcher, r.done)
	r.logger.Debug("watching rule directory", "dir", r.dir)
	return nil
}

// StopWatch ends Watch and waits for the watcher to close.
func (r *Registry) StopWatch() {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel, r.done = nil, nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan<- struct{}) {
	defer close(done)
	defer watcher.Close()

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if isRuleFile(event.Name) {
				pending[event.Name] |= event.Op
				timer.Reset(reloadDelay)
			}

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				r.apply(path, pending[path])
			}
			clear(pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("rule watcher error", "error", err)
		}
	}
}

// apply settles the accumulated events of one file against its state on
// disk.
func (r *Registry) apply(path string, op fsnotify.Op) {
	if _, err := os.Stat(path); err != nil {
		r.forget(path)
		return
	}

	event := "modify"
	if op&fsnotify.Create != 0 {
		event = "create"
	}
	if err := r.LoadFile(path); err != nil {
		r.logger.Warn("rule file not reloaded", "path", path, "error", err)
		return
	}

	r.mu.RLock()
	rs := r.sets[r.files[path]]
	r.mu.RUnlock()

	r.logger.Info("rule file reloaded", "path", path, "event", event, "version", rs.Version())
	if r.onChange != nil {
		r.onChange(event, rs)
	}
}

func (r *Registry) forget(path string) {
	r.mu.Lock()
	formatID, known := r.files[path]
	if known {
		delete(r.files, path)
		delete(r.sets, formatID)
	}
	r.mu.Unlock()

	if !known {
		return
	}
	r.logger.Info("rule file removed", "path", path, "format_id", formatID)
	if r.onChange != nil {
		r.onChange("remove", nil)
	}
}

func isRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
