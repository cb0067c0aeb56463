package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"capd/internal/domain"
	"capd/internal/infra/rules"
	"capd/internal/infra/telemetry"
)

const defaultReloadDebounce = 200 * time.Millisecond

// Watcher reloads the rule specification when its file changes, swaps the
// catalog in the holder and reconciles the remote catalog with the new one.
type Watcher struct {
	builder  *Builder
	holder   *Holder
	path     string
	debounce time.Duration
	logger   *zap.Logger

	reloadMu sync.Mutex
	onReload []func(*Catalog)
}

func NewWatcher(builder *Builder, holder *Holder, path string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		builder:  builder,
		holder:   holder,
		path:     path,
		debounce: defaultReloadDebounce,
		logger:   logger.Named("catalog_watcher"),
	}
}

// OnReload registers fn to run with every catalog installed by a reload.
func (w *Watcher) OnReload(fn func(*Catalog)) {
	w.reloadMu.Lock()
	w.onReload = append(w.onReload, fn)
	w.reloadMu.Unlock()
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("watching rules", zap.String("path", w.path))

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rules watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !shouldReloadForPath(event.Name, w.path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timerChan(timer):
			timer = nil
			if err := w.Reload(ctx); err != nil {
				w.logger.Warn("rules reload failed", zap.Error(err))
			}
		}
	}
}

// Reload re-reads the rules file and applies the difference. A parse error
// keeps the current catalog.
func (w *Watcher) Reload(ctx context.Context) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	set, err := rules.Load(w.path, w.logger)
	if err != nil {
		return err
	}
	next := NewCatalog(set)
	prev := w.holder.Swap(next)

	added, changed, removed := diffCatalogs(prev, next)

	// Only what actually reached the remote catalog is retracted; every
	// entry of next that is not published afterwards is (re)published.
	published := make(map[domain.RegisteredEntry]struct{})
	for _, entry := range w.builder.Registered() {
		published[entry] = struct{}{}
	}
	var stale []domain.RegisteredEntry
	for _, group := range [][]domain.RuleEntry{changed, removed} {
		for _, entry := range group {
			key := registeredKey(entry)
			if _, ok := published[key]; ok {
				stale = append(stale, key)
				delete(published, key)
			}
		}
	}
	var pending []domain.RuleEntry
	for _, entry := range next.Entries() {
		if _, ok := published[registeredKey(entry)]; !ok {
			pending = append(pending, entry)
		}
	}

	w.builder.RetractEntries(ctx, stale)
	report := w.builder.Publish(ctx, pending)
	w.builder.observeCatalog(next)
	for _, fn := range w.onReload {
		fn(next)
	}

	w.logger.Info("catalog reloaded",
		telemetry.EventField(telemetry.EventCatalogReloaded),
		zap.Int("added", len(added)),
		zap.Int("changed", len(changed)),
		zap.Int("removed", len(removed)),
		zap.Int("published", len(report.Published)),
		zap.Int("failed", len(report.Failures)),
	)
	return nil
}

func registeredKey(entry domain.RuleEntry) domain.RegisteredEntry {
	return domain.RegisteredEntry{Kind: entry.Kind, Name: entry.Definition.Name}
}

func diffCatalogs(prev, next *Catalog) (added, changed, removed []domain.RuleEntry) {
	for _, entry := range next.Entries() {
		old, ok := prev.Lookup(entry.Kind, entry.Definition.Name)
		switch {
		case !ok:
			added = append(added, entry)
		case !cmp.Equal(old, entry.Definition):
			changed = append(changed, entry)
		}
	}
	for _, entry := range prev.Entries() {
		if _, ok := next.Lookup(entry.Kind, entry.Definition.Name); !ok {
			removed = append(removed, entry)
		}
	}
	return added, changed, removed
}

func shouldReloadForPath(path string, rulesPath string) bool {
	if path == "" || rulesPath == "" {
		return false
	}
	return filepath.Clean(path) == filepath.Clean(rulesPath)
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
