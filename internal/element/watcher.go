package element

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/metadata"
)

// canonicalNames are the files whose out-of-band modification triggers
// artifact regeneration.
var canonicalNames = map[string]bool{
	"metadata.json":  true,
	"psets.json":     true,
	"materials.json": true,
	"shape.json":     true,
	"spatial.json":   true,
}

// Watcher regenerates the derived Markdown surface of an element folder when
// one of its canonical JSON files changes outside the store's own write
// path (an external editor, a sync tool). Events are debounced per folder so
// a burst of writes produces one regeneration.
type Watcher struct {
	store    *Store
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher over the store's elements directory.
func NewWatcher(store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		store:    store,
		fsw:      fsw,
		debounce: 200 * time.Millisecond,
		pending:  map[string]*time.Timer{},
		done:     make(chan struct{}),
	}
	return w, nil
}

// Start registers the directory tree and begins processing events.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.store.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Close stops event processing and releases the underlying watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = map[string]*time.Timer{}
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryElement).Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New directories (fresh element folders, their subfolders) join the
	// watch set.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				logging.Get(logging.CategoryElement).Debugf("failed to watch %s: %v", event.Name, err)
			}
		}
	}

	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}
	base := filepath.Base(event.Name)
	if !canonicalNames[base] || strings.HasPrefix(base, ".") {
		return
	}

	folder := w.elementFolderOf(event.Name)
	if folder == "" {
		return
	}
	w.schedule(folder)
}

// elementFolderOf maps a changed file path back to its element folder.
func (w *Watcher) elementFolderOf(path string) string {
	rel, err := filepath.Rel(w.store.Root(), path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 || !strings.HasPrefix(parts[0], FolderPrefix) {
		return ""
	}
	return filepath.Join(w.store.Root(), parts[0])
}

func (w *Watcher) schedule(folder string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[folder]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[folder] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, folder)
		w.mu.Unlock()

		if _, err := metadata.Generate(folder, metadata.Options{}); err != nil {
			logging.Get(logging.CategoryElement).Warnf("watcher regeneration failed for %s: %v", folder, err)
			return
		}
		logging.Get(logging.CategoryElement).Debugf("regenerated artifacts for %s", filepath.Base(folder))
	})
}
