package source

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned when watching through a closed Watcher.
var ErrWatcherClosed = errors.New("source watcher is closed")

// Watcher drops line cache entries of files that change on disk.
//
// It watches the directory of every file the cache loads, since editors
// usually replace files instead of writing them in place.
type Watcher struct {
	mu sync.Mutex

	watcher *fsnotify.Watcher
	cache   *LineCache

	dirs  map[string]bool
	files map[string]bool

	invalidated chan string
	totalErrors int64
	lastError   error

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewWatcher creates a watcher and attaches it to cache.
func NewWatcher(cache *LineCache) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:     fsw,
		cache:       cache,
		dirs:        make(map[string]bool),
		files:       make(map[string]bool),
		invalidated: make(chan string, 64),
		closeCh:     make(chan struct{}),
	}
	cache.OnLoad(func(path string) {
		if err := w.Watch(path); err != nil && !errors.Is(err, ErrWatcherClosed) {
			w.recordError(err)
		}
	})

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Watch starts tracking path.
func (w *Watcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.files[path] {
		return nil
	}

	dir := filepath.Dir(path)
	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[path] = true
	return nil
}

// Invalidated delivers the paths whose cache entries were dropped. Sends never
// block; paths are discarded when nobody reads the channel.
func (w *Watcher) Invalidated() <-chan string {
	return w.invalidated
}

// Errors returns the number of watch errors and the last one.
func (w *Watcher) Errors() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return atomic.LoadInt64(&w.totalErrors), w.lastError
}

// Close stops the watcher and detaches it from the cache.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.cache.OnLoad(nil)
	w.closedWg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.recordError(err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	tracked := w.files[ev.Name]
	w.mu.Unlock()
	if !tracked {
		return
	}

	w.cache.Invalidate(ev.Name)

	select {
	case w.invalidated <- ev.Name:
	default:
	}
}

func (w *Watcher) recordError(err error) {
	atomic.AddInt64(&w.totalErrors, 1)
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
}
