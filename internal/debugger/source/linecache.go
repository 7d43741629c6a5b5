package source

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dshills/stepdb/internal/debugger/breakpoint"
)

// LoadError reports a source file that could not be turned into display lines.
type LoadError struct {
	// Path is the file that failed.
	Path string
	// Op is "read" or "decode".
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

type cacheEntry struct {
	lines   []string
	err     error
	size    int64
	modTime time.Time
}

// LineCache caches decoded source lines per file.
//
// Entries are dropped by Clear, Invalidate, or Check when the file on disk no
// longer matches the cached size and modification time. A Watcher can be
// attached to invalidate entries as soon as files change.
type LineCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	onLoad  func(path string)
}

// NewLineCache creates an empty cache.
func NewLineCache() *LineCache {
	return &LineCache{entries: make(map[string]*cacheEntry)}
}

// OnLoad registers fn to be called, outside the cache lock, whenever a file is
// read from disk.
func (c *LineCache) OnLoad(fn func(path string)) {
	c.mu.Lock()
	c.onLoad = fn
	c.mu.Unlock()
}

// Lines returns the decoded lines of path. Read and decode failures are
// returned as *LoadError and cached until the entry is invalidated.
func (c *LineCache) Lines(path string) ([]string, error) {
	entry, loaded := c.entry(path)
	if loaded {
		c.notifyLoad(path)
	}
	return entry.lines, entry.err
}

// Available reports whether path can be read. Files that can be read but not
// decoded are available; their providers report the decode error.
func (c *LineCache) Available(path string) bool {
	if path == "" || breakpoint.IsPseudoFile(path) {
		return false
	}
	_, err := c.Lines(path)
	if err == nil {
		return true
	}
	if le, ok := err.(*LoadError); ok && le.Op == "decode" {
		return true
	}
	return false
}

// HasLine reports whether path has the given 1-based line.
func (c *LineCache) HasLine(path string, line int) bool {
	lines, err := c.Lines(path)
	return err == nil && line >= 1 && line <= len(lines)
}

func (c *LineCache) entry(path string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		return e, false
	}

	e := load(path)
	c.entries[path] = e
	return e, e.err == nil || isDecodeError(e.err)
}

func (c *LineCache) notifyLoad(path string) {
	c.mu.Lock()
	fn := c.onLoad
	c.mu.Unlock()
	if fn != nil {
		fn(path)
	}
}

func load(path string) *cacheEntry {
	info, err := os.Stat(path)
	if err != nil {
		return &cacheEntry{err: &LoadError{Path: path, Op: "read", Err: err}}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &cacheEntry{err: &LoadError{Path: path, Op: "read", Err: err}}
	}

	e := &cacheEntry{size: info.Size(), modTime: info.ModTime()}
	text, err := decodeSource(data)
	if err != nil {
		e.err = &LoadError{Path: path, Op: "decode", Err: err}
		return e
	}
	e.lines = splitLines(text)
	return e
}

func isDecodeError(err error) bool {
	le, ok := err.(*LoadError)
	return ok && le.Op == "decode"
}

// Invalidate drops the cached entry of path.
func (c *LineCache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Check drops every entry whose file changed on disk since it was cached.
func (c *LineCache) Check() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, e := range c.entries {
		info, err := os.Stat(path)
		if err != nil || info.Size() != e.size || !info.ModTime().Equal(e.modTime) {
			delete(c.entries, path)
		}
	}
}

// Clear drops all entries.
func (c *LineCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Cached reports whether path currently has an entry.
func (c *LineCache) Cached(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	return ok
}
