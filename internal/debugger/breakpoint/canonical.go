package breakpoint

import (
	"path/filepath"
	"strings"
	"sync"
)

// Canonicalizer turns file names into the canonical form used as breakpoint keys.
//
// Pseudo file names such as "<string>" are returned unchanged. Every other path
// is made absolute, cleaned and, when the file exists, symlink-resolved. Results
// are cached, so a name is resolved once per process.
type Canonicalizer struct {
	mu    sync.Mutex
	cache map[string]string
}

// NewCanonicalizer creates an empty canonicalizer.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{cache: make(map[string]string)}
}

// Canonical returns the canonical form of path.
func (c *Canonicalizer) Canonical(path string) string {
	if path == "" || IsPseudoFile(path) {
		return path
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if canon, ok := c.cache[path]; ok {
		return canon
	}

	canon, err := filepath.Abs(path)
	if err != nil {
		canon = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(canon); err == nil {
		canon = resolved
	}

	c.cache[path] = canon
	return canon
}

// Forget drops all cached resolutions.
func (c *Canonicalizer) Forget() {
	c.mu.Lock()
	c.cache = make(map[string]string)
	c.mu.Unlock()
}

// IsPseudoFile reports whether name is a bracketed pseudo file name like "<string>".
func IsPseudoFile(name string) bool {
	return len(name) >= 2 && strings.HasPrefix(name, "<") && strings.HasSuffix(name, ">")
}
