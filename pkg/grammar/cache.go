package grammar

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/paninifs/engine/pkg/store"
)

// DefaultCacheSize bounds the compiled-grammar cache.
const DefaultCacheSize = 128

// Cache memoizes compilation keyed by grammar hash. Compiled grammars
// are immutable, so a cached entry is safe to hand to any number of
// concurrent executions, and the whole cache is safe to discard at any
// time.
type Cache struct {
	store *store.Store
	lru   *lru.Cache[string, *Compiled]
}

// NewCache creates a compiled-grammar cache over the store. size <= 0
// falls back to DefaultCacheSize.
func NewCache(s *store.Store, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	inner, err := lru.New[string, *Compiled](size)
	if err != nil {
		return nil, fmt.Errorf("creating grammar cache: %w", err)
	}
	return &Cache{store: s, lru: inner}, nil
}

// Get returns the compiled grammar for an exact hash, loading and
// compiling it on first use. Concurrent callers may compile the same
// grammar once each; last write wins and both results are equivalent.
func (c *Cache) Get(exact string) (*Compiled, error) {
	if compiled, ok := c.lru.Get(exact); ok {
		return compiled, nil
	}

	raw, _, err := c.store.Get(exact, store.TypeGrammar)
	if err != nil {
		return nil, err
	}
	compiled, err := Compile(c.store, raw)
	if err != nil {
		return nil, err
	}

	c.lru.Add(exact, compiled)
	return compiled, nil
}
