package eval

import (
	"io"
	"sync/atomic"

	"github.com/l3aro/go-template-script/pkg/cache"
	"github.com/l3aro/go-template-script/pkg/value"
)

// DefaultCacheSize is the number of compiled expressions kept by default.
const DefaultCacheSize = 1024

// CacheStats extends the LRU statistics with compiler counters.
type CacheStats struct {
	cache.Stats
	Invalidations int64 `json:"invalidations"`
	Compiled      int64 `json:"compiled"`
}

// ExprCache holds compiled expression programs keyed by namespace and exact
// expression text. It is safe for concurrent use.
type ExprCache struct {
	lru           *cache.LRU[*Program]
	invalidations atomic.Int64
	compiled      atomic.Int64
}

// NewExprCache creates a cache holding up to size programs.
func NewExprCache(size int) *ExprCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &ExprCache{
		lru: cache.New(cache.Options[*Program]{
			MaxSize: size,
			SizeOf: func(p *Program) int {
				n := 16 * len(p.Code)
				for _, t := range p.Texts {
					n += len(t)
				}
				return n
			},
		}),
	}
}

func cacheKey(ns, expr string) string {
	return ns + "\x00" + expr
}

// program returns the compiled program for expr, compiling on a miss. It
// returns nil when expr has no compiled form.
func (c *ExprCache) program(ns, expr string, store *value.Store) *Program {
	key := cacheKey(ns, expr)
	p, ok := c.lru.Get(key)
	if ok && p.Compiled && !p.bind(store) {
		c.invalidations.Add(1)
		c.lru.Delete(key)
		ok = false
	}
	if !ok {
		p = Compile(ns, expr)
		c.compiled.Add(1)
		if p.Compiled {
			p.bind(store)
		}
		c.lru.Set(key, p)
	}
	if !p.Compiled {
		return nil
	}
	return p
}

// Len returns the number of cached programs.
func (c *ExprCache) Len() int { return c.lru.Len() }

// Clear removes every program.
func (c *ExprCache) Clear() { c.lru.Clear() }

// Stats returns hit, miss, eviction and invalidation counts.
func (c *ExprCache) Stats() CacheStats {
	return CacheStats{
		Stats:         c.lru.Stats(),
		Invalidations: c.invalidations.Load(),
		Compiled:      c.compiled.Load(),
	}
}

// Save writes the cached programs with msgpack.
func (c *ExprCache) Save(w io.Writer) error { return c.lru.Save(w) }

// Load replaces the cached programs with those read from r.
func (c *ExprCache) Load(r io.Reader) error { return c.lru.Load(r) }

// SaveFile writes the cache to path.
func (c *ExprCache) SaveFile(path string) error {
	return cache.PersistToFile(c.lru, path)
}

// LoadFile loads the cache from path. A missing file leaves it empty.
func (c *ExprCache) LoadFile(path string) error {
	return cache.LoadFromFile(c.lru, path)
}
