// Package identity keeps the in-process cache of face signatures seen so far
// and decides whether a new crop is a face already known to the session.
package identity

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/andresmejia3/facecache/internal/signature"
)

// Strategy selects how the cache is scanned for a match.
type Strategy int

const (
	// FirstMatch stops at the first cached entry that passes the ratio test.
	FirstMatch Strategy = iota
	// BestMatch scans every entry and reports the highest scoring one.
	BestMatch
)

func (s Strategy) String() string {
	switch s {
	case FirstMatch:
		return "first"
	case BestMatch:
		return "best"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps "first" / "best" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "first":
		return FirstMatch, nil
	case "best":
		return BestMatch, nil
	}
	return FirstMatch, fmt.Errorf("unknown match strategy %q (use 'first' or 'best')", s)
}

// Cache is the ordered, append-only store of known face signatures.
// An entry's identity is its insertion index. The only removal is Clear.
type Cache struct {
	mu       sync.Mutex
	entries  []signature.Signature
	params   signature.Params
	strategy Strategy
	log      *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithParams sets the ratio test thresholds.
func WithParams(p signature.Params) Option {
	return func(c *Cache) {
		c.params = p
	}
}

// WithStrategy sets the scan strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Cache) {
		c.strategy = s
	}
}

// WithLogger sets the logger used for debug tracing of decisions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		params:   signature.DefaultParams(),
		strategy: FirstMatch,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MatchOrAdmit reports whether sig matches a cached face. When nothing matches,
// sig is appended as a new entry and false is returned.
func (c *Cache) MatchOrAdmit(sig signature.Signature) bool {
	_, known := c.Lookup(sig)
	return known
}

// Lookup is MatchOrAdmit that also returns the index of the matched entry, or of
// the newly admitted one when the face was not known.
func (c *Cache) Lookup(sig signature.Signature) (int, bool) {
	// The scan and the append form one critical section so two concurrent callers
	// cannot both admit the same face.
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, score, ok := c.find(sig); ok {
		c.log.Debug("face matched", "entry", idx, "score", score, "descriptors", sig.Len())
		return idx, true
	}

	c.entries = append(c.entries, sig)
	idx := len(c.entries) - 1
	c.log.Debug("face admitted", "entry", idx, "descriptors", sig.Len(), "cache_size", len(c.entries))
	return idx, false
}

func (c *Cache) find(sig signature.Signature) (int, float64, bool) {
	best, bestScore := -1, 0.0
	for i, entry := range c.entries {
		res := signature.Compare(sig, entry, c.params)
		if !res.Matched {
			continue
		}
		if c.strategy == FirstMatch {
			return i, res.Score(), true
		}
		if best == -1 || res.Score() > bestScore {
			best, bestScore = i, res.Score()
		}
	}
	return best, bestScore, best != -1
}

// Clear discards every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Params returns the thresholds in use.
func (c *Cache) Params() signature.Params {
	return c.params
}

// Strategy returns the scan strategy in use.
func (c *Cache) Strategy() Strategy {
	return c.strategy
}
