// Package token approximates token counts for arbitrary text. Counts are
// estimation-grade (budget planning, compaction thresholds), not billing-grade:
// the baseline is a per-model-family characters-per-token ratio with a fixed
// inflation for code and structured content, which tokenize less efficiently
// than prose.
package token

import (
	"container/list"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/parley-ai/parley/internal/registry"
)

// DefaultCacheCapacity bounds the estimate cache.
const DefaultCacheCapacity = 1024

// Inflation factors for non-prose content.
const (
	codeInflation       = 1.2
	structuredInflation = 1.15
)

// Estimator estimates token counts using registry profiles, with a bounded
// LRU cache keyed by (text hash, model). Safe for concurrent use.
type Estimator struct {
	reg *registry.Registry

	mu    sync.Mutex
	cache map[cacheKey]*list.Element
	order *list.List // front = most recently used
	cap   int
}

type cacheKey struct {
	textHash uint64
	model    string
}

type cacheEntry struct {
	key    cacheKey
	tokens int
}

// NewEstimator creates an estimator. capacity <= 0 uses DefaultCacheCapacity.
func NewEstimator(reg *registry.Registry, capacity int) *Estimator {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Estimator{
		reg:   reg,
		cache: make(map[cacheKey]*list.Element, capacity),
		order: list.New(),
		cap:   capacity,
	}
}

// Estimate returns the approximate token count of text for the given model.
// Empty text is always 0. Never fails regardless of input size.
func (e *Estimator) Estimate(text, model string) int {
	if text == "" {
		return 0
	}

	key := cacheKey{textHash: hashText(text), model: model}

	e.mu.Lock()
	if el, ok := e.cache[key]; ok {
		e.order.MoveToFront(el)
		tokens := el.Value.(*cacheEntry).tokens
		e.mu.Unlock()
		return tokens
	}
	e.mu.Unlock()

	profile, _ := e.reg.Lookup(model)
	tokens := estimateRaw(text, profile.CharsPerToken)

	e.mu.Lock()
	if el, ok := e.cache[key]; ok {
		// Another goroutine computed it while we were estimating.
		e.order.MoveToFront(el)
	} else {
		e.cache[key] = e.order.PushFront(&cacheEntry{key: key, tokens: tokens})
		for len(e.cache) > e.cap {
			oldest := e.order.Back()
			e.order.Remove(oldest)
			delete(e.cache, oldest.Value.(*cacheEntry).key)
		}
	}
	e.mu.Unlock()

	return tokens
}

// CacheLen reports the current cache size (for tests and diagnostics).
func (e *Estimator) CacheLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

func estimateRaw(text string, charsPerToken float64) int {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	tokens := float64(len(text)) / charsPerToken

	if IsCode(text) {
		tokens *= codeInflation
	}
	if isStructured(text) {
		tokens *= structuredInflation
	}
	return int(tokens)
}

func hashText(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// codeIndicators are substrings whose presence classifies text as code.
var codeIndicators = []string{
	"func ", "def ", "class ", "import ", "package ",
	"const ", "let ", "var ", "function", "{", "}", "()",
	"=>", "//", "/*",
}

// IsCode reports whether text looks like source code rather than prose.
// Shared with the compressor so both components agree on classification.
func IsCode(text string) bool {
	for _, ind := range codeIndicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

var structuredIndicators = []string{`{"`, `"}`, "</", "/>", "<?xml"}

func isStructured(text string) bool {
	for _, ind := range structuredIndicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}
