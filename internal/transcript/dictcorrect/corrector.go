// Package dictcorrect corrects single OCR words against a reference
// [dictionary.Dictionary] using edit distance.
//
// For every word longer than the minimum length the [Corrector] scans the
// whole dictionary for the entry with the smallest edit distance to the
// lowercased word (ties go to the earliest entry). The entry replaces the word
// only when its similarity is strictly above the acceptance threshold.
// Results, including "no correction", are memoised per raw word so repeated
// jittery tokens cost a single map lookup.
package dictcorrect

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/bacakata/internal/dictionary"
	"github.com/MrWong99/bacakata/internal/transcript/fuzzy"
)

const (
	defaultMinLength = 3
	defaultThreshold = 80
)

// Source says how a [Result] was produced.
type Source int

const (
	// SourceShort means the word was at or below the minimum length and was
	// returned untouched without a lookup.
	SourceShort Source = iota

	// SourceCache means the result came from the correction cache.
	SourceCache

	// SourceScan means the dictionary was scanned for this word.
	SourceScan
)

// String returns a short label for s, suitable for logs and metric attributes.
func (s Source) String() string {
	switch s {
	case SourceShort:
		return "short"
	case SourceCache:
		return "cache"
	case SourceScan:
		return "scan"
	}
	return "unknown"
}

// Result is the outcome of [Corrector.Lookup].
type Result struct {
	// Word is the corrected word, or the input when not corrected.
	Word string

	// Score is the similarity of the best dictionary entry to the lowercased
	// input. Zero for short words and for an empty dictionary.
	Score int

	// Source says whether the result was short-circuited, cached or scanned.
	Source Source
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithDistance replaces the edit distance used for both the dictionary scan
// and the acceptance score. Default: [fuzzy.Distance].
func WithDistance(fn fuzzy.DistanceFunc) Option {
	return func(c *Corrector) {
		if fn != nil {
			c.dist = fn
		}
	}
}

// WithMinLength sets the rune length at or below which words are returned
// unchanged. Default: 3.
func WithMinLength(n int) Option {
	return func(c *Corrector) {
		c.minLength = n
	}
}

// WithThreshold sets the similarity a dictionary entry must strictly exceed
// to replace the word. Default: 80.
func WithThreshold(score int) Option {
	return func(c *Corrector) {
		c.threshold = score
	}
}

// WithCache sets the correction cache. Default: a new [MapCache].
func WithCache(cache Cache) Option {
	return func(c *Corrector) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithSynchronized makes the Corrector safe for concurrent use: the cache
// becomes a [SyncCache] (unless one was set explicitly with [WithCache]) and
// concurrent scans for the same raw word are collapsed into one.
func WithSynchronized() Option {
	return func(c *Corrector) {
		c.flight = &singleflight.Group{}
	}
}

// Corrector maps raw words to dictionary words. It is bound to one
// [dictionary.Dictionary] for its lifetime and owns its cache exclusively.
//
// Without [WithSynchronized] a Corrector must not be used from more than one
// goroutine at a time.
type Corrector struct {
	dict      *dictionary.Dictionary
	dist      fuzzy.DistanceFunc
	cache     Cache
	minLength int
	threshold int
	flight    *singleflight.Group
}

// New returns a Corrector over dict. A nil or empty dict is allowed; every
// word is then returned unchanged.
func New(dict *dictionary.Dictionary, opts ...Option) *Corrector {
	c := &Corrector{
		dict:      dict,
		dist:      fuzzy.Distance,
		minLength: defaultMinLength,
		threshold: defaultThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	if c.cache == nil {
		if c.flight != nil {
			c.cache = NewSyncCache()
		} else {
			c.cache = NewMapCache()
		}
	}
	return c
}

// Correct returns the corrected form of word. It never fails: when no
// confident match exists the original word is returned.
func (c *Corrector) Correct(word string) string {
	return c.Lookup(word).Word
}

// Lookup is like [Corrector.Correct] but also reports the score and how the
// result was obtained.
func (c *Corrector) Lookup(word string) Result {
	if utf8.RuneCountInString(word) <= c.minLength {
		return Result{Word: word, Source: SourceShort}
	}

	if e, ok := c.cache.Get(word); ok {
		return Result{Word: e.Word, Score: e.Score, Source: SourceCache}
	}

	if c.flight == nil {
		e := c.scan(word)
		c.cache.Put(word, e)
		return Result{Word: e.Word, Score: e.Score, Source: SourceScan}
	}

	scanned := false
	v, _, _ := c.flight.Do(word, func() (any, error) {
		if e, ok := c.cache.Get(word); ok {
			return e, nil
		}
		e := c.scan(word)
		c.cache.Put(word, e)
		scanned = true
		return e, nil
	})
	e := v.(Entry)
	src := SourceCache
	if scanned {
		src = SourceScan
	}
	return Result{Word: e.Word, Score: e.Score, Source: src}
}

// CacheLen returns the number of memoised words.
func (c *Corrector) CacheLen() int {
	return c.cache.Len()
}

// Dictionary returns the dictionary the Corrector is bound to.
func (c *Corrector) Dictionary() *dictionary.Dictionary {
	return c.dict
}

// scan finds the nearest dictionary entry to word and decides whether it is
// close enough to replace it.
func (c *Corrector) scan(word string) Entry {
	lower := strings.ToLower(word)

	best, bestDist := "", -1
	c.dict.Each(func(_ int, entry string) bool {
		d := c.dist(entry, lower)
		if bestDist < 0 || d < bestDist {
			best, bestDist = entry, d
		}
		return bestDist != 0
	})

	if bestDist < 0 {
		return Entry{Word: word}
	}

	score := fuzzy.Score(c.dist, best, lower)
	if score > c.threshold {
		return Entry{Word: best, Score: score}
	}
	return Entry{Word: word, Score: score}
}
