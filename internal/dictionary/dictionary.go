// Package dictionary holds the fixed reference word list used for fuzzy
// correction. A [Dictionary] is loaded once per session and is read-only
// afterwards, so it is safe for concurrent use.
package dictionary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Dictionary is an immutable, ordered sequence of lowercase reference words.
// Order matters: the corrector breaks distance ties by first occurrence.
type Dictionary struct {
	words []string
}

// New returns a Dictionary over a lowercased copy of words, matching what
// [Load] produces.
func New(words []string) *Dictionary {
	w := make([]string, len(words))
	for i, word := range words {
		w[i] = strings.ToLower(word)
	}
	return &Dictionary{words: w}
}

// Len returns the number of entries, duplicates included.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.words)
}

// Empty reports whether the dictionary has no entries. A nil Dictionary is
// empty.
func (d *Dictionary) Empty() bool {
	return d.Len() == 0
}

// Words returns a copy of the entries in order.
func (d *Dictionary) Words() []string {
	if d == nil {
		return nil
	}
	w := make([]string, len(d.words))
	copy(w, d.words)
	return w
}

// Each calls fn for every entry in order until fn returns false.
func (d *Dictionary) Each(fn func(i int, word string) bool) {
	if d == nil {
		return
	}
	for i, w := range d.words {
		if !fn(i, w) {
			return
		}
	}
}

// Load reads one word per line from r. Surrounding whitespace is trimmed,
// blank lines and lines starting with '#' are skipped, and every entry is
// lowercased.
func Load(r io.Reader) (*Dictionary, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, strings.ToLower(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dictionary: read: %w", err)
	}
	return &Dictionary{words: words}, nil
}

// LoadFile loads the dictionary at path. When the file does not exist, an
// empty Dictionary is returned together with an error wrapping
// [os.ErrNotExist], so callers can log the problem and continue without
// corrections.
func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		empty := &Dictionary{}
		return empty, fmt.Errorf("dictionary: open %q: %w", path, err)
	}
	defer f.Close()

	d, err := Load(f)
	if err != nil {
		return &Dictionary{}, fmt.Errorf("dictionary: load %q: %w", path, err)
	}
	return d, nil
}
