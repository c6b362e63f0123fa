// Package fuzzy implements the string closeness primitives shared by the
// dictionary corrector and the narration gate.
//
// Two measures are provided:
//
//  1. [Distance]: the Levenshtein edit distance (insertions, deletions and
//     substitutions, each of cost 1), computed by
//     [github.com/antzucaro/matchr] over runes.
//
//  2. [Similarity]: a normalised score in [0, 100] derived from the edit
//     distance and the length of the longer string. 100 means identical.
//
// Both are pure functions and safe for concurrent use. [Score] accepts an
// arbitrary [DistanceFunc] so callers can instrument or replace the distance.
package fuzzy

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// MaxScore is the similarity of two identical strings.
const MaxScore = 100

// DistanceFunc computes an edit distance between a and b.
type DistanceFunc func(a, b string) int

// Distance returns the minimum number of single-rune insertions, deletions
// or substitutions needed to turn a into b.
func Distance(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// Similarity returns the closeness of a and b in [0, 100] using [Distance].
// Two empty strings are fully similar.
func Similarity(a, b string) int {
	return Score(Distance, a, b)
}

// Score computes floor((L-d)*100/L) where L is the rune length of the longer
// string and d = dist(longer, shorter). When both strings are empty the
// result is [MaxScore].
func Score(dist DistanceFunc, a, b string) int {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longer, shorter, l := a, b, la
	if lb > la {
		longer, shorter, l = b, a, lb
	}
	if l == 0 {
		return MaxScore
	}

	d := dist(longer, shorter)
	if d > l {
		d = l
	}
	return (l - d) * MaxScore / l
}
