// Package transcript defines the fragment correction pipeline used by
// bacakata to clean up OCR output before it is narrated.
//
// Raw recognizer output from a live camera is noisy: characters are confused
// ("kuc1ng"), letters are dropped ("makn"), and the same sign is read slightly
// differently on every frame. The [FragmentPipeline] splits a fragment into
// space-separated tokens, caps the number of tokens per frame, and runs each
// token through a [WordCorrector] (normally a dictcorrect.Corrector backed by
// the session dictionary).
//
// Each [Correction] records one substitution and its similarity score, so
// callers can log, count or display what was changed.
package transcript

import "github.com/MrWong99/bacakata/internal/transcript/dictcorrect"

// Correction captures a single word-level substitution made by the pipeline.
type Correction struct {
	// Original is the token as produced by the recognizer.
	Original string

	// Corrected is the dictionary word that replaced it.
	Corrected string

	// Similarity is the score in [0, 100] between Corrected and the
	// lowercased Original.
	Similarity int
}

// CorrectedFragment is the output of a [Pipeline.Correct] call.
type CorrectedFragment struct {
	// Original is the fragment text as received.
	Original string

	// Corrected is the retained tokens, corrected and joined with single
	// spaces.
	Corrected string

	// Words is the number of tokens retained after the per-frame cap.
	Words int

	// Dropped is the number of tokens discarded by the per-frame cap.
	Dropped int

	// CacheHits is the number of tokens answered from the correction cache.
	CacheHits int

	// Scans is the number of tokens that required a full dictionary scan.
	Scans int

	// Corrections is the ordered list of substitutions applied to produce
	// Corrected. An empty (non-nil) slice means nothing was changed.
	Corrections []Correction
}

// Pipeline corrects whole fragments.
type Pipeline interface {
	// Correct processes text and returns the corrected fragment together
	// with an itemised record of every substitution. It never fails.
	Correct(text string) CorrectedFragment
}

// WordCorrector resolves a single token. [dictcorrect.Corrector] is the
// production implementation.
type WordCorrector interface {
	// Lookup returns the corrected token, its similarity score, and whether
	// the answer came from a short-word bypass, the cache, or a scan.
	Lookup(word string) dictcorrect.Result
}

// Ensure dictcorrect.Corrector satisfies WordCorrector at compile time.
var _ WordCorrector = (*dictcorrect.Corrector)(nil)
