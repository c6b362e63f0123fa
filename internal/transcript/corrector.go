package transcript

import (
	"strings"

	"github.com/MrWong99/bacakata/internal/transcript/dictcorrect"
)

const defaultMaxWords = 50

// PipelineOption is a functional option for configuring a [FragmentPipeline].
type PipelineOption func(*FragmentPipeline)

// WithWordCorrector sets the per-token corrector. When nil (the default),
// tokens pass through unchanged and only the token cap is applied.
func WithWordCorrector(c WordCorrector) PipelineOption {
	return func(p *FragmentPipeline) {
		p.words = c
	}
}

// WithMaxWords sets the maximum number of tokens kept per fragment.
// Values <= 0 are ignored. Default: 50.
func WithMaxWords(n int) PipelineOption {
	return func(p *FragmentPipeline) {
		if n > 0 {
			p.maxWords = n
		}
	}
}

// FragmentPipeline is the word-by-word implementation of [Pipeline].
//
// It holds no mutable state of its own; concurrency safety is that of the
// configured [WordCorrector].
type FragmentPipeline struct {
	words    WordCorrector
	maxWords int
}

// Ensure FragmentPipeline satisfies the Pipeline interface at compile time.
var _ Pipeline = (*FragmentPipeline)(nil)

// NewPipeline constructs a [FragmentPipeline] with the supplied options.
func NewPipeline(opts ...PipelineOption) *FragmentPipeline {
	p := &FragmentPipeline{
		maxWords: defaultMaxWords,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// MaxWords returns the per-fragment token cap.
func (p *FragmentPipeline) MaxWords() int {
	return p.maxWords
}

// CorrectFragment returns only the corrected text of [FragmentPipeline.Correct].
func (p *FragmentPipeline) CorrectFragment(text string) string {
	return p.Correct(text).Corrected
}

// Correct splits text on single spaces, keeps the first MaxWords tokens,
// corrects each token in order and joins them back with single spaces.
//
// Splitting is on exactly one space, so runs of spaces yield empty tokens
// that are kept in place; the join therefore reproduces the original
// spacing of the retained part.
func (p *FragmentPipeline) Correct(text string) CorrectedFragment {
	result := CorrectedFragment{
		Original:    text,
		Corrections: []Correction{},
	}

	tokens := strings.Split(text, " ")
	if len(tokens) > p.maxWords {
		result.Dropped = len(tokens) - p.maxWords
		tokens = tokens[:p.maxWords]
	}
	result.Words = len(tokens)

	if p.words == nil {
		result.Corrected = strings.Join(tokens, " ")
		return result
	}

	out := make([]string, len(tokens))
	for i, tok := range tokens {
		r := p.words.Lookup(tok)
		out[i] = r.Word
		switch r.Source {
		case dictcorrect.SourceCache:
			result.CacheHits++
		case dictcorrect.SourceScan:
			result.Scans++
		}
		if r.Word != tok {
			result.Corrections = append(result.Corrections, Correction{
				Original:   tok,
				Corrected:  r.Word,
				Similarity: r.Score,
			})
		}
	}

	result.Corrected = strings.Join(out, " ")
	return result
}
