// Package command detects spoken control phrases in final transcripts.
//
// Recognized speech is noisy: "stop listening" may come back as
// "stop listening." or "Stop, listening". The detector therefore combines
// exact normalized comparison with Double Metaphone phonetic overlap and
// Jaro-Winkler similarity, so a phrase still matches through mild
// transcription damage without firing on ordinary conversation.
package command

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultSimilarityThreshold = 0.88

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithSimilarityThreshold sets the minimum Jaro-Winkler score a transcript
// must reach against a configured phrase. Default: 0.88.
func WithSimilarityThreshold(threshold float64) Option {
	return func(d *Detector) {
		d.threshold = threshold
	}
}

// Detector matches final transcripts against a fixed set of stop phrases.
// It is read-only after construction and safe for concurrent use.
type Detector struct {
	phrases   []string
	codes     [][]string
	threshold float64
}

// NewDetector builds a detector for the given phrases. Phrases are
// normalized to lowercase; blank entries are dropped. A detector with no
// phrases matches nothing.
func NewDetector(phrases []string, opts ...Option) *Detector {
	d := &Detector{threshold: defaultSimilarityThreshold}
	for _, p := range phrases {
		norm := normalize(p)
		if norm == "" {
			continue
		}
		d.phrases = append(d.phrases, norm)
		d.codes = append(d.codes, phoneticCodes(norm))
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Matches reports whether text is one of the configured phrases. A match
// requires either exact equality after normalization, or phonetic overlap
// on every phrase word combined with a Jaro-Winkler score above the
// threshold. Longer transcripts that merely contain a phrase do not match:
// a command is an utterance, not a substring.
func (d *Detector) Matches(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return false
	}

	textCodes := phoneticCodes(norm)

	for i, phrase := range d.phrases {
		if norm == phrase {
			return true
		}
		if !codesCover(d.codes[i], textCodes) {
			continue
		}
		if matchr.JaroWinkler(norm, phrase, false) >= d.threshold {
			return true
		}
	}
	return false
}

// normalize lowercases text and strips punctuation so that "Stop,
// listening." and "stop listening" compare equal.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '.' || r == '!' || r == '?':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// Other runes (apostrophes, accents) pass through so
			// non-ASCII phrases still normalize consistently.
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// phoneticCodes returns the primary Double Metaphone code for each word.
func phoneticCodes(phrase string) []string {
	words := strings.Fields(phrase)
	codes := make([]string, 0, len(words))
	for _, w := range words {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes = append(codes, p)
		} else if s != "" {
			codes = append(codes, s)
		}
	}
	return codes
}

// codesCover reports whether every phrase code appears among the text
// codes. The text may contain extra words; missing a phrase word rules the
// match out before the similarity pass.
func codesCover(phrase, text []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for _, pc := range phrase {
		found := false
		for _, tc := range text {
			if pc == tc {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
