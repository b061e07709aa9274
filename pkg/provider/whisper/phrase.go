package whisper

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// PhraseMatcher finds configured wake phrases in free transcript text. A
// window of transcript words matches a phrase when every aligned word pair
// shares a Double Metaphone code and the Jaro-Winkler similarity clears the
// phonetic threshold, or when the similarity alone clears the fuzzy
// threshold.
type PhraseMatcher struct {
	phrases  [][]string
	phonetic float64
	fuzzy    float64
}

// NewPhraseMatcher returns a matcher for phrases. Indices into phrases are
// reported as the wake word index.
func NewPhraseMatcher(phrases []string) *PhraseMatcher {
	m := &PhraseMatcher{phonetic: defaultPhoneticThreshold, fuzzy: defaultFuzzyThreshold}
	for _, p := range phrases {
		m.phrases = append(m.phrases, tokenize(p))
	}
	return m
}

// Match returns the index and score of the best phrase found in text.
func (m *PhraseMatcher) Match(text string) (index int, score float64, ok bool) {
	words := tokenize(text)
	index = -1
	for pi, phrase := range m.phrases {
		k := len(phrase)
		if k == 0 || len(words) < k {
			continue
		}
		target := strings.Join(phrase, " ")
		for start := 0; start+k <= len(words); start++ {
			window := words[start : start+k]
			jw := matchr.JaroWinkler(strings.Join(window, " "), target, false)
			accept := jw >= m.fuzzy || (jw >= m.phonetic && soundsAlike(window, phrase))
			if accept && jw > score {
				index, score, ok = pi, jw, true
			}
		}
	}
	return index, score, ok
}

// soundsAlike reports whether each word pair shares a Double Metaphone code.
func soundsAlike(a, b []string) bool {
	for i := range a {
		ap, as := matchr.DoubleMetaphone(a[i])
		bp, bs := matchr.DoubleMetaphone(b[i])
		if !shareCode(ap, as, bp, bs) {
			return false
		}
	}
	return true
}

func shareCode(ap, as, bp, bs string) bool {
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// tokenize lowercases text and splits it into words, dropping punctuation.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
