// Package nlp prepares raw user text for emotion classification.
package nlp

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// maxLemmaPasses bounds the fixed-point iteration over the lemma dictionary.
const maxLemmaPasses = 4

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+|'\p{L}+|[^\s\p{L}\p{N}]`)

// Lemmatizer reduces a word to its dictionary base form.
type Lemmatizer interface {
	Lemma(word string) string
}

// Normalizer lowercases, tokenizes, filters stop words and lemmatizes text.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	lemmatizer Lemmatizer
	stopWords  map[string]struct{}
}

// NewNormalizer builds a Normalizer backed by the golem English dictionary.
func NewNormalizer() (*Normalizer, error) {
	lemmatizer, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("failed to load english lemma dictionary: %w", err)
	}
	return NewNormalizerWith(lemmatizer), nil
}

// NewNormalizerWith builds a Normalizer using the supplied lemmatizer.
func NewNormalizerWith(lemmatizer Lemmatizer) *Normalizer {
	return &Normalizer{
		lemmatizer: lemmatizer,
		stopWords:  buildStopSet(),
	}
}

// Normalize returns the space-joined normalized token sequence for text.
// Empty input yields empty output.
func (n *Normalizer) Normalize(text string) string {
	tokens := Tokenize(strings.ToLower(text))
	if len(tokens) == 0 {
		return ""
	}

	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isAlpha(token) && n.isStopWord(token) {
			continue
		}
		kept = append(kept, n.lemma(token))
	}
	return strings.Join(kept, " ")
}

// Tokenize splits text on word boundaries. Letter/digit runs, apostrophe
// suffixes such as "'s" and single punctuation marks each form a token.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(text, -1)
}

func (n *Normalizer) isStopWord(token string) bool {
	_, ok := n.stopWords[token]
	return ok
}

// lemma iterates the dictionary until the form is stable so that normalizing
// already-normalized text is a no-op.
func (n *Normalizer) lemma(token string) string {
	if n.lemmatizer == nil || !isAlpha(token) {
		return token
	}

	current := token
	for i := 0; i < maxLemmaPasses; i++ {
		next := strings.ToLower(n.lemmatizer.Lemma(current))
		if next == "" || next == current || !isSingleToken(next) {
			break
		}
		current = next
	}
	return current
}

func isSingleToken(s string) bool {
	tokens := Tokenize(s)
	return len(tokens) == 1 && tokens[0] == s
}

func isAlpha(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
