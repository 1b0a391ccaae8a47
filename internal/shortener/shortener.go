package shortener

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"shortlinks/internal/apperr"
)

// DefaultAlphabet is used when no alphabet is configured.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the code length used when none is configured.
const DefaultLength = 8

// Generate returns a string of exactly length runes, each drawn independently
// and uniformly from alphabet. Repeats within one code are allowed.
// It does not check for collisions; that is the caller's job.
func Generate(alphabet []rune, length int) (string, error) {
	if len(alphabet) == 0 {
		return "", fmt.Errorf("%w: alphabet must not be empty", apperr.ErrConfiguration)
	}
	if length <= 0 {
		return "", fmt.Errorf("%w: code length must be positive, got %d", apperr.ErrConfiguration, length)
	}
	return sample(alphabet, length), nil
}

func sample(alphabet []rune, length int) string {
	var b strings.Builder
	b.Grow(length * 4)
	for range length {
		b.WriteRune(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}

// Generator produces codes for a fixed, validated alphabet and length.
// It is safe for concurrent use.
type Generator struct {
	alphabet []rune
	length   int
}

// NewGenerator validates the configuration and returns a Generator.
// The alphabet is treated as a set: repeated characters are collapsed so every
// distinct character is equally likely.
func NewGenerator(alphabet string, length int) (*Generator, error) {
	set := uniqueRunes(alphabet)
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: alphabet must not be empty", apperr.ErrConfiguration)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: code length must be positive, got %d", apperr.ErrConfiguration, length)
	}
	return &Generator{alphabet: set, length: length}, nil
}

// Generate returns a fresh random code.
func (g *Generator) Generate() string {
	return sample(g.alphabet, g.length)
}

// Alphabet returns the deduplicated alphabet.
func (g *Generator) Alphabet() string { return string(g.alphabet) }

// Length returns the configured code length.
func (g *Generator) Length() int { return g.length }

// CodeSpace returns alphabet_size^length. Large spaces saturate to +Inf.
func (g *Generator) CodeSpace() float64 {
	return math.Pow(float64(len(g.alphabet)), float64(g.length))
}

func uniqueRunes(s string) []rune {
	seen := make(map[rune]struct{}, len(s))
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
