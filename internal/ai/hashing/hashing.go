// Package hashing implements a deterministic, offline embedder based on
// feature hashing of word tokens and character trigrams.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is used when a non-positive dimension is configured.
const DefaultDimensions = 256

const trigramWeight = 0.5

// Embedder maps texts into a fixed-size vector space without any network calls.
type Embedder struct {
	dims int
}

// New returns an Embedder producing vectors of the given dimension.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Embed implements ai.Embedder. Vectors are L2-normalized; an input without
// any tokens yields a zero vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	v := make([]float32, e.dims)

	for _, token := range tokenize(text) {
		e.add(v, "w:"+token, 1)
		padded := "^" + token + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			e.add(v, "t:"+string(runes[i:i+3]), trigramWeight)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func (e *Embedder) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dims))
	// The top bit picks the sign so collisions tend to cancel out.
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// tokenize lowercases text and splits it on anything that is not a letter,
// a digit, or one of the symbols used in technology names (c++, c#, node.js).
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#' && r != '.'
	})

	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
