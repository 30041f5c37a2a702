package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// HashingProvider is a local bag-of-words embedder: tokens are hashed into
// a fixed number of buckets and the result is L2-normalized. It needs no
// network access and is used for offline indexing and tests.
type HashingProvider struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewHashingProvider(dimension int) *HashingProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashingProvider{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (h *HashingProvider) ModelID() string {
	return fmt.Sprintf("hashing-%d", h.dimension)
}

func (h *HashingProvider) Dimension() int { return h.dimension }

func (h *HashingProvider) Encode(ctx context.Context, batch []string) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, text := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashingProvider) embed(text string) []float32 {
	vec := make([]float64, h.dimension)
	for _, tok := range h.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := h.stopwords[tok]; stop {
			continue
		}
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dimension))
		// sign bit spreads collisions around zero
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "it", "this", "that", "these", "those", "from", "so", "into",
		"about", "when", "what", "which", "who", "how", "do", "does", "should", "can", "will", "i", "my",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
