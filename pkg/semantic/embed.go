package semantic

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

const embeddingDims = 256

// LocalEmbeddingFunc returns a deterministic, dependency-free embedding:
// hashed character trigrams, L2-normalized. It is no match for a learned
// model but it is stable, fast and fully offline, so the gateway never
// depends on an embedding service to boot. Deployments wanting better
// recall inject a model-backed chromem.EmbeddingFunc instead.
func LocalEmbeddingFunc() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return embedTrigrams(text), nil
	}
}

func embedTrigrams(text string) []float32 {
	vec := make([]float32, embeddingDims)
	runes := []rune(strings.ToLower(text))
	if len(runes) < 3 {
		runes = append(runes, ' ', ' ')
	}
	for i := 0; i+3 <= len(runes); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%embeddingDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
