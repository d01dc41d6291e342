// Package semantic scores input text by similarity to a reference corpus of
// known attacks. It complements the exact-match rules in pkg/patterns:
// rules catch canonical phrasings, the corpus scorer catches paraphrases.
package semantic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Scorer produces an injection anomaly score in [0,1] plus the attack
// category of the closest reference. Implementations must be safe for
// concurrent use.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, string, error)
}

// CorpusScorer is the default Scorer: an in-memory vector store seeded
// with attack phrasings. Similarity to the nearest non-benign reference
// is the score; strong similarity to a benign reference suppresses it.
type CorpusScorer struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
	topK       int
	ready      bool
}

// NewCorpusScorer builds the vector store over the given seeds. A nil
// embed falls back to the deterministic local embedder, which keeps the
// scorer fully offline.
func NewCorpusScorer(ctx context.Context, embed chromem.EmbeddingFunc, seeds []Seed, logger *zap.Logger) (*CorpusScorer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if embed == nil {
		embed = LocalEmbeddingFunc()
	}
	if len(seeds) == 0 {
		seeds = BuiltinSeeds()
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("attack_corpus", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(seeds))
	for i, s := range seeds {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("seed_%d", i),
			Content: strings.ToLower(s.Text),
			Metadata: map[string]string{
				"category": s.Category,
			},
		}
	}
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("failed to seed corpus: %w", err)
	}

	logger.Info("attack corpus loaded", zap.Int("seeds", len(seeds)))
	return &CorpusScorer{
		db:         db,
		collection: collection,
		logger:     logger,
		topK:       3,
		ready:      true,
	}, nil
}

// Score returns the similarity to the closest attack reference. A best
// match on a benign reference scores zero; this is what keeps ordinary
// requests from accumulating corpus similarity.
func (s *CorpusScorer) Score(ctx context.Context, text string) (float64, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return 0, "", fmt.Errorf("corpus scorer not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return 0, "benign", nil
	}

	k := s.topK
	if n := s.collection.Count(); n < k {
		k = n
	}
	if k == 0 {
		return 0, "benign", nil
	}

	results, err := s.collection.Query(ctx, strings.ToLower(text), k, nil, nil)
	if err != nil {
		return 0, "", fmt.Errorf("corpus query failed: %w", err)
	}
	if len(results) == 0 {
		return 0, "benign", nil
	}

	best := results[0]
	category := best.Metadata["category"]
	if category == "benign" {
		return 0, "benign", nil
	}

	score := float64(best.Similarity)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, category, nil
}
