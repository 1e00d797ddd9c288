package kb

import (
	"math"

	"github.com/formsnapper/backend/internal/storage"
)

const DefaultDedupThreshold = 0.95

// DedupDecision records whether a new chunk embedding is a near-duplicate
// of an existing one.
type DedupDecision struct {
	IsDuplicate bool
	Match       *storage.Chunk
	Score       float64
}

type Deduplicator struct {
	threshold float64
}

func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}
	return &Deduplicator{threshold: threshold}
}

// Check compares an embedding against every existing chunk and reports the
// best match. A score at or above the threshold flags a duplicate.
func (d *Deduplicator) Check(embedding []float32, existing []storage.Chunk) DedupDecision {
	decision := DedupDecision{}

	for i := range existing {
		score := CosineSimilarity(embedding, existing[i].Embedding)
		if score > decision.Score {
			decision.Score = score
			decision.Match = &existing[i]
		}
	}

	decision.IsDuplicate = decision.Match != nil && decision.Score >= d.threshold
	if !decision.IsDuplicate {
		decision.Match = nil
	}
	return decision
}

// CosineSimilarity measures directional closeness of two vectors. A
// zero-magnitude vector scores 0 against anything; a length mismatch also
// scores 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
