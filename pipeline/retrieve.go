package pipeline

import "sort"

// DefaultTopK is the evidence budget per requirement and per chat message.
const DefaultTopK = 5

// Retriever scores a fixed chunk corpus against keyword or free-form queries.
// Construct once per document; the underlying index is reused across all five
// requirements and every chat message.
type Retriever struct {
	chunks []Chunk
	index  *BM25Index
	topK   int
}

// NewRetriever indexes the chunk corpus. topK values below 1 fall back to
// DefaultTopK.
func NewRetriever(chunks []Chunk, topK int) *Retriever {
	if topK < 1 {
		topK = DefaultTopK
	}
	corpus := make([][]string, len(chunks))
	for i, c := range chunks {
		corpus[i] = Tokenize(c.NormalizedText)
	}
	return &Retriever{
		chunks: chunks,
		index:  NewBM25Index(corpus),
		topK:   topK,
	}
}

// Retrieve returns the top-K chunks for a query, highest score first, ties
// broken by ascending chunk index. Scores are normalized to [0,1] against the
// best score in the selection; an all-zero selection stays at 0.0. Chunks
// with zero score may appear in the result.
func (r *Retriever) Retrieve(query, requirementID string) []EvidenceChunk {
	if len(r.chunks) == 0 {
		return []EvidenceChunk{}
	}

	scores := r.index.Scores(Tokenize(query))

	order := make([]int, len(r.chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	k := r.topK
	if k > len(order) {
		k = len(order)
	}
	top := order[:k]

	var maxScore float64
	for _, i := range top {
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}

	evidence := make([]EvidenceChunk, 0, len(top))
	for _, i := range top {
		score := 0.0
		if maxScore > 0 {
			score = scores[i] / maxScore
		}
		evidence = append(evidence, EvidenceChunk{
			Chunk:          r.chunks[i],
			RelevanceScore: score,
			RequirementID:  requirementID,
		})
	}
	return evidence
}

// RetrieveForRequirement runs the catalog's curated keyword query.
func (r *Retriever) RetrieveForRequirement(req Requirement) []EvidenceChunk {
	return r.Retrieve(req.QueryText(), req.ID)
}

// RetrieveForMessage runs a raw chat message as the query.
func (r *Retriever) RetrieveForMessage(message string) []EvidenceChunk {
	return r.Retrieve(message, "")
}
