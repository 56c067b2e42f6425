package pipeline

import "math"

// Okapi parameters. Scoring is calibrated against these; they are not
// configuration.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// BM25Index is an in-memory Okapi BM25 index over a tokenized corpus. It is
// built once per document and reused across every requirement and chat query.
// Reads are safe for concurrent use once built.
type BM25Index struct {
	corpusSize int
	avgdl      float64
	termFreqs  []map[string]int
	docLens    []int
	idf        map[string]float64
}

// NewBM25Index builds the index from pre-tokenized documents.
func NewBM25Index(corpus [][]string) *BM25Index {
	idx := &BM25Index{
		corpusSize: len(corpus),
		termFreqs:  make([]map[string]int, len(corpus)),
		docLens:    make([]int, len(corpus)),
		idf:        make(map[string]float64),
	}

	totalLen := 0
	docFreq := make(map[string]int)
	for i, doc := range corpus {
		idx.docLens[i] = len(doc)
		totalLen += len(doc)

		freqs := make(map[string]int, len(doc))
		for _, term := range doc {
			freqs[term]++
		}
		idx.termFreqs[i] = freqs
		for term := range freqs {
			docFreq[term]++
		}
	}
	if idx.corpusSize > 0 {
		idx.avgdl = float64(totalLen) / float64(idx.corpusSize)
	}

	// Standard Okapi idf. Terms that appear in more than half the corpus get
	// a negative idf, which is floored at epsilon times the average idf so
	// common contract boilerplate still contributes a little signal.
	var idfSum float64
	var negative []string
	for term, df := range docFreq {
		v := math.Log(float64(idx.corpusSize)-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(docFreq) > 0 {
		eps := bm25Epsilon * idfSum / float64(len(docFreq))
		for _, term := range negative {
			idx.idf[term] = eps
		}
	}

	return idx
}

// Scores computes the BM25 score of every corpus document against the query
// tokens, returned in corpus order. Repeated query tokens contribute once per
// repetition.
func (b *BM25Index) Scores(query []string) []float64 {
	scores := make([]float64, b.corpusSize)
	for _, term := range query {
		idf, ok := b.idf[term]
		if !ok {
			continue
		}
		for i := 0; i < b.corpusSize; i++ {
			tf := float64(b.termFreqs[i][term])
			if tf == 0 {
				continue
			}
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(b.docLens[i])/b.avgdl)
			scores[i] += idf * (tf * (bm25K1 + 1)) / denom
		}
	}
	return scores
}
