package pipeline

import (
	"fmt"

	apperrors "contract-analyzer/errors"
)

// Chunker splits a parsed document into page-aligned retrieval units. The
// default policy is one page per chunk with no overlap, which keeps page
// provenance exact for quote grounding.
type Chunker struct {
	pagesPerChunk int
	overlapPages  int
}

// NewChunker validates the chunking policy. pagesPerChunk must be at least 1
// and overlapPages must be non-negative and strictly smaller than
// pagesPerChunk.
func NewChunker(pagesPerChunk, overlapPages int) (*Chunker, error) {
	if pagesPerChunk < 1 {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "pages_per_chunk must be >= 1, got %d", pagesPerChunk)
	}
	if overlapPages < 0 {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "overlap_pages must be >= 0, got %d", overlapPages)
	}
	if overlapPages >= pagesPerChunk {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "overlap_pages (%d) must be smaller than pages_per_chunk (%d)", overlapPages, pagesPerChunk)
	}
	return &Chunker{pagesPerChunk: pagesPerChunk, overlapPages: overlapPages}, nil
}

// Chunk produces dense, deterministic chunks "<doc_id>:chunk_<n>" covering
// every page of the document in order.
func (c *Chunker) Chunk(doc *Document) []Chunk {
	if doc == nil || len(doc.Pages) == 0 {
		return []Chunk{}
	}

	stride := c.pagesPerChunk - c.overlapPages
	chunks := make([]Chunk, 0, (len(doc.Pages)+stride-1)/stride)
	fullText := doc.FullText()

	for start := 0; start < len(doc.Pages); start += stride {
		end := start + c.pagesPerChunk
		if end > len(doc.Pages) {
			end = len(doc.Pages)
		}

		text := fullText[doc.Pages[start].CharOffsetStart:doc.Pages[end-1].CharOffsetEnd]
		chunks = append(chunks, Chunk{
			ChunkID:        fmt.Sprintf("%s:chunk_%d", doc.DocID, len(chunks)),
			Text:           text,
			NormalizedText: Normalize(text),
			PageStart:      doc.Pages[start].PageNumber,
			PageEnd:        doc.Pages[end-1].PageNumber,
			CharStart:      doc.Pages[start].CharOffsetStart,
			CharEnd:        doc.Pages[end-1].CharOffsetEnd,
		})

		if end == len(doc.Pages) {
			break
		}
	}
	return chunks
}
