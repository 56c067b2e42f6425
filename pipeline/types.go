package pipeline

import (
	"strings"
	"time"
)

// Compliance states are frozen wire strings. Clients match on them exactly.
const (
	StateFullyCompliant     = "Fully Compliant"
	StatePartiallyCompliant = "Partially Compliant"
	StateNonCompliant       = "Non-Compliant"
)

// Page holds one page of extracted text with its position in the
// concatenated-document coordinate space. Offsets are half-open
// [CharOffsetStart, CharOffsetEnd) and tile the document with no gaps:
// page i's end offset equals page i+1's start offset.
type Page struct {
	PageNumber      int    `json:"page_number"`
	RawText         string `json:"raw_text"`
	NormalizedText  string `json:"normalized_text"`
	CharOffsetStart int    `json:"char_offset_start"`
	CharOffsetEnd   int    `json:"char_offset_end"`
	WordCount       int    `json:"word_count"`
}

// Document is the canonical parsed representation a job owns. Immutable once
// built; every downstream stage reads from it.
type Document struct {
	DocID     string                 `json:"doc_id"`
	Filename  string                 `json:"filename"`
	PageCount int                    `json:"page_count"`
	Pages     []Page                 `json:"pages"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// FullText returns the concatenated raw text of all pages. Page offsets index
// into this string directly.
func (d *Document) FullText() string {
	var b strings.Builder
	for _, p := range d.Pages {
		b.WriteString(p.RawText)
	}
	return b.String()
}

// NeedsOCR reports whether the parser flagged the document as image dominated.
func (d *Document) NeedsOCR() bool {
	v, ok := d.Metadata["needs_ocr"].(bool)
	return ok && v
}

// Chunk is a retrieval unit with page provenance. IDs are dense and
// deterministic: "<doc_id>:chunk_<n>".
type Chunk struct {
	ChunkID        string `json:"chunk_id"`
	Text           string `json:"text"`
	NormalizedText string `json:"normalized_text"`
	PageStart      int    `json:"page_start"`
	PageEnd        int    `json:"page_end"`
	CharStart      int    `json:"char_start"`
	CharEnd        int    `json:"char_end"`
}

// EvidenceChunk is a Chunk annotated with its retrieval score, normalized to
// [0,1] within the returned top-K, and the requirement it was fetched for.
type EvidenceChunk struct {
	Chunk
	RelevanceScore float64 `json:"relevance_score"`
	RequirementID  string  `json:"requirement_id,omitempty"`
}

// Quote is a model-asserted excerpt. After grounding, Validated is true and
// the normalized text is a substring of at least one evidence chunk (or an
// adjacent pair) supplied for the same requirement.
type Quote struct {
	Text      string `json:"text"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	Validated bool   `json:"validated"`
}

// ComplianceResult is the per-requirement output schema returned to clients.
// Field names and state strings are stable.
type ComplianceResult struct {
	ComplianceQuestion string   `json:"compliance_question"`
	ComplianceState    string   `json:"compliance_state"`
	Confidence         int      `json:"confidence"`
	RelevantQuotes     []Quote  `json:"relevant_quotes"`
	Rationale          string   `json:"rationale"`
	EvidenceChunksUsed []string `json:"evidence_chunks_used"`

	// RequirementID identifies the catalog entry internally. It stays off
	// the wire: requirement identity is carried by ComplianceQuestion.
	RequirementID string `json:"-"`
}

// ChatAnswer is the grounded response to one chat message.
type ChatAnswer struct {
	Answer         string  `json:"answer"`
	RelevantQuotes []Quote `json:"relevant_quotes"`
	Confidence     int     `json:"confidence"`
}

// AnalysisOutput bundles everything RunAnalysis produces for one document.
type AnalysisOutput struct {
	Document *Document
	Chunks   []Chunk
	Results  []ComplianceResult
	Timings  Timings
}

// Timings records per-stage wall-clock milliseconds for one job.
type Timings struct {
	ParseMS         int64 `json:"parse_ms"`
	ChunkMS         int64 `json:"chunk_ms"`
	RetrieveTotalMS int64 `json:"retrieve_total_ms"`
	LLMTotalMS      int64 `json:"llm_total_ms"`
	ValidateTotalMS int64 `json:"validate_total_ms"`
	TotalMS         int64 `json:"total_ms"`
}

// Map renders timings under their stable wire keys.
func (t Timings) Map() map[string]int64 {
	return map[string]int64{
		"parse_ms":          t.ParseMS,
		"chunk_ms":          t.ChunkMS,
		"retrieve_total_ms": t.RetrieveTotalMS,
		"llm_total_ms":      t.LLMTotalMS,
		"validate_total_ms": t.ValidateTotalMS,
		"total_ms":          t.TotalMS,
	}
}
