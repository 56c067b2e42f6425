package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
	"contract-analyzer/llmclient"
)

// ProgressFunc receives job progress milestones. An empty stage means "keep
// the previous stage text".
type ProgressFunc func(percent int, stage string)

// Runner drives the full analysis pipeline for one document: parse, chunk,
// then retrieve / analyze / ground for each catalog requirement in order.
// Requirements run sequentially so one job holds at most one in-flight LLM
// request.
type Runner struct {
	cfg      *config.Config
	parser   *Parser
	chunker  *Chunker
	analyzer *Analyzer
	grounder *Grounder
	logger   *zap.Logger
}

func NewRunner(cfg *config.Config, llm llmclient.Client, logger *zap.Logger) (*Runner, error) {
	chunker, err := NewChunker(cfg.PagesPerChunk, cfg.OverlapPages)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:      cfg,
		parser:   NewParser(logger),
		chunker:  chunker,
		analyzer: NewAnalyzer(llm, logger),
		grounder: NewGrounder(logger),
		logger:   logger,
	}, nil
}

// RunAnalysis executes the pipeline end to end over the fixed requirement
// catalog. Only a parser failure is fatal; per-requirement failures degrade
// to fallback results. progress may be nil.
func (r *Runner) RunAnalysis(ctx context.Context, pdfBytes []byte, filename string, progress ProgressFunc) (*AnalysisOutput, error) {
	report := func(percent int, stage string) {
		if progress != nil {
			progress(percent, stage)
		}
	}
	started := time.Now()
	var timings Timings

	report(5, "Parsing PDF")
	parseStart := time.Now()
	doc, err := r.parser.Parse(pdfBytes, filename)
	if err != nil {
		return nil, err
	}
	timings.ParseMS = time.Since(parseStart).Milliseconds()
	report(10, "")

	report(15, "Chunking document")
	chunkStart := time.Now()
	chunks := r.chunker.Chunk(doc)
	timings.ChunkMS = time.Since(chunkStart).Milliseconds()
	report(20, "")

	out, err := r.analyzeChunks(ctx, doc, chunks, &timings, report)
	if err != nil {
		return nil, err
	}

	report(100, "Finalizing results")
	timings.TotalMS = time.Since(started).Milliseconds()
	out.Timings = timings
	return out, nil
}

// analyzeChunks runs retrieval, analysis, and grounding over an already
// parsed and chunked document.
func (r *Runner) analyzeChunks(ctx context.Context, doc *Document, chunks []Chunk, timings *Timings, report ProgressFunc) (*AnalysisOutput, error) {
	requirements := Requirements()
	retriever := NewRetriever(chunks, r.cfg.RetrievalTopK)
	results := make([]ComplianceResult, 0, len(requirements))

	progressPerReq := 80 / len(requirements)
	for i, req := range requirements {
		if ctx.Err() != nil {
			return nil, apperrors.WrapError(ctx.Err(), "analysis canceled")
		}
		report(20+i*progressPerReq, fmt.Sprintf("Analyzing requirement %d/%d", i+1, len(requirements)))

		retrieveStart := time.Now()
		evidence := retriever.RetrieveForRequirement(req)
		timings.RetrieveTotalMS += time.Since(retrieveStart).Milliseconds()

		llmStart := time.Now()
		result, err := r.analyzer.Analyze(ctx, req, evidence)
		timings.LLMTotalMS += time.Since(llmStart).Milliseconds()
		if err != nil {
			// Analyze only errors on cancellation; partial results are
			// discarded, never surfaced.
			return nil, apperrors.WrapError(err, "analysis canceled")
		}

		validateStart := time.Now()
		result = r.grounder.Ground(result, evidence)
		timings.ValidateTotalMS += time.Since(validateStart).Milliseconds()

		results = append(results, result)
		report(20+(i+1)*progressPerReq, "")
	}

	return &AnalysisOutput{
		Document: doc,
		Chunks:   chunks,
		Results:  results,
	}, nil
}

// AnalyzeDocument runs everything after parsing. Used by tests and by any
// caller that already holds a Document.
func (r *Runner) AnalyzeDocument(ctx context.Context, doc *Document) (*AnalysisOutput, error) {
	var timings Timings
	chunks := r.chunker.Chunk(doc)
	out, err := r.analyzeChunks(ctx, doc, chunks, &timings, func(int, string) {})
	if err != nil {
		return nil, err
	}
	out.Timings = timings
	return out, nil
}

// ChatContext wraps the per-document retrieval index for reuse across chat
// messages. The index borrows the chunk text and must not outlive the job
// that owns it. Safe for concurrent reads once built.
type ChatContext struct {
	Document  *Document
	Chunks    []Chunk
	retriever *Retriever
}

// BuildChatContext indexes the chunks once for the chat path.
func (r *Runner) BuildChatContext(doc *Document, chunks []Chunk) *ChatContext {
	return &ChatContext{
		Document:  doc,
		Chunks:    chunks,
		retriever: NewRetriever(chunks, r.cfg.RetrievalTopK),
	}
}

// Retrieve runs a raw user message as the retrieval query.
func (c *ChatContext) Retrieve(message string) []EvidenceChunk {
	return c.retriever.RetrieveForMessage(message)
}

// Grounder exposes the runner's grounder for the chat path.
func (r *Runner) Grounder() *Grounder {
	return r.grounder
}
