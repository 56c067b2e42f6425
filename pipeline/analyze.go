package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"contract-analyzer/llmclient"
	"contract-analyzer/prompts"
)

// FallbackRationale is emitted when the model's output could not be parsed
// after the repair attempt. Tests and clients match on it exactly.
const FallbackRationale = "Model output could not be parsed"

const (
	analysisTemperature = 0.3
	repairTemperature   = 0.1
	analysisMaxTokens   = 800
	repairMaxTokens     = 600

	// Invalid output quoted back in the repair prompt is truncated so one bad
	// response can't blow up the next request.
	repairEchoLimit = 500
)

// Analyzer issues the compliance judgment prompt over retrieved evidence and
// parses the model's JSON response. It never sees the full document and never
// validates quotes; grounding happens afterwards.
type Analyzer struct {
	llm    llmclient.Client
	logger *zap.Logger
}

func NewAnalyzer(llm llmclient.Client, logger *zap.Logger) *Analyzer {
	return &Analyzer{llm: llm, logger: logger}
}

type rawQuote struct {
	Text      string `json:"text"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
}

type rawAnalysis struct {
	ComplianceState string     `json:"compliance_state"`
	Confidence      float64    `json:"confidence"`
	RelevantQuotes  []rawQuote `json:"relevant_quotes"`
	Rationale       string     `json:"rationale"`
}

// Analyze runs one requirement against its evidence. LLM transport failures
// and unparseable output degrade to the fallback result; the returned error
// is non-nil only when the context was canceled, which aborts the whole job.
func (a *Analyzer) Analyze(ctx context.Context, req Requirement, evidence []EvidenceChunk) (ComplianceResult, error) {
	prompt := fmt.Sprintf(prompts.ComplianceAnalysis(), req.Question, req.Rubric, FormatEvidence(evidence))

	response, err := a.llm.Complete(ctx, prompt, llmclient.Options{
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ComplianceResult{}, err
		}
		a.logger.Error("LLM request failed, using fallback result",
			zap.String("requirement_id", req.ID),
			zap.Error(err))
		return a.fallbackResult(req, evidence), nil
	}

	if result, ok := a.parseResponse(response, req, evidence); ok {
		return result, nil
	}

	// One repair attempt: quote the offending output back and ask again.
	a.logger.Warn("Initial JSON parse failed, retrying with fix prompt",
		zap.String("requirement_id", req.ID))

	fixPrompt := fmt.Sprintf(prompts.ComplianceFix(), truncate(response, repairEchoLimit))
	response, err = a.llm.Complete(ctx, fixPrompt, llmclient.Options{
		Temperature: repairTemperature,
		MaxTokens:   repairMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ComplianceResult{}, err
		}
		a.logger.Error("Repair request failed, using fallback result",
			zap.String("requirement_id", req.ID),
			zap.Error(err))
		return a.fallbackResult(req, evidence), nil
	}

	if result, ok := a.parseResponse(response, req, evidence); ok {
		return result, nil
	}

	a.logger.Error("JSON parsing failed after repair, using fallback result",
		zap.String("requirement_id", req.ID))
	return a.fallbackResult(req, evidence), nil
}

func (a *Analyzer) parseResponse(response string, req Requirement, evidence []EvidenceChunk) (ComplianceResult, bool) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(ExtractJSON(response)), &raw); err != nil {
		a.logger.Warn("JSON parse error",
			zap.String("requirement_id", req.ID),
			zap.Error(err))
		return ComplianceResult{}, false
	}

	// The model is not trusted on state spelling or confidence range. An
	// unrecognized state is not a formatting problem a repair prompt can fix,
	// so it degrades straight to the fallback.
	state, ok := coerceState(raw.ComplianceState)
	if !ok {
		a.logger.Warn("Unrecognized compliance state, using fallback result",
			zap.String("requirement_id", req.ID),
			zap.String("state", truncate(raw.ComplianceState, 40)))
		return a.fallbackResult(req, evidence), true
	}

	quotes := make([]Quote, 0, len(raw.RelevantQuotes))
	for _, q := range raw.RelevantQuotes {
		quotes = append(quotes, Quote{
			Text:      q.Text,
			PageStart: q.PageStart,
			PageEnd:   q.PageEnd,
			Validated: false,
		})
	}

	return ComplianceResult{
		ComplianceQuestion: req.Question,
		ComplianceState:    state,
		Confidence:         clampConfidence(int(raw.Confidence)),
		RelevantQuotes:     quotes,
		Rationale:          raw.Rationale,
		EvidenceChunksUsed: evidenceIDs(evidence),
		RequirementID:      req.ID,
	}, true
}

func (a *Analyzer) fallbackResult(req Requirement, evidence []EvidenceChunk) ComplianceResult {
	return ComplianceResult{
		ComplianceQuestion: req.Question,
		ComplianceState:    StateNonCompliant,
		Confidence:         10,
		RelevantQuotes:     []Quote{},
		Rationale:          FallbackRationale,
		EvidenceChunksUsed: evidenceIDs(evidence),
		RequirementID:      req.ID,
	}
}

// FormatEvidence renders evidence chunks for a prompt, each prefixed with its
// page-range label.
func FormatEvidence(evidence []EvidenceChunk) string {
	if len(evidence) == 0 {
		return "[No relevant evidence found in contract]"
	}

	parts := make([]string, 0, len(evidence))
	for i, chunk := range evidence {
		parts = append(parts, fmt.Sprintf("Evidence %d %s:\n%s", i+1, PageLabel(chunk.PageStart, chunk.PageEnd), chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

// PageLabel renders "[Pages 4]" or "[Pages 4-5]".
func PageLabel(pageStart, pageEnd int) string {
	if pageEnd != pageStart {
		return fmt.Sprintf("[Pages %d-%d]", pageStart, pageEnd)
	}
	return fmt.Sprintf("[Pages %d]", pageStart)
}

// ExtractJSON strips code fences and surrounding prose from a model response,
// keeping the span from the first '{' to the last '}'.
func ExtractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end != -1 && end > start {
		return response[start : end+1]
	}
	return response
}

func coerceState(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fully compliant":
		return StateFullyCompliant, true
	case "partially compliant":
		return StatePartiallyCompliant, true
	case "non-compliant":
		return StateNonCompliant, true
	}
	return "", false
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func evidenceIDs(evidence []EvidenceChunk) []string {
	ids := make([]string, 0, len(evidence))
	for _, chunk := range evidence {
		ids = append(ids, chunk.ChunkID)
	}
	return ids
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
