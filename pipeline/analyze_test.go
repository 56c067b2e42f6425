package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"contract-analyzer/llmclient"
)

// scriptedLLM replays canned responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	opts      []llmclient.Options
}

func (f *scriptedLLM) Complete(ctx context.Context, prompt string, opts llmclient.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)

	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("scripted llm exhausted")
}

func (f *scriptedLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testEvidence() []EvidenceChunk {
	chunks := chunksFromTexts(
		"All passwords must be rotated every 90 days and stored using salted hashes.",
		"The contractor shall maintain a complete asset inventory.",
	)
	evidence := make([]EvidenceChunk, len(chunks))
	for i, c := range chunks {
		evidence[i] = EvidenceChunk{Chunk: c, RelevanceScore: 1.0, RequirementID: "password_management"}
	}
	return evidence
}

func testRequirement(t *testing.T) Requirement {
	t.Helper()
	req, ok := RequirementByID("password_management")
	if !ok {
		t.Fatal("password_management missing from catalog")
	}
	return req
}

const validAnalysisJSON = `{
	"compliance_state": "Fully Compliant",
	"confidence": 85,
	"relevant_quotes": [{"text": "passwords must be rotated every 90 days", "page_start": 1, "page_end": 1}],
	"rationale": "The contract mandates rotation and hashed storage."
}`

func TestAnalyzeParsesValidResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []string{validAnalysisJSON}}
	a := NewAnalyzer(llm, zap.NewNop())
	req := testRequirement(t)
	evidence := testEvidence()

	result, err := a.Analyze(context.Background(), req, evidence)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if llm.calls() != 1 {
		t.Errorf("llm called %d times, want 1", llm.calls())
	}
	if result.ComplianceQuestion != req.Question {
		t.Errorf("question = %q, want catalog question", result.ComplianceQuestion)
	}
	if result.ComplianceState != StateFullyCompliant {
		t.Errorf("state = %q, want %q", result.ComplianceState, StateFullyCompliant)
	}
	if result.Confidence != 85 {
		t.Errorf("confidence = %d, want 85", result.Confidence)
	}
	if len(result.RelevantQuotes) != 1 || result.RelevantQuotes[0].Validated {
		t.Errorf("quotes should arrive unvalidated: %+v", result.RelevantQuotes)
	}
	if result.Rationale != "The contract mandates rotation and hashed storage." {
		t.Errorf("rationale = %q", result.Rationale)
	}
	wantIDs := []string{evidence[0].ChunkID, evidence[1].ChunkID}
	if len(result.EvidenceChunksUsed) != 2 || result.EvidenceChunksUsed[0] != wantIDs[0] || result.EvidenceChunksUsed[1] != wantIDs[1] {
		t.Errorf("evidence ids = %v, want %v", result.EvidenceChunksUsed, wantIDs)
	}
	if result.RequirementID != req.ID {
		t.Errorf("requirement id = %q, want %q", result.RequirementID, req.ID)
	}
}

func TestAnalyzeStripsCodeFences(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"Here is the judgment:\n```json\n" + validAnalysisJSON + "\n```"}}
	a := NewAnalyzer(llm, zap.NewNop())

	result, err := a.Analyze(context.Background(), testRequirement(t), testEvidence())
	if err != nil {
		t.Fatal(err)
	}
	if result.ComplianceState != StateFullyCompliant {
		t.Errorf("state = %q, fence stripping failed", result.ComplianceState)
	}
	if llm.calls() != 1 {
		t.Errorf("llm called %d times, want 1", llm.calls())
	}
}

func TestAnalyzeRepairsMalformedResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"not json at all", validAnalysisJSON}}
	a := NewAnalyzer(llm, zap.NewNop())

	result, err := a.Analyze(context.Background(), testRequirement(t), testEvidence())
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls() != 2 {
		t.Fatalf("llm called %d times, want 2", llm.calls())
	}
	if !strings.Contains(llm.prompts[1], "not json at all") {
		t.Error("repair prompt should echo the invalid output")
	}
	if result.ComplianceState != StateFullyCompliant {
		t.Errorf("state after repair = %q", result.ComplianceState)
	}
}

func TestAnalyzeFallbackAfterDoubleFailure(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"garbage", "more garbage"}}
	a := NewAnalyzer(llm, zap.NewNop())
	req := testRequirement(t)
	evidence := testEvidence()

	result, err := a.Analyze(context.Background(), req, evidence)
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls() != 2 {
		t.Errorf("llm called %d times, want 2", llm.calls())
	}
	if result.ComplianceState != StateNonCompliant {
		t.Errorf("fallback state = %q, want %q", result.ComplianceState, StateNonCompliant)
	}
	if result.Confidence != 10 {
		t.Errorf("fallback confidence = %d, want 10", result.Confidence)
	}
	if len(result.RelevantQuotes) != 0 {
		t.Errorf("fallback quotes = %v, want empty", result.RelevantQuotes)
	}
	if result.Rationale != FallbackRationale {
		t.Errorf("fallback rationale = %q, want %q", result.Rationale, FallbackRationale)
	}
	if len(result.EvidenceChunksUsed) != len(evidence) {
		t.Errorf("fallback should still list all supplied evidence ids")
	}
}

func TestAnalyzeFallbackOnTransportError(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("connection refused")}}
	a := NewAnalyzer(llm, zap.NewNop())

	result, err := a.Analyze(context.Background(), testRequirement(t), testEvidence())
	if err != nil {
		t.Fatalf("transport failure must degrade, not error: %v", err)
	}
	if result.Rationale != FallbackRationale {
		t.Errorf("rationale = %q, want fallback", result.Rationale)
	}
}

func TestAnalyzeUnrecognizedStateFallsBack(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"compliance_state": "Mostly Fine", "confidence": 90, "relevant_quotes": [], "rationale": "x"}`}}
	a := NewAnalyzer(llm, zap.NewNop())

	result, err := a.Analyze(context.Background(), testRequirement(t), testEvidence())
	if err != nil {
		t.Fatal(err)
	}
	// A well-formed response with a bad state is not retried.
	if llm.calls() != 1 {
		t.Errorf("llm called %d times, want 1", llm.calls())
	}
	if result.ComplianceState != StateNonCompliant || result.Confidence != 10 {
		t.Errorf("got state %q confidence %d, want fallback", result.ComplianceState, result.Confidence)
	}
}

func TestAnalyzeCoercesStateAndClampsConfidence(t *testing.T) {
	tests := []struct {
		name           string
		state          string
		confidence     string
		wantState      string
		wantConfidence int
	}{
		{"lowercase state", "fully compliant", "50", StateFullyCompliant, 50},
		{"padded state", "  Partially COMPLIANT  ", "50", StatePartiallyCompliant, 50},
		{"overshoot clamped", "Non-Compliant", "150", StateNonCompliant, 100},
		{"negative clamped", "Non-Compliant", "-5", StateNonCompliant, 0},
		{"fractional truncated", "Fully Compliant", "87.9", StateFullyCompliant, 87},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &scriptedLLM{responses: []string{
				`{"compliance_state": "` + tt.state + `", "confidence": ` + tt.confidence + `, "relevant_quotes": [], "rationale": "r"}`,
			}}
			a := NewAnalyzer(llm, zap.NewNop())

			result, err := a.Analyze(context.Background(), testRequirement(t), testEvidence())
			if err != nil {
				t.Fatal(err)
			}
			if result.ComplianceState != tt.wantState {
				t.Errorf("state = %q, want %q", result.ComplianceState, tt.wantState)
			}
			if result.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %d, want %d", result.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestAnalyzeCanceledContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{}
	a := NewAnalyzer(llm, zap.NewNop())
	if _, err := a.Analyze(ctx, testRequirement(t), testEvidence()); err == nil {
		t.Fatal("canceled context must surface an error")
	}
}

func TestAnalyzeRequestOptions(t *testing.T) {
	llm := &scriptedLLM{responses: []string{validAnalysisJSON}}
	a := NewAnalyzer(llm, zap.NewNop())

	if _, err := a.Analyze(context.Background(), testRequirement(t), testEvidence()); err != nil {
		t.Fatal(err)
	}
	opts := llm.opts[0]
	if opts.Temperature != 0.3 || opts.MaxTokens != 800 || !opts.JSONMode {
		t.Errorf("analysis options = %+v", opts)
	}
}

func TestFormatEvidence(t *testing.T) {
	if got := FormatEvidence(nil); got != "[No relevant evidence found in contract]" {
		t.Errorf("empty evidence = %q", got)
	}

	evidence := []EvidenceChunk{
		{Chunk: Chunk{Text: "first chunk", PageStart: 1, PageEnd: 1}},
		{Chunk: Chunk{Text: "second chunk", PageStart: 4, PageEnd: 5}},
	}
	got := FormatEvidence(evidence)
	if !strings.Contains(got, "Evidence 1 [Pages 1]:\nfirst chunk") {
		t.Errorf("missing single-page block: %q", got)
	}
	if !strings.Contains(got, "Evidence 2 [Pages 4-5]:\nsecond chunk") {
		t.Errorf("missing multi-page block: %q", got)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounded by prose", `Sure! {"a": {"b": 2}} Hope that helps.`, `{"a": {"b": 2}}`},
		{"no braces", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.response); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.response, got, tt.want)
			}
		})
	}
}
