package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contract-analyzer/config"
	"contract-analyzer/llmclient"
	"contract-analyzer/pipeline"
	"contract-analyzer/web/types"
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

func chatTestContext(t *testing.T, pageTexts ...string) *pipeline.ChatContext {
	t.Helper()
	cfg := &config.Config{RetrievalTopK: 5, PagesPerChunk: 1, OverlapPages: 0}
	runner, err := pipeline.NewRunner(cfg, &scriptedLLM{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	offset := 0
	pages := make([]pipeline.Page, 0, len(pageTexts))
	for i, text := range pageTexts {
		pages = append(pages, pipeline.Page{
			PageNumber:      i + 1,
			RawText:         text,
			NormalizedText:  pipeline.Normalize(text),
			CharOffsetStart: offset,
			CharOffsetEnd:   offset + len(text),
			WordCount:       pipeline.WordCount(text),
		})
		offset += len(text)
	}
	doc := &pipeline.Document{
		DocID:     "chatdoc",
		Filename:  "chatdoc.pdf",
		PageCount: len(pages),
		Pages:     pages,
		Metadata:  map[string]interface{}{},
		CreatedAt: time.Now().UTC(),
	}

	chunker, err := pipeline.NewChunker(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	return runner.BuildChatContext(doc, chunker.Chunk(doc))
}

func newChatFixture(llm *scriptedLLM) (*ChatService, *ChatStore, uuid.UUID) {
	chats := NewChatStore()
	sessionID := chats.Create(uuid.New())
	svc := NewChatService(llm, pipeline.NewGrounder(zap.NewNop()), chats, zap.NewNop())
	return svc, chats, sessionID
}

func TestChatAnswerWithValidatedQuote(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"answer": "Yes, passwords are rotated every 90 days.", "relevant_quotes": [{"text": "passwords must be rotated every 90 days"}]}`,
	}}
	svc, chats, sessionID := newChatFixture(llm)
	chatCtx := chatTestContext(t,
		"All passwords must be rotated every 90 days and stored hashed.",
		"Delivery schedules are described in Appendix B.",
	)

	resp, err := svc.Answer(context.Background(), sessionID, "how often are passwords rotated?", chatCtx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Yes, passwords are rotated every 90 days." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.RelevantQuotes) != 1 || !resp.RelevantQuotes[0].Validated {
		t.Fatalf("quotes = %+v, want one validated", resp.RelevantQuotes)
	}
	if resp.RelevantQuotes[0].PageStart != 1 {
		t.Errorf("quote page = %d, want 1", resp.RelevantQuotes[0].PageStart)
	}
	if resp.Confidence != 80 {
		t.Errorf("confidence = %d, want 70 + 10 per validated quote", resp.Confidence)
	}

	session, _ := chats.Get(sessionID)
	if len(session.Messages) != 2 {
		t.Fatalf("history has %d messages, want user + assistant", len(session.Messages))
	}
	if session.Messages[0].Role != types.RoleUser || session.Messages[1].Role != types.RoleAssistant {
		t.Errorf("history roles = %s, %s", session.Messages[0].Role, session.Messages[1].Role)
	}

	opts := llm.opts[0]
	if opts.SystemPrompt == "" || !opts.JSONMode || opts.Temperature != 0.3 || opts.MaxTokens != 500 {
		t.Errorf("chat options = %+v", opts)
	}
}

func TestChatAnswerCannotFindZeroesConfidence(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"answer": "I cannot find that information in the contract.", "relevant_quotes": [{"text": "passwords must be rotated every 90 days"}]}`,
	}}
	svc, _, sessionID := newChatFixture(llm)
	chatCtx := chatTestContext(t, "All passwords must be rotated every 90 days and stored hashed.")

	resp, err := svc.Answer(context.Background(), sessionID, "what is the termination clause?", chatCtx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Confidence != 0 {
		t.Errorf("confidence = %d, want 0 for a cannot-find answer", resp.Confidence)
	}
	if len(resp.RelevantQuotes) != 0 {
		t.Errorf("cannot-find answer must carry no quotes, got %+v", resp.RelevantQuotes)
	}
}

func TestChatAnswerFabricatedQuoteDropped(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"answer": "The vendor is bound by strict uptime guarantees.", "relevant_quotes": [{"text": "ninety nine point nine percent uptime is guaranteed"}]}`,
	}}
	svc, _, sessionID := newChatFixture(llm)
	chatCtx := chatTestContext(t, "All passwords must be rotated every 90 days and stored hashed.")

	resp, err := svc.Answer(context.Background(), sessionID, "is there an uptime guarantee?", chatCtx)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.RelevantQuotes) != 0 {
		t.Errorf("fabricated quote survived: %+v", resp.RelevantQuotes)
	}
	if resp.Confidence != 70 {
		t.Errorf("confidence = %d, want base 70 with no validated quotes", resp.Confidence)
	}
}

func TestChatAnswerEmptyEvidence(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"answer": "The contract seems to be empty.", "relevant_quotes": []}`,
	}}
	svc, _, sessionID := newChatFixture(llm)
	chatCtx := chatTestContext(t) // no pages, no chunks

	resp, err := svc.Answer(context.Background(), sessionID, "what does it say?", chatCtx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Confidence != 30 {
		t.Errorf("confidence = %d, want 30 with no evidence", resp.Confidence)
	}
}

func TestChatAnswerRepairThenFallback(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"garbage output", "still garbage"}}
	svc, chats, sessionID := newChatFixture(llm)
	chatCtx := chatTestContext(t, "All passwords must be rotated every 90 days.")

	resp, err := svc.Answer(context.Background(), sessionID, "anything?", chatCtx)
	if err != nil {
		t.Fatal(err)
	}
	if len(llm.prompts) != 2 {
		t.Fatalf("llm called %d times, want prompt + repair", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[1], "garbage output") {
		t.Error("repair prompt should echo the invalid output")
	}
	if resp.Answer != FallbackAnswer {
		t.Errorf("answer = %q, want fallback", resp.Answer)
	}
	if resp.Confidence != 0 || len(resp.RelevantQuotes) != 0 {
		t.Errorf("fallback response = %+v, want 0 confidence and no quotes", resp)
	}

	session, _ := chats.Get(sessionID)
	if len(session.Messages) != 2 || session.Messages[1].Content != FallbackAnswer {
		t.Errorf("fallback must still be recorded in history: %+v", session.Messages)
	}
}

func TestChatAnswerTransportErrorSurfaces(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("backend down")}}
	svc, chats, sessionID := newChatFixture(llm)
	chatCtx := chatTestContext(t, "Some contract text about passwords.")

	if _, err := svc.Answer(context.Background(), sessionID, "hello?", chatCtx); err == nil {
		t.Fatal("transport failure must surface to the handler")
	}

	// The user message stays in history; no assistant reply is recorded.
	session, _ := chats.Get(sessionID)
	if len(session.Messages) != 1 || session.Messages[0].Role != types.RoleUser {
		t.Errorf("history after failure = %+v", session.Messages)
	}
}

func TestChatPromptHistoryWindow(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"answer": "Noted.", "relevant_quotes": []}`,
	}}
	svc, chats, sessionID := newChatFixture(llm)
	chatCtx := chatTestContext(t, "Some contract text about passwords.")

	for i := 0; i < 3; i++ {
		chats.Append(sessionID, types.RoleUser, fmt.Sprintf("old question %d", i))
		chats.Append(sessionID, types.RoleAssistant, fmt.Sprintf("old answer %d", i))
	}

	if _, err := svc.Answer(context.Background(), sessionID, "the current question", chatCtx); err != nil {
		t.Fatal(err)
	}

	prompt := llm.prompts[0]
	// Window is the last 4 messages including the one just sent: old answer
	// 1, old question 2, old answer 2, current question.
	if !strings.Contains(prompt, "the current question") {
		t.Error("prompt missing the current question")
	}
	if !strings.Contains(prompt, "old answer 1") || !strings.Contains(prompt, "old question 2") {
		t.Error("prompt missing recent history")
	}
	if strings.Contains(prompt, "old question 0") || strings.Contains(prompt, "old answer 0") {
		t.Error("prompt contains history beyond the window")
	}
	if strings.Contains(prompt, "old question 1") {
		t.Error("prompt contains the fifth-newest message")
	}
}

func TestChatAnswerUnknownSession(t *testing.T) {
	svc, _, _ := newChatFixture(&scriptedLLM{})
	chatCtx := chatTestContext(t, "text")

	if _, err := svc.Answer(context.Background(), uuid.New(), "hi", chatCtx); err == nil {
		t.Fatal("unknown session must error")
	}
}
