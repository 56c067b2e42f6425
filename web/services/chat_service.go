package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contract-analyzer/llmclient"
	"contract-analyzer/pipeline"
	"contract-analyzer/prompts"
	"contract-analyzer/web/types"
)

const (
	chatTemperature = 0.3
	chatMaxTokens   = 500

	// Only the most recent messages are spliced into the prompt; the window
	// bounds token cost regardless of session length.
	chatHistoryWindow = 4

	chatRepairEchoLimit = 500
)

// FallbackAnswer is returned when the model's chat output could not be parsed
// after the repair attempt.
const FallbackAnswer = "I cannot find that information in the contract."

// notFoundPhrases zero out confidence when any of them appears in the
// normalized answer.
var notFoundPhrases = []string{"cannot find", "can't find", "not found", "no information"}

// ChatService answers free-form questions about a completed contract using
// the same retrieval and grounding machinery as the analysis pipeline.
type ChatService struct {
	llm      llmclient.Client
	grounder *pipeline.Grounder
	chats    *ChatStore
	logger   *zap.Logger
}

func NewChatService(llm llmclient.Client, grounder *pipeline.Grounder, chats *ChatStore, logger *zap.Logger) *ChatService {
	return &ChatService{
		llm:      llm,
		grounder: grounder,
		chats:    chats,
		logger:   logger,
	}
}

type rawChatResponse struct {
	Answer         string `json:"answer"`
	RelevantQuotes []struct {
		Text string `json:"text"`
	} `json:"relevant_quotes"`
}

// Answer processes one user message: append to history, retrieve evidence,
// ask the model, ground the quotes, score confidence, append the reply.
// The error is non-nil only for transport failures after retries or
// cancellation; those surface to the handler without touching the history
// beyond the user message.
func (s *ChatService) Answer(ctx context.Context, sessionID uuid.UUID, userMessage string, chatCtx *pipeline.ChatContext) (types.ChatMessageResponse, error) {
	if !s.chats.Append(sessionID, types.RoleUser, userMessage) {
		return types.ChatMessageResponse{}, fmt.Errorf("session %s vanished", sessionID)
	}
	// History for the prompt includes the message just appended.
	session, _ := s.chats.Get(sessionID)

	evidence := chatCtx.Retrieve(userMessage)

	prompt := s.buildPrompt(session.Messages, evidence, userMessage)
	response, err := s.llm.Complete(ctx, prompt, llmclient.Options{
		SystemPrompt: prompts.ChatSystem(),
		Temperature:  chatTemperature,
		MaxTokens:    chatMaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return types.ChatMessageResponse{}, err
	}

	answer, quotes, parsed := s.parseResponse(response)
	if !parsed {
		s.logger.Warn("Chat JSON parse failed, retrying with fix prompt",
			zap.String("session_id", sessionID.String()))

		fixPrompt := fmt.Sprintf(prompts.ChatFix(), truncateText(response, chatRepairEchoLimit))
		response, err = s.llm.Complete(ctx, fixPrompt, llmclient.Options{
			Temperature: chatTemperature,
			MaxTokens:   chatMaxTokens,
			JSONMode:    true,
		})
		if err != nil {
			return types.ChatMessageResponse{}, err
		}
		answer, quotes, parsed = s.parseResponse(response)
	}
	if !parsed {
		s.logger.Warn("Chat JSON parsing failed after repair, using fallback answer",
			zap.String("session_id", sessionID.String()))
		answer, quotes = FallbackAnswer, nil
	}

	validated := s.grounder.GroundQuotes(quotes, evidence)
	confidence := chatConfidence(answer, validated, len(evidence))
	if confidence == 0 {
		// An honest "cannot find" carries no citations.
		validated = []pipeline.Quote{}
	}

	s.chats.Append(sessionID, types.RoleAssistant, answer)

	return types.ChatMessageResponse{
		Answer:         answer,
		RelevantQuotes: validated,
		Confidence:     confidence,
	}, nil
}

// buildPrompt splices the last messages of history, the evidence block, and
// the user question into the chat template. Never more than the window.
func (s *ChatService) buildPrompt(history []types.ChatMessage, evidence []pipeline.EvidenceChunk, userMessage string) string {
	var historyBlock string
	if len(history) > 0 {
		if len(history) > chatHistoryWindow {
			history = history[len(history)-chatHistoryWindow:]
		}
		var b strings.Builder
		b.WriteString("CONVERSATION HISTORY (last 4 messages):\n")
		for _, msg := range history {
			label := "User"
			if msg.Role == types.RoleAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, msg.Content)
		}
		b.WriteString("\n")
		historyBlock = b.String()
	}

	var evidenceBlock strings.Builder
	for i, chunk := range evidence {
		fmt.Fprintf(&evidenceBlock, "\n%d. %s\n%s\n", i+1, pipeline.PageLabel(chunk.PageStart, chunk.PageEnd), chunk.Text)
	}

	return fmt.Sprintf(prompts.ChatPrompt(), historyBlock, evidenceBlock.String(), userMessage)
}

func (s *ChatService) parseResponse(response string) (string, []pipeline.Quote, bool) {
	var raw rawChatResponse
	if err := json.Unmarshal([]byte(pipeline.ExtractJSON(response)), &raw); err != nil {
		return "", nil, false
	}
	if raw.Answer == "" {
		return "", nil, false
	}

	quotes := make([]pipeline.Quote, 0, len(raw.RelevantQuotes))
	for _, q := range raw.RelevantQuotes {
		quotes = append(quotes, pipeline.Quote{Text: q.Text})
	}
	return raw.Answer, quotes, true
}

// chatConfidence scores an answer: honest "cannot find" replies are 0, an
// answer with no evidence at all is 30, otherwise 70 plus 10 per validated
// quote, capped at 100.
func chatConfidence(answer string, validated []pipeline.Quote, evidenceCount int) int {
	normalized := pipeline.Normalize(answer)
	for _, phrase := range notFoundPhrases {
		if strings.Contains(normalized, phrase) {
			return 0
		}
	}

	if evidenceCount == 0 {
		return 30
	}

	confidence := 70 + 10*len(validated)
	if confidence > 100 {
		confidence = 100
	}
	return confidence
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
