package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "contract-analyzer/errors"
	"contract-analyzer/web/services"
	"contract-analyzer/web/types"
)

type ChatHandler struct {
	jobs     *services.JobStore
	chats    *services.ChatStore
	analysis *services.AnalysisService
	chat     *services.ChatService
	logger   *zap.Logger
}

func NewChatHandler(
	jobs *services.JobStore,
	chats *services.ChatStore,
	analysis *services.AnalysisService,
	chat *services.ChatService,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		jobs:     jobs,
		chats:    chats,
		analysis: analysis,
		chat:     chat,
		logger:   logger,
	}
}

// Start opens a chat session against a completed job.
func (h *ChatHandler) Start(c *gin.Context) {
	var req types.ChatStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "A valid job_id is required")
		return
	}

	job, ok := h.jobs.Get(req.JobID)
	if !ok {
		respondWithClientError(c, http.StatusNotFound, "Job not found")
		return
	}
	if job.Status != types.JobCompleted {
		respondWithClientError(c, http.StatusConflict, "Job has not completed; chat is only available for completed analyses")
		return
	}

	sessionID := h.chats.Create(job.JobID)
	c.JSON(http.StatusOK, types.ChatStartResponse{
		SessionID: sessionID,
		JobID:     job.JobID,
		Message:   "Chat session started. Ask questions about the analyzed contract.",
	})
}

// Message answers one user question against the session's document. One
// in-flight message per session; concurrent sends are serialized.
func (h *ChatHandler) Message(c *gin.Context) {
	var req types.ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "session_id and a non-empty message are required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondWithClientError(c, http.StatusBadRequest, "session_id and a non-empty message are required")
		return
	}

	release, ok := h.chats.Acquire(req.SessionID)
	if !ok {
		respondWithClientError(c, http.StatusNotFound, "Chat session not found")
		return
	}
	defer release()

	session, ok := h.chats.Get(req.SessionID)
	if !ok {
		respondWithClientError(c, http.StatusNotFound, "Chat session not found")
		return
	}

	job, ok := h.jobs.Get(session.JobID)
	if !ok {
		respondWithClientError(c, http.StatusNotFound, "The job behind this session no longer exists")
		return
	}

	chatCtx, err := h.analysis.ChatContext(job)
	if err != nil {
		if apperrors.IsJobNotReady(err) {
			respondWithClientError(c, http.StatusConflict, "Job has not completed; chat is only available for completed analyses")
			return
		}
		respondWithError(c, http.StatusInternalServerError, err, "Failed to prepare document context", h.logger,
			zap.String("session_id", req.SessionID.String()))
		return
	}

	resp, err := h.chat.Answer(c.Request.Context(), req.SessionID, req.Message, chatCtx)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Failed to answer message", h.logger,
			zap.String("session_id", req.SessionID.String()))
		return
	}

	c.JSON(http.StatusOK, resp)
}
