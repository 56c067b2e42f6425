package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"contract-analyzer/config"
	"contract-analyzer/web/format"
	"contract-analyzer/web/services"
	"contract-analyzer/web/types"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

type AnalysisHandler struct {
	cfg      *config.Config
	uploads  *services.UploadService
	analysis *services.AnalysisService
	jobs     *services.JobStore
	logger   *zap.Logger
}

func NewAnalysisHandler(
	cfg *config.Config,
	uploads *services.UploadService,
	analysis *services.AnalysisService,
	jobs *services.JobStore,
	logger *zap.Logger,
) *AnalysisHandler {
	return &AnalysisHandler{
		cfg:      cfg,
		uploads:  uploads,
		analysis: analysis,
		jobs:     jobs,
		logger:   logger,
	}
}

// Upload accepts a multipart PDF, validates it, and schedules a background
// analysis job. Responds 202 with the job id.
func (h *AnalysisHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "A PDF file is required in the 'file' field")
		return
	}

	filename, data, err := h.uploads.ValidateAndRead(file)
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, userFacingMessage(err))
		return
	}

	jobID := h.analysis.StartJob(filename, data)

	c.JSON(http.StatusAccepted, types.UploadResponse{
		JobID:   jobID,
		Status:  types.JobPending,
		Message: "File uploaded successfully. Processing started.",
	})
}

// Status reports job progress.
func (h *AnalysisHandler) Status(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, types.JobStatusResponse{
		JobID:        job.JobID,
		Status:       job.Status,
		Progress:     job.Progress,
		Stage:        job.Stage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		ErrorMessage: job.ErrorMessage,
		TimingsMS:    job.TimingsMS,
	})
}

// Result returns the full compliance results for a completed job. 425 while
// still running, 500 if the job failed.
func (h *AnalysisHandler) Result(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	switch job.Status {
	case types.JobFailed:
		respondWithClientError(c, http.StatusInternalServerError, job.ErrorMessage)
		return
	case types.JobCompleted:
	default:
		respondWithClientError(c, http.StatusTooEarly, "Job is still processing")
		return
	}

	needsOCR := false
	if job.Document != nil {
		needsOCR = job.Document.NeedsOCR()
	}

	c.JSON(http.StatusOK, types.JobResultResponse{
		JobID:       job.JobID,
		Filename:    job.Filename,
		Status:      job.Status,
		Results:     job.Results,
		CompletedAt: job.CompletedAt,
		LLMMode:     h.cfg.LLMMode,
		ModelName:   h.cfg.ModelName(),
		NeedsOCR:    needsOCR,
		TimingsMS:   job.TimingsMS,
	})
}

// Report renders the results as an HTML compliance report.
func (h *AnalysisHandler) Report(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}
	if job.Status != types.JobCompleted {
		respondWithClientError(c, http.StatusTooEarly, "Job is still processing")
		return
	}

	md := format.BuildReport(job)
	c.Data(http.StatusOK, "text/html; charset=utf-8", format.MdToHTML(md))
}

// Health is the liveness endpoint.
func (h *AnalysisHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:  "healthy",
		Version: Version,
		LLMMode: h.cfg.LLMMode,
	})
}

func (h *AnalysisHandler) lookupJob(c *gin.Context) (types.Job, bool) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid job id")
		return types.Job{}, false
	}

	job, ok := h.jobs.Get(jobID)
	if !ok {
		respondWithClientError(c, http.StatusNotFound, "Job not found")
		return types.Job{}, false
	}
	return job, true
}
