package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
	"contract-analyzer/pipeline"
	"contract-analyzer/web/types"
)

// AnalysisService runs analysis jobs in the background. Concurrency is
// bounded by a semaphore sized from MAX_CONCURRENT_JOBS; each job gets an
// independent deadline.
type AnalysisService struct {
	// baseCtx is the application-lifetime context; jobs must not inherit the
	// upload request's context or they would die with the HTTP response.
	baseCtx context.Context
	cfg     *config.Config
	runner  *pipeline.Runner
	jobs    *JobStore
	chats   *ChatStore
	cache   *ContextCache
	logger  *zap.Logger
	sem     chan struct{}
}

func NewAnalysisService(
	baseCtx context.Context,
	cfg *config.Config,
	runner *pipeline.Runner,
	jobs *JobStore,
	chats *ChatStore,
	cache *ContextCache,
	logger *zap.Logger,
) *AnalysisService {
	maxJobs := cfg.MaxConcurrentJobs
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &AnalysisService{
		baseCtx: baseCtx,
		cfg:     cfg,
		runner:  runner,
		jobs:    jobs,
		chats:   chats,
		cache:   cache,
		logger:  logger,
		sem:     make(chan struct{}, maxJobs),
	}
}

// StartJob registers a pending job and schedules background processing. The
// pdf bytes are owned by the job goroutine from here on.
func (s *AnalysisService) StartJob(filename string, pdfBytes []byte) uuid.UUID {
	jobID := s.jobs.Create(filename, int64(len(pdfBytes)))

	s.logger.Info("Job created",
		zap.String("job_id", jobID.String()),
		zap.String("filename", filename),
		zap.Int("size_bytes", len(pdfBytes)))

	go s.process(jobID, filename, pdfBytes)
	return jobID
}

func (s *AnalysisService) process(jobID uuid.UUID, filename string, pdfBytes []byte) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	jobCtx, cancel := context.WithTimeout(s.baseCtx, s.cfg.JobTimeoutSeconds)
	defer cancel()

	_ = s.jobs.Update(jobID, func(job *types.Job) {
		job.Status = types.JobProcessing
	})

	out, err := s.runner.RunAnalysis(jobCtx, pdfBytes, filename, func(percent int, stage string) {
		s.jobs.SetProgress(jobID, percent, stage)
	})
	if err != nil {
		s.fail(jobID, err)
		return
	}

	now := time.Now().UTC()
	_ = s.jobs.Update(jobID, func(job *types.Job) {
		job.Status = types.JobCompleted
		job.Stage = "Completed"
		job.Progress = 100
		job.CompletedAt = &now
		job.Document = out.Document
		job.Chunks = out.Chunks
		job.Results = out.Results
		job.TimingsMS = out.Timings.Map()
	})

	s.logger.Info("Job completed",
		zap.String("job_id", jobID.String()),
		zap.Int("results", len(out.Results)),
		zap.Bool("needs_ocr", out.Document.NeedsOCR()),
		zap.Int64("total_ms", out.Timings.TotalMS))
}

// fail marks the job failed with a generic user-visible message. The real
// error stays in the logs; document text never leaks into the record.
func (s *AnalysisService) fail(jobID uuid.UUID, err error) {
	message := "Processing failed"
	switch {
	case apperrors.IsParser(err):
		message = "The uploaded file could not be parsed as a PDF"
	case apperrors.IsLLM(err):
		message = "Analysis backend unavailable"
	}

	s.logger.Error("Job failed",
		zap.String("job_id", jobID.String()),
		zap.Error(err))

	_ = s.jobs.Update(jobID, func(job *types.Job) {
		job.Status = types.JobFailed
		job.ErrorMessage = message
	})
}

// ChatContext returns the cached retrieval index for a completed job,
// building and caching it on first use.
func (s *AnalysisService) ChatContext(job types.Job) (*pipeline.ChatContext, error) {
	if job.Status != types.JobCompleted || job.Document == nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrJobNotReady, "job %s", job.JobID)
	}
	if chatCtx, ok := s.cache.Get(job.JobID); ok {
		return chatCtx, nil
	}
	chatCtx := s.runner.BuildChatContext(job.Document, job.Chunks)
	s.cache.Put(job.JobID, chatCtx)
	return chatCtx, nil
}
