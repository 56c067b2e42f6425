package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
	"contract-analyzer/pipeline"
	"contract-analyzer/web/types"
)

func newAnalysisFixture(t *testing.T) (*AnalysisService, *JobStore) {
	t.Helper()
	cfg := &config.Config{
		RetrievalTopK:     5,
		PagesPerChunk:     1,
		OverlapPages:      0,
		MaxConcurrentJobs: 1,
		JobTimeoutSeconds: 5 * time.Second,
	}
	runner, err := pipeline.NewRunner(cfg, &scriptedLLM{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	jobs := NewJobStore()
	cache, err := NewContextCache(8)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewAnalysisService(context.Background(), cfg, runner, jobs, NewChatStore(), cache, zap.NewNop())
	return svc, jobs
}

func TestStartJobFailsOnUnparseablePDF(t *testing.T) {
	svc, jobs := newAnalysisFixture(t)

	jobID := svc.StartJob("bad.pdf", []byte("%PDF- but not really a pdf"))

	deadline := time.Now().Add(5 * time.Second)
	for {
		job, ok := jobs.Get(jobID)
		if !ok {
			t.Fatal("job vanished")
		}
		if job.Status == types.JobFailed {
			if job.ErrorMessage != "The uploaded file could not be parsed as a PDF" {
				t.Errorf("error message = %q", job.ErrorMessage)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in status %q", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChatContextRequiresCompletedJob(t *testing.T) {
	svc, jobs := newAnalysisFixture(t)
	jobID := jobs.Create("pending.pdf", 1)

	job, _ := jobs.Get(jobID)
	if _, err := svc.ChatContext(job); !apperrors.IsJobNotReady(err) {
		t.Errorf("error = %v, want ErrJobNotReady", err)
	}
}

func TestChatContextCached(t *testing.T) {
	svc, jobs := newAnalysisFixture(t)
	jobID := jobs.Create("done.pdf", 1)

	doc := &pipeline.Document{
		DocID:     "d",
		PageCount: 1,
		Pages: []pipeline.Page{{
			PageNumber: 1, RawText: "text", NormalizedText: "text",
			CharOffsetStart: 0, CharOffsetEnd: 4, WordCount: 1,
		}},
		Metadata: map[string]interface{}{},
	}
	_ = jobs.Update(jobID, func(job *types.Job) {
		job.Status = types.JobCompleted
		job.Document = doc
	})

	job, _ := jobs.Get(jobID)
	first, err := svc.ChatContext(job)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ChatContext(job)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second lookup should hit the cache")
	}
}
