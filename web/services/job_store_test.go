package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "contract-analyzer/errors"
	"contract-analyzer/web/types"
)

func TestJobStoreCreateAndGet(t *testing.T) {
	store := NewJobStore()
	id := store.Create("contract.pdf", 2048)

	job, ok := store.Get(id)
	if !ok {
		t.Fatal("created job not found")
	}
	if job.Status != types.JobPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.Filename != "contract.pdf" || job.FileSizeBytes != 2048 {
		t.Errorf("job = %+v", job)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	if _, ok := store.Get(uuid.New()); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestJobStoreUpdate(t *testing.T) {
	store := NewJobStore()
	id := store.Create("a.pdf", 1)

	before, _ := store.Get(id)
	err := store.Update(id, func(job *types.Job) {
		job.Status = types.JobProcessing
	})
	if err != nil {
		t.Fatal(err)
	}

	after, _ := store.Get(id)
	if after.Status != types.JobProcessing {
		t.Errorf("status = %q, want processing", after.Status)
	}
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Error("UpdatedAt must advance on update")
	}

	if err := store.Update(uuid.New(), func(*types.Job) {}); !apperrors.IsNotFound(err) {
		t.Errorf("unknown id update error = %v, want ErrNotFound", err)
	}
}

func TestJobStoreSetProgressKeepsStage(t *testing.T) {
	store := NewJobStore()
	id := store.Create("a.pdf", 1)

	store.SetProgress(id, 20, "Analyzing requirement 1/5")
	store.SetProgress(id, 36, "")

	job, _ := store.Get(id)
	if job.Progress != 36 {
		t.Errorf("progress = %d, want 36", job.Progress)
	}
	if job.Stage != "Analyzing requirement 1/5" {
		t.Errorf("stage = %q, empty stage must keep the previous one", job.Stage)
	}
}

func TestJobStoreGetIsSnapshot(t *testing.T) {
	store := NewJobStore()
	id := store.Create("a.pdf", 1)

	snapshot, _ := store.Get(id)
	snapshot.Status = types.JobFailed

	fresh, _ := store.Get(id)
	if fresh.Status != types.JobPending {
		t.Error("mutating a snapshot must not affect the store")
	}
}

func TestJobStoreOlderThan(t *testing.T) {
	store := NewJobStore()
	oldID := store.Create("old.pdf", 1)
	newID := store.Create("new.pdf", 1)

	// Backdate the first job past the cutoff.
	_ = store.Update(oldID, func(*types.Job) {})
	store.mu.Lock()
	store.jobs[oldID].UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	store.mu.Unlock()

	stale := store.OlderThan(time.Now().UTC().Add(-24 * time.Hour))
	if len(stale) != 1 || stale[0] != oldID {
		t.Errorf("stale = %v, want only the backdated job", stale)
	}

	store.Delete(oldID)
	if store.Count() != 1 {
		t.Errorf("count = %d after delete, want 1", store.Count())
	}
	if _, ok := store.Get(newID); !ok {
		t.Error("unrelated job must survive deletion")
	}
}
