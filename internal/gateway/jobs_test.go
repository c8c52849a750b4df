package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omegaflow/agentcore/internal/models"
)

type fakeRunner struct {
	reply string
	err   error
	delay time.Duration
}

func (r fakeRunner) RunTurn(ctx context.Context, sessionID, content string) (string, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.reply, r.err
}

func TestMemoryJobStoreCreateGetUpdate(t *testing.T) {
	store := NewMemoryJobStore()
	job := models.Job{ID: "j1", SessionID: "s1", Prompt: "hi", State: models.JobQueued, SubmittedAt: time.Now()}
	if err := store.Create(job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(job); err == nil {
		t.Fatal("expected duplicate Create to fail")
	}
	got, ok := store.Get("j1")
	if !ok || got.ID != "j1" {
		t.Fatalf("Get returned %+v, ok=%v", got, ok)
	}
	if err := store.Update("j1", func(j *models.Job) { j.State = models.JobRunning }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = store.Get("j1")
	if got.State != models.JobRunning {
		t.Fatalf("expected updated state, got %v", got.State)
	}
	if err := store.Update("missing", func(j *models.Job) {}); err == nil {
		t.Fatal("expected Update on unknown id to fail")
	}
	if len(store.List()) != 1 {
		t.Fatalf("expected List to return 1 job, got %d", len(store.List()))
	}
}

func TestJobManagerSubmitRejectsEmptyPrompt(t *testing.T) {
	mgr := NewJobManager(JobManagerConfig{}, NewMemoryJobStore(), fakeRunner{reply: "ok"}, nil, nil)
	if _, err := mgr.Submit("s1", "r1", ""); err == nil {
		t.Fatal("expected empty prompt to be rejected")
	}
}

func TestJobManagerRunsSubmittedJobToCompletion(t *testing.T) {
	mgr := NewJobManager(JobManagerConfig{Workers: 1, QueueSize: 4}, NewMemoryJobStore(), fakeRunner{reply: "done"}, nil, nil)
	mgr.Start(context.Background())
	id, err := mgr.Submit("s1", "r1", "hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var event models.JobCompletionEvent
	select {
	case event = <-mgr.Completions():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
	mgr.Shutdown()

	if event.JobID != id {
		t.Fatalf("expected completion for job %s, got %s", id, event.JobID)
	}
	if event.Kind != models.CompletionSucceeded || event.Output != "done" {
		t.Fatalf("unexpected completion event: %+v", event)
	}
	job, ok := mgr.GetStatus(id)
	if !ok || job.State != models.JobSucceeded {
		t.Fatalf("expected job %s succeeded, got %+v ok=%v", id, job, ok)
	}
}

func TestJobManagerMarksRunnerFailureAsFailed(t *testing.T) {
	mgr := NewJobManager(JobManagerConfig{Workers: 1, QueueSize: 4}, NewMemoryJobStore(), fakeRunner{err: errors.New("boom")}, nil, nil)
	mgr.Start(context.Background())
	id, _ := mgr.Submit("s1", "r1", "hello")

	event := <-mgr.Completions()
	mgr.Shutdown()

	if event.Kind != models.CompletionFailed || event.Error != "boom" {
		t.Fatalf("unexpected completion event: %+v", event)
	}
	job, _ := mgr.GetStatus(id)
	if job.State != models.JobFailed {
		t.Fatalf("expected job failed, got %v", job.State)
	}
}

func TestJobManagerMarksDeadlineExceededAsTimedOut(t *testing.T) {
	mgr := NewJobManager(JobManagerConfig{Workers: 1, QueueSize: 4, Deadline: 10 * time.Millisecond},
		NewMemoryJobStore(), fakeRunner{reply: "late", delay: 100 * time.Millisecond}, nil, nil)
	mgr.Start(context.Background())
	id, _ := mgr.Submit("s1", "r1", "hello")

	event := <-mgr.Completions()
	mgr.Shutdown()

	if event.Kind != models.CompletionTimedOut {
		t.Fatalf("expected timed-out completion, got %+v", event)
	}
	job, _ := mgr.GetStatus(id)
	if job.State != models.JobTimedOut {
		t.Fatalf("expected job timed out, got %v", job.State)
	}
}

func TestRunWithSafetyBarrierRecoversPanic(t *testing.T) {
	_, err := runWithSafetyBarrier(func() (string, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected a synthesized error from the recovered panic")
	}
}

func TestClassifyHealth(t *testing.T) {
	healthy := ClassifyHealth(Metrics{}, time.Minute, time.Minute)
	if healthy != HealthOK {
		t.Fatalf("expected HealthOK, got %v", healthy)
	}

	queueStalled := ClassifyHealth(Metrics{Queued: 1, OldestQueuedAgeSecs: 120}, time.Minute, time.Minute)
	if queueStalled != HealthQueueStalled {
		t.Fatalf("expected HealthQueueStalled, got %v", queueStalled)
	}

	runningStalled := ClassifyHealth(Metrics{Running: 1, LongestRunningAgeSecs: 120}, time.Minute, time.Minute)
	if runningStalled != HealthRunningStalled {
		t.Fatalf("expected HealthRunningStalled, got %v", runningStalled)
	}
}
