// Package gateway implements the Dispatch Fabric: per-channel inbound
// routing, a foreground pool serialized per session via the Session Gate,
// and a bounded background Job Manager with a simple in-memory job store
// for bookkeeping and recurring submission.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/metrics"
	"github.com/omegaflow/agentcore/internal/models"
)

// TurnRunner is the narrow capability the fabric needs from the Agent Turn
// Engine: run one turn and report its final reply or error.
type TurnRunner interface {
	RunTurn(ctx context.Context, sessionID, content string) (reply string, err error)
}

// JobStore is the Job Manager's persistence contract, covering the
// TimedOut/Cancelled states background turns can reach in addition to
// the usual queued/running/succeeded/failed lifecycle.
type JobStore interface {
	Create(job models.Job) error
	Update(id string, mutate func(*models.Job)) error
	Get(id string) (models.Job, bool)
	List() []models.Job
}

// MemoryJobStore is a simple in-memory JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewMemoryJobStore constructs an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*models.Job)}
}

func (s *MemoryJobStore) Create(job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("gateway: job %s already exists", job.ID)
	}
	cp := job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryJobStore) Update(id string, mutate func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("gateway: unknown job %s", id)
	}
	mutate(job)
	return nil
}

func (s *MemoryJobStore) Get(id string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

func (s *MemoryJobStore) List() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// JobManagerConfig bounds the background worker pool and its queue.
type JobManagerConfig struct {
	QueueSize int
	Workers   int
	Deadline  time.Duration
}

// JobManager runs submitted prompts through a TurnRunner on a fixed worker
// pool, publishing completion events for the dispatch fabric's transports
// to drain.
type JobManager struct {
	cfg     JobManagerConfig
	store   JobStore
	runner  TurnRunner
	log     *logging.Logger
	metrics *metrics.Registry

	queue      chan string
	completion chan models.JobCompletionEvent

	wg sync.WaitGroup
}

// NewJobManager constructs a JobManager; call Start to spin up its workers.
func NewJobManager(cfg JobManagerConfig, store JobStore, runner TurnRunner, log *logging.Logger, reg *metrics.Registry) *JobManager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 5 * time.Minute
	}
	return &JobManager{
		cfg: cfg, store: store, runner: runner, log: log, metrics: reg,
		queue:      make(chan string, cfg.QueueSize),
		completion: make(chan models.JobCompletionEvent, cfg.QueueSize),
	}
}

// Completions returns the channel transports drain for job-completion
// notices.
func (m *JobManager) Completions() <-chan models.JobCompletionEvent { return m.completion }

// Start launches the worker pool; it returns once all workers have been
// spawned (not once they finish — call Shutdown to drain and stop them).
func (m *JobManager) Start(ctx context.Context) {
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
}

// Shutdown closes the submission queue and waits for in-flight jobs to
// reach a terminal state.
func (m *JobManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
	close(m.completion)
}

// Submit validates and enqueues a new job, returning its ID. It fails with
// queue_full when the background queue is saturated.
func (m *JobManager) Submit(sessionID, recipient, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("validation: prompt must not be empty")
	}
	id := uuid.NewString()
	job := models.Job{
		ID: id, SessionID: sessionID, Recipient: recipient, Prompt: prompt,
		State: models.JobQueued, SubmittedAt: time.Now(),
	}
	if err := m.store.Create(job); err != nil {
		return "", fmt.Errorf("gateway: create job: %w", err)
	}
	select {
	case m.queue <- id:
		if m.metrics != nil {
			m.metrics.JobsQueued.Inc()
		}
		return id, nil
	default:
		_ = m.store.Update(id, func(j *models.Job) { j.State = models.JobFailed; j.Error = "queue_full" })
		return "", fmt.Errorf("queue_full: background queue is saturated")
	}
}

// GetStatus returns the current record for id.
func (m *JobManager) GetStatus(id string) (models.Job, bool) { return m.store.Get(id) }

// Metrics summarizes queue depth and job ages for health classification.
type Metrics struct {
	Queued             int
	Running            int
	OldestQueuedAgeSecs   float64
	LongestRunningAgeSecs float64
}

// MetricsSnapshot computes the current queue/running counts and ages.
func (m *JobManager) MetricsSnapshot() Metrics {
	now := time.Now()
	var out Metrics
	for _, j := range m.store.List() {
		switch j.State {
		case models.JobQueued:
			out.Queued++
			age := now.Sub(j.SubmittedAt).Seconds()
			if age > out.OldestQueuedAgeSecs {
				out.OldestQueuedAgeSecs = age
			}
		case models.JobRunning:
			out.Running++
			if j.StartedAt != nil {
				age := now.Sub(*j.StartedAt).Seconds()
				if age > out.LongestRunningAgeSecs {
					out.LongestRunningAgeSecs = age
				}
			}
		}
	}
	return out
}

// Health classifies the job manager's backlog against caller-supplied age
// thresholds.
type Health string

const (
	HealthOK             Health = "healthy"
	HealthQueueStalled   Health = "queue_stalled"
	HealthRunningStalled Health = "running_stalled"
)

// ClassifyHealth turns queue/running age metrics into a coarse health verdict.
func ClassifyHealth(m Metrics, maxQueuedAge, maxRunningAge time.Duration) Health {
	if m.Queued > 0 && m.OldestQueuedAgeSecs > maxQueuedAge.Seconds() {
		return HealthQueueStalled
	}
	if m.Running > 0 && m.LongestRunningAgeSecs > maxRunningAge.Seconds() {
		return HealthRunningStalled
	}
	return HealthOK
}

func (m *JobManager) worker(ctx context.Context) {
	defer m.wg.Done()
	for id := range m.queue {
		m.runOne(ctx, id)
	}
}

func (m *JobManager) runOne(ctx context.Context, id string) {
	job, ok := m.store.Get(id)
	if !ok {
		return
	}
	started := time.Now()
	_ = m.store.Update(id, func(j *models.Job) { j.State = models.JobRunning; j.StartedAt = &started })
	if m.metrics != nil {
		m.metrics.JobsQueued.Dec()
		m.metrics.JobsRunning.Inc()
	}

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Deadline)
	defer cancel()

	reply, err := runWithSafetyBarrier(func() (string, error) {
		return m.runner.RunTurn(runCtx, job.SessionID, job.Prompt)
	})

	finished := time.Now()
	var event models.JobCompletionEvent
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		_ = m.store.Update(id, func(j *models.Job) { j.State = models.JobTimedOut; j.FinishedAt = &finished })
		event = models.JobCompletionEvent{JobID: id, Recipient: job.Recipient, Kind: models.CompletionTimedOut, TimeoutSecs: int(m.cfg.Deadline.Seconds())}
	case err != nil:
		_ = m.store.Update(id, func(j *models.Job) { j.State = models.JobFailed; j.Error = err.Error(); j.FinishedAt = &finished })
		event = models.JobCompletionEvent{JobID: id, Recipient: job.Recipient, Kind: models.CompletionFailed, Error: err.Error()}
	default:
		_ = m.store.Update(id, func(j *models.Job) { j.State = models.JobSucceeded; j.Output = reply; j.FinishedAt = &finished })
		event = models.JobCompletionEvent{JobID: id, Recipient: job.Recipient, Kind: models.CompletionSucceeded, Output: reply}
	}
	if m.metrics != nil {
		m.metrics.JobsRunning.Dec()
		m.metrics.JobsCompleted.WithLabelValues(string(event.Kind)).Inc()
	}
	m.completion <- event
}

// runWithSafetyBarrier converts a panic in fn into a synthetic unknown-kind
// error instead of letting it cross the dispatch fabric boundary, keeping
// a panic inside a worker from taking the process down.
func runWithSafetyBarrier(fn func() (string, error)) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unknown: safety barrier intercepted panic: %v", r)
		}
	}()
	return fn()
}
