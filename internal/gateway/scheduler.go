package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/omegaflow/agentcore/internal/logging"
)

// RecurringSchedule describes one cron-backed recurring submission.
type RecurringSchedule struct {
	ID            string
	SessionPrefix string
	Recipient     string
	Prompt        string
	CronSpec      string // standard 5-field cron expression
	MaxRuns       int    // 0 means unbounded
}

// Scheduler drives RecurringSchedules on top of robfig/cron, wrapping each
// tick as a JobManager submission rather than running its own timer loop.
type Scheduler struct {
	cron *cron.Cron
	jobs *JobManager
	log  *logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ticks   map[string]*int64
}

// NewScheduler builds a Scheduler bound to jobs.
func NewScheduler(jobs *JobManager, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		jobs:    jobs,
		log:     log,
		entries: make(map[string]cron.EntryID),
		ticks:   make(map[string]*int64),
	}
}

// Start begins dispatching scheduled ticks.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron scheduler; in-flight jobs it already submitted
// continue to run to completion via the JobManager.
func (s *Scheduler) Stop() { s.cron.Stop() }

// AddSchedule registers sched, submitting one job per tick with a
// session-id of "<prefix>:<tick>".
func (s *Scheduler) AddSchedule(sched RecurringSchedule) error {
	tickCounter := new(int64)
	entryID, err := s.cron.AddFunc(sched.CronSpec, func() {
		tick := atomic.AddInt64(tickCounter, 1)
		if sched.MaxRuns > 0 && tick > int64(sched.MaxRuns) {
			s.RemoveSchedule(sched.ID)
			return
		}
		sessionID := fmt.Sprintf("%s:%d", sched.SessionPrefix, tick)
		if _, err := s.jobs.Submit(sessionID, sched.Recipient, sched.Prompt); err != nil {
			s.log.WithComponent("scheduler").Warn("recurring submit failed", "schedule", sched.ID, "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("gateway: add schedule %s: %w", sched.ID, err)
	}
	s.mu.Lock()
	s.entries[sched.ID] = entryID
	s.ticks[sched.ID] = tickCounter
	s.mu.Unlock()
	return nil
}

// RemoveSchedule cancels a previously registered schedule.
func (s *Scheduler) RemoveSchedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
		delete(s.ticks, id)
	}
}
