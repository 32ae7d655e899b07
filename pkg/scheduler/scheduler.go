// Package scheduler fires durable delayed jobs at-most-once.
//
// Jobs rest in a persistent store until a periodic sweep claims the due
// ones and runs their registered handlers under a bounded concurrency
// budget. Claiming flips the job out of the pending state before the
// handler runs, so overlapping sweeps never fire the same job twice.
// Jobs left mid-flight by a crash are returned to pending on startup,
// which trades a possible re-fire after a crash for never losing a job.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"xpromo/pkg/config"
	"xpromo/pkg/errors"
	"xpromo/pkg/logger"
)

// Handler processes one claimed job.
type Handler func(ctx context.Context, job Job) error

// Scheduler sweeps the job store and dispatches due jobs to handlers.
type Scheduler struct {
	store JobStore
	log   logger.Logger

	processEvery   time.Duration
	maxConcurrency int

	mu       sync.RWMutex
	handlers map[string]Handler

	sem      chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler over the given store.
func New(store JobStore, cfg *config.SchedulerConfig, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scheduler{
		store:          store,
		log:            log,
		processEvery:   cfg.ProcessEvery,
		maxConcurrency: cfg.MaxConcurrency,
		handlers:       make(map[string]Handler),
		sem:            make(chan struct{}, cfg.MaxConcurrency),
		stop:           make(chan struct{}),
	}
}

// Register binds a handler to an action name. Jobs enqueued with an
// unregistered action fail at fire time.
func (s *Scheduler) Register(action string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[action] = h
}

// Enqueue persists a job due at dueAt and returns its id. It never
// blocks on firing; payload is marshalled to JSON.
func (s *Scheduler) Enqueue(ctx context.Context, dueAt time.Time, action string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode job payload: %w", err)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Action:    action,
		Payload:   raw,
		DueAt:     dueAt.UTC(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, job); err != nil {
		return "", err
	}

	s.log.DebugWithFields("job enqueued", map[string]interface{}{
		"job_id": job.ID,
		"action": action,
		"due_at": job.DueAt,
	})
	return job.ID, nil
}

// Start recovers interrupted jobs and begins the sweep loop. It returns
// after the first recovery pass; sweeps continue in the background until
// Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	recovered, err := s.store.RecoverFiring(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		s.log.WarnWithFields("returned interrupted jobs to pending", map[string]interface{}{
			"count": recovered,
		})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.processEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
	return nil
}

// Stop halts the sweep loop and waits for in-flight handlers.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Sweep claims every due job and fires each under the concurrency
// budget. Exposed so callers can trigger an immediate pass.
func (s *Scheduler) Sweep(ctx context.Context) {
	jobs, err := s.store.ClaimDue(ctx, time.Now().UTC(), s.maxConcurrency)
	if err != nil {
		s.log.WithError(err).Error("sweep failed to claim due jobs")
		return
	}

	for _, job := range jobs {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}

		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.fire(ctx, job)
		}(job)
	}
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	s.mu.RLock()
	handler := s.handlers[job.Action]
	s.mu.RUnlock()

	firedAt := time.Now().UTC()

	var err error
	if handler == nil {
		err = fmt.Errorf("no handler registered for action %q", job.Action)
	} else {
		err = handler(ctx, job)
	}

	if err != nil {
		jobErr := &errors.JobError{JobID: job.ID, Action: job.Action, Err: err}
		s.log.WithError(jobErr).WarnWithFields("job failed", map[string]interface{}{
			"job_id": job.ID,
			"action": job.Action,
		})
		if markErr := s.store.MarkFailed(ctx, job.ID, firedAt, err.Error()); markErr != nil {
			s.log.WithError(markErr).Error("failed to record job failure")
		}
		return
	}

	if markErr := s.store.MarkDone(ctx, job.ID, firedAt); markErr != nil {
		s.log.WithError(markErr).Error("failed to record job completion")
		return
	}
	s.log.InfoWithFields("job completed", map[string]interface{}{
		"job_id": job.ID,
		"action": job.Action,
	})
}
