// Package scheduler runs recurring scans on cron schedules. Each job is a
// function that performs one scan; a job that is still running when its next
// tick arrives is skipped rather than started twice.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/logging"
)

var (
	// ErrJobNotFound is returned for an unknown job ID.
	ErrJobNotFound = stderrors.New("job not found")
	// ErrJobRunning is returned by RunJob when the job is already running.
	ErrJobRunning = stderrors.New("job is already running")
)

// JobFunc performs one run of a scheduled job. ctx is cancelled when the
// scheduler stops.
type JobFunc func(ctx context.Context) error

// Scheduler manages scheduled scan jobs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[uuid.UUID]*ScheduledJob
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logging.Logger

	inflight sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// ScheduledJob describes a job and its run history.
type ScheduledJob struct {
	ID       uuid.UUID
	Name     string
	CronExpr string
	CronID   cron.EntryID
	LastRun  time.Time
	NextRun  time.Time
	Running  bool
	Runs     int
	Skipped  int
	LastErr  error

	run JobFunc
}

// NewScheduler creates a new job scheduler.
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[uuid.UUID]*ScheduledJob),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.WithComponent("scheduler"),
		stopped: make(chan struct{}),
	}
}

// ValidateSchedule checks a cron expression: five standard fields or a
// descriptor such as @hourly or @every 10m.
func ValidateSchedule(cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid cron expression: %v", err), "Schedule", cronExpr)
	}
	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler has been stopped")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop stops scheduling new runs, cancels the context of running jobs and
// waits for them to return. Every call blocks until that has happened.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasRunning := s.running
		s.running = false
		s.cancel()
		s.mu.Unlock()

		if wasRunning {
			<-s.cron.Stop().Done()
		}
		s.inflight.Wait()

		s.logger.Info("Scheduler stopped")
		close(s.stopped)
	})
	<-s.stopped
}

// AddJob schedules fn under cronExpr and returns the job ID.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) (uuid.UUID, error) {
	if err := ValidateSchedule(cronExpr); err != nil {
		return uuid.Nil, err
	}
	if fn == nil {
		return uuid.Nil, fmt.Errorf("job %q has no function", name)
	}

	job := &ScheduledJob{
		ID:       uuid.New(),
		Name:     name,
		CronExpr: cronExpr,
		run:      fn,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cronID, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.RunJob(job.ID); err != nil && !stderrors.Is(err, ErrJobRunning) {
			s.logger.Debug("Scheduled run not started", "job", name, "error", err)
		}
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add job to cron: %w", err)
	}
	job.CronID = cronID
	s.jobs[job.ID] = job

	s.logger.Info("Added scheduled job", "job", name, "schedule", cronExpr)
	return job.ID, nil
}

// RemoveJob removes a scheduled job. A run in progress is not interrupted.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	s.cron.Remove(job.CronID)
	delete(s.jobs, jobID)

	s.logger.Info("Removed scheduled job", "job", job.Name)
	return nil
}

// GetJobs returns a snapshot of every job with its next run time.
func (s *Scheduler) GetJobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		snapshot.run = nil
		snapshot.NextRun = s.nextRun(job)
		jobs = append(jobs, snapshot)
	}
	return jobs
}

// GetJob returns a snapshot of one job.
func (s *Scheduler) GetJob(jobID uuid.UUID) (ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return ScheduledJob{}, ErrJobNotFound
	}
	snapshot := *job
	snapshot.run = nil
	snapshot.NextRun = s.nextRun(job)
	return snapshot, nil
}

// RunJob runs a job now, in the calling goroutine. It returns ErrJobRunning
// without running when the previous run has not finished, otherwise the
// job's own error.
func (s *Scheduler) RunJob(jobID uuid.UUID) error {
	job, err := s.prepareJobExecution(jobID)
	if err != nil {
		return err
	}

	s.logger.Debug("Executing scheduled job", "job", job.Name)
	start := time.Now()
	runErr := job.run(s.ctx)

	s.cleanupJobExecution(jobID, runErr)
	s.inflight.Done()

	if runErr != nil {
		s.logger.Warn("Scheduled job failed", "job", job.Name, "error", runErr,
			"duration", time.Since(start))
	} else {
		s.logger.Debug("Scheduled job completed", "job", job.Name,
			"duration", time.Since(start))
	}
	return runErr
}

// prepareJobExecution marks the job as running.
func (s *Scheduler) prepareJobExecution(jobID uuid.UUID) (*ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, ErrJobNotFound
	}
	if s.ctx.Err() != nil {
		return nil, s.ctx.Err()
	}

	if job.Running {
		job.Skipped++
		s.logger.Warn("Scheduled job is still running, skipping this run", "job", job.Name)
		return nil, ErrJobRunning
	}

	job.Running = true
	job.LastRun = time.Now()
	s.inflight.Add(1)
	return job, nil
}

// cleanupJobExecution marks the job as no longer running.
func (s *Scheduler) cleanupJobExecution(jobID uuid.UUID, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		job.Running = false
		job.Runs++
		job.LastErr = runErr
	}
}

// nextRun reports when cron will next fire the job. Before Start, cron has
// not computed it yet, so it is derived from the schedule.
func (s *Scheduler) nextRun(job *ScheduledJob) time.Time {
	if entry := s.cron.Entry(job.CronID); !entry.Next.IsZero() {
		return entry.Next
	}
	schedule, err := cron.ParseStandard(job.CronExpr)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(time.Now())
}
