package scheduler

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/logging"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(logging.NewWithWriter(logging.Config{
		Level:  logging.LevelDebug,
		Format: logging.FormatText,
	}, &bytes.Buffer{}))
	t.Cleanup(s.Stop)
	return s
}

func noop(context.Context) error { return nil }

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr  string
		valid bool
	}{
		{"@hourly", true},
		{"@every 10m", true},
		{"*/5 * * * *", true},
		{"0 3 * * 1-5", true},
		{"", false},
		{"* * * *", false},
		{"61 * * * *", false},
		{"@sometimes", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidation))
		})
	}
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(t)

	id, err := s.AddJob("nightly", "0 3 * * *", noop)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	job, err := s.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, "nightly", job.Name)
	assert.Equal(t, "0 3 * * *", job.CronExpr)
	assert.Equal(t, 3, job.NextRun.Hour())
	assert.True(t, job.NextRun.After(time.Now()))

	jobs := s.GetJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
}

func TestAddJob_Invalid(t *testing.T) {
	s := newTestScheduler(t)

	_, err := s.AddJob("bad", "not a schedule", noop)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = s.AddJob("nil", "@hourly", nil)
	assert.Error(t, err)

	assert.Empty(t, s.GetJobs())
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler(t)

	id, err := s.AddJob("hourly", "@hourly", noop)
	require.NoError(t, err)

	require.NoError(t, s.RemoveJob(id))
	assert.Empty(t, s.GetJobs())
	assert.ErrorIs(t, s.RemoveJob(id), ErrJobNotFound)

	_, err = s.GetJob(id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunJob_RecordsHistory(t *testing.T) {
	s := newTestScheduler(t)
	boom := stderrors.New("boom")
	fail := false

	id, err := s.AddJob("scan", "@hourly", func(context.Context) error {
		if fail {
			return boom
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.RunJob(id))
	fail = true
	assert.ErrorIs(t, s.RunJob(id), boom)

	job, err := s.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Runs)
	assert.ErrorIs(t, job.LastErr, boom)
	assert.False(t, job.Running)
	assert.False(t, job.LastRun.IsZero())

	assert.ErrorIs(t, s.RunJob(uuid.New()), ErrJobNotFound)
}

func TestRunJob_SkipsOverlappingRuns(t *testing.T) {
	s := newTestScheduler(t)
	started := make(chan struct{})
	release := make(chan struct{})

	id, err := s.AddJob("slow", "@hourly", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.RunJob(id) }()
	<-started

	assert.ErrorIs(t, s.RunJob(id), ErrJobRunning)

	close(release)
	require.NoError(t, <-done)

	job, err := s.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Runs)
	assert.Equal(t, 1, job.Skipped)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t)
	var runs atomic.Int32

	_, err := s.AddJob("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	s.Stop()
	after := runs.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, runs.Load())

	assert.Error(t, s.Start())
}

func TestStop_CancelsRunningJob(t *testing.T) {
	s := newTestScheduler(t)
	started := make(chan struct{})

	id, err := s.AddJob("long", "@hourly", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	done := make(chan error, 1)
	go func() { done <- s.RunJob(id) }()
	<-started

	s.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("running job was not cancelled")
	}

	assert.ErrorIs(t, s.RunJob(id), context.Canceled)
}
