package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingExecutor struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []uuid.UUID
}

func (e *blockingExecutor) Execute(ctx context.Context, job *Job) (int, error) {
	select {
	case <-e.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	e.mu.Lock()
	e.seen = append(e.seen, job.TenantID)
	e.mu.Unlock()
	return 3, nil
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxConcurrentJobs = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.JobTimeout = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	s := NewScheduler(bad, &blockingExecutor{}, nil)
	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidConfig)
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob(uuid.New(), time.Now(), 1)
	assert.Equal(t, JobStatusPending, job.Status)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Fail("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.True(t, job.ShouldRetry())
	job.RetryCount = 1
	assert.False(t, job.ShouldRetry())

	job.Start()
	job.Complete(4)
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 4, job.Affected)
	assert.Empty(t, job.Error)
}

func TestScheduler_QueueFullAndDrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentJobs = 1
	cfg.QueueSize = 1
	exec := &blockingExecutor{release: make(chan struct{})}
	s := NewScheduler(cfg, exec, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))

	first, second, third := NewJob(uuid.New(), time.Now(), 0), NewJob(uuid.New(), time.Now(), 0), NewJob(uuid.New(), time.Now(), 0)
	require.NoError(t, s.SubmitJob(first))
	// wait until the worker holds the first job
	require.Eventually(t, func() bool { return len(s.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.SubmitJob(second))
	assert.ErrorIs(t, s.SubmitJob(third), ErrJobQueueFull)

	close(exec.release)
	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.seen) == 2
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
