package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicgrid/complaint-service/internal/config"
)

type countingHandler struct {
	runs int64
	err  error
}

func (h *countingHandler) Execute(ctx context.Context) error {
	atomic.AddInt64(&h.runs, 1)
	return h.err
}

func (h *countingHandler) Name() string { return "Counting Handler" }

func newTestScheduler() *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(&config.Config{}, logger)
}

func TestScheduler_AddTask(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddTask(&ScheduledTask{
		ID:       "cleanup",
		Schedule: "0 0 3 * * *",
		Handler:  &countingHandler{},
		Enabled:  true,
	}))

	err := s.AddTask(&ScheduledTask{ID: "cleanup", Schedule: "0 0 4 * * *", Handler: &countingHandler{}})
	assert.Error(t, err, "duplicate task IDs must be rejected")
	assert.Len(t, s.Tasks(), 1)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask(&ScheduledTask{
		ID:       "metrics-refresh",
		Schedule: "0 */5 * * * *",
		Handler:  &countingHandler{},
		Enabled:  true,
	}))
	require.NoError(t, s.AddTask(&ScheduledTask{
		ID:       "disabled-task",
		Schedule: "0 0 * * * *",
		Handler:  &countingHandler{},
		Enabled:  false,
	}))

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	// Second Start is a no-op.
	require.NoError(t, s.Start(ctx))

	s.Stop()
	s.Stop()
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask(&ScheduledTask{
		ID:       "broken",
		Schedule: "not a schedule",
		Handler:  &countingHandler{},
		Enabled:  true,
	}))

	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_ExecuteTaskBookkeeping(t *testing.T) {
	s := newTestScheduler()

	t.Run("Successful Run", func(t *testing.T) {
		handler := &countingHandler{}
		task := &ScheduledTask{ID: "ok", Handler: handler}

		s.executeTask(context.Background(), task)

		assert.Equal(t, int64(1), atomic.LoadInt64(&handler.runs))
		assert.Equal(t, int64(1), task.RunCount)
		assert.Equal(t, int64(0), task.ErrorCount)
		assert.False(t, task.LastRun.IsZero())
	})

	t.Run("Failed Run", func(t *testing.T) {
		handler := &countingHandler{err: errors.New("boom")}
		task := &ScheduledTask{ID: "failing", Handler: handler}

		s.executeTask(context.Background(), task)
		s.executeTask(context.Background(), task)

		assert.Equal(t, int64(2), task.RunCount)
		assert.Equal(t, int64(2), task.ErrorCount)
	})
}

func TestScheduler_TasksSnapshotDuringRuns(t *testing.T) {
	s := newTestScheduler()
	handler := &countingHandler{}
	task := &ScheduledTask{ID: "busy", Handler: handler}
	require.NoError(t, s.AddTask(task))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.executeTask(context.Background(), task)
		}()
	}

	// Snapshot reads must be safe while runs are in flight.
	for i := 0; i < 10; i++ {
		for _, snapshot := range s.Tasks() {
			_ = snapshot.RunCount
			_ = snapshot.LastRun
		}
	}
	wg.Wait()

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(10), tasks[0].RunCount)
	assert.Equal(t, int64(10), atomic.LoadInt64(&handler.runs))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 0 3 * * *"))
	assert.NoError(t, ValidateSchedule("0 */5 * * * *"))
	assert.Error(t, ValidateSchedule("every day at three"))
	assert.Error(t, ValidateSchedule("* * * * *"), "five-field expressions are rejected, seconds are required")
}
