package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmined/replisync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FromConfig(t *testing.T) {
	s, err := New(&config.Schedule{Type: config.ScheduleInterval, EverySeconds: 15})
	require.NoError(t, err)
	assert.Equal(t, "every 15s", s.String())

	s, err = New(&config.Schedule{Type: config.ScheduleCron, Expression: "0 * * * *"})
	require.NoError(t, err)
	assert.Equal(t, "cron 0 * * * *", s.String())

	_, err = New(&config.Schedule{Type: config.ScheduleCron, Expression: "bogus"})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}

func TestRun_IntervalRepeatsAndSurvivesErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	task := func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			cancel()
		}
		return errors.New("pass failed")
	}

	done := make(chan error, 1)
	go func() { done <- Every(5 * time.Millisecond).Run(ctx, task) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRun_CronRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	s, err := New(&config.Schedule{Type: config.ScheduleCron, Expression: "0 0 1 1 *"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	task := func(ctx context.Context) error {
		ran <- struct{}{}
		cancel()
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, task) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run immediately")
	}
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunLock_Exclusive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data.sqlite")

	first := NewRunLock(dbPath)
	require.NoError(t, first.Lock())
	assert.FileExists(t, first.Path())

	second := NewRunLock(dbPath)
	assert.ErrorIs(t, second.Lock(), ErrLocked)
	assert.NoError(t, second.Unlock(), "unlocking an unheld lock is a no-op")

	require.NoError(t, first.Unlock())
	assert.NoFileExists(t, first.Path())

	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
}
