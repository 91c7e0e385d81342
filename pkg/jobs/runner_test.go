package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestRunnerExecutesSubmittedTask(t *testing.T) {
	r := NewRunner(context.Background(), 1, 4, time.Minute, testLogger())
	defer r.Shutdown(time.Second)

	done := make(chan struct{})
	require.NoError(t, r.Submit("billing_cycle", func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestRunnerQueueFull(t *testing.T) {
	r := NewRunner(context.Background(), 1, 1, time.Minute, testLogger())
	defer r.Shutdown(time.Second)

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, r.Submit("blocker", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started

	// Worker is occupied; fill the single queue slot, then overflow.
	require.NoError(t, r.Submit("queued", func(ctx context.Context) error { return nil }))
	err := r.Submit("overflow", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestRunnerShutdownDrainsQueue(t *testing.T) {
	r := NewRunner(context.Background(), 2, 8, time.Minute, testLogger())

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Submit("counter", func(ctx context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, r.Shutdown(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, ran)
}

func TestRunnerSubmitAfterShutdown(t *testing.T) {
	r := NewRunner(context.Background(), 1, 4, time.Minute, testLogger())
	require.NoError(t, r.Shutdown(time.Second))

	err := r.Submit("late", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrRunnerStopped)
}

func TestRunnerSubmitDuringShutdown(t *testing.T) {
	r := NewRunner(context.Background(), 2, 4, time.Minute, testLogger())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			err := r.Submit("racer", func(ctx context.Context) error { return nil })
			if err != nil && !errors.Is(err, ErrQueueFull) {
				assert.ErrorIs(t, err, ErrRunnerStopped)
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Shutdown(2*time.Second))

	// Submissions racing the shutdown must fail cleanly, never panic.
	err := r.Submit("late", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrRunnerStopped)

	close(stop)
	wg.Wait()
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	r := NewRunner(context.Background(), 1, 4, time.Minute, testLogger())
	defer r.Shutdown(time.Second)

	require.NoError(t, r.Submit("panics", func(ctx context.Context) error {
		panic("boom")
	}))

	// A panicking task must not take the worker down.
	done := make(chan struct{})
	require.NoError(t, r.Submit("survivor", func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestRunnerTaskTimeout(t *testing.T) {
	r := NewRunner(context.Background(), 1, 4, 50*time.Millisecond, testLogger())
	defer r.Shutdown(time.Second)

	errCh := make(chan error, 1)
	require.NoError(t, r.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("task context never expired")
	}
}
