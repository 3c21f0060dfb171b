package synthesis

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestRunnerProcessesJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(3)
	r := NewRunner(2, 10, func(ctx context.Context, jobID string) {
		mu.Lock()
		seen = append(seen, jobID)
		mu.Unlock()
		wg.Done()
	}, zap.NewNop())

	r.Start(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Submit(id))
	}
	wg.Wait()
	r.Stop()

	sort.Strings(seen)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRunnerQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(1, 1, func(ctx context.Context, jobID string) {}, zap.NewNop())
	require.NoError(t, r.Submit("a"))
	assert.ErrorIs(t, r.Submit("b"), ErrQueueFull)
	assert.Equal(t, 1, r.Pending())
	r.Stop()
}

func TestRunnerSubmitAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(1, 4, func(ctx context.Context, jobID string) {}, zap.NewNop())
	r.Start(context.Background())
	r.Stop()
	r.Stop()
	assert.ErrorIs(t, r.Submit("a"), ErrRunnerStopped)
}

func TestRunnerStopCancelsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	r := NewRunner(1, 4, func(ctx context.Context, jobID string) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}, zap.NewNop())

	r.Start(context.Background())
	require.NoError(t, r.Submit("slow"))
	<-started

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	<-cancelled
}

func TestRunnerEnqueueWaitsForFreeSlot(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(4)
	r := NewRunner(1, 1, func(ctx context.Context, jobID string) {
		<-release
		wg.Done()
	}, zap.NewNop())
	r.Start(context.Background())

	enqueued := make(chan error, 1)
	go func() {
		for _, id := range []string{"a", "b", "c", "d"} {
			if err := r.Enqueue(context.Background(), id); err != nil {
				enqueued <- err
				return
			}
		}
		enqueued <- nil
	}()

	select {
	case err := <-enqueued:
		t.Fatalf("enqueue returned early with %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-enqueued)
	wg.Wait()
	r.Stop()
}

func TestRunnerEnqueueHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(1, 1, func(ctx context.Context, jobID string) {}, zap.NewNop())
	require.NoError(t, r.Submit("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Enqueue(ctx, "b"), context.DeadlineExceeded)
	r.Stop()
}

func TestRunnerStopReleasesBlockedEnqueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(1, 1, func(ctx context.Context, jobID string) {}, zap.NewNop())
	require.NoError(t, r.Submit("a"))

	errs := make(chan error, 1)
	go func() { errs <- r.Enqueue(context.Background(), "b") }()
	time.Sleep(20 * time.Millisecond)

	r.Stop()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrRunnerStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("enqueue still blocked after stop")
	}
}
