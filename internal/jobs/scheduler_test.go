package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	activated  atomic.Int32
	swept      atomic.Int32
	activateEr error
}

func (f *fakeSweeper) Activate(context.Context) (int64, error) {
	f.activated.Add(1)
	return 1, f.activateEr
}

func (f *fakeSweeper) Sweep(context.Context, time.Duration) (int64, error) {
	f.swept.Add(1)
	return 2, nil
}

type fakePruner struct{ calls atomic.Int32 }

func (f *fakePruner) Prune() int {
	f.calls.Add(1)
	return 0
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestScheduler_RejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := NewScheduler(quietLogger())
	assert.Error(t, s.AddCacheSweep("every six hours", &fakeSweeper{}, time.Hour))
	assert.NoError(t, s.AddCacheSweep("@every 6h", &fakeSweeper{}, time.Hour))
}

func TestScheduler_SweepOrder(t *testing.T) {
	t.Parallel()

	s := NewScheduler(quietLogger())

	ok := &fakeSweeper{}
	s.sweepCache(ok, time.Hour)
	assert.Equal(t, int32(1), ok.activated.Load())
	assert.Equal(t, int32(1), ok.swept.Load())

	failing := &fakeSweeper{activateEr: errors.New("db locked")}
	s.sweepCache(failing, time.Hour)
	assert.Equal(t, int32(1), failing.activated.Load())
	assert.Zero(t, failing.swept.Load())
}

func TestScheduler_RunsJobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler(quietLogger())
	p := &fakePruner{}
	require.NoError(t, s.AddCooldownPrune("@every 1s", p))
	s.Start()

	assert.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
