package scheduler

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("*/15 * * * *"))
	require.NoError(t, Validate("0 8 * * 1-5"))
	require.NoError(t, Validate("@hourly"))
	require.Error(t, Validate("every fifteen minutes"))
	require.Error(t, Validate("*/15 * * *"))
	require.Error(t, Validate(""))
}

func TestLoadLocation(t *testing.T) {
	loc := LoadLocation("", zerolog.Nop())
	_, offset := time.Date(2024, 7, 1, 12, 0, 0, 0, loc).Zone()
	require.Equal(t, 3*60*60, offset)

	require.Equal(t, time.Local, LoadLocation("Not/AZone", zerolog.Nop()))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	_, err := Start("nonsense", time.UTC, func() {}, zerolog.Nop())
	require.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartRunsJobAndRecoversPanics(t *testing.T) {
	var runs atomic.Int32
	h, err := Start("@every 1s", time.UTC, func() {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	}, zerolog.Nop())
	require.NoError(t, err)
	require.False(t, h.Next().IsZero())

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
}

func TestStartKeepsFiringAfterEveryTickPanics(t *testing.T) {
	out := &syncBuffer{}
	var runs atomic.Int32
	h, err := Start("@every 1s", time.UTC, func() {
		runs.Add(1)
		panic("boom")
	}, zerolog.New(out))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 6*time.Second, 20*time.Millisecond)
	require.NotContains(t, out.String(), "previous run still in progress")
	require.Contains(t, out.String(), "panic")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
}

func TestStartSkipsOverlappingTicks(t *testing.T) {
	var running, maxRunning, runs atomic.Int32
	release := make(chan struct{})
	h, err := Start("@every 1s", time.UTC, func() {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		runs.Add(1)
		<-release
	}, zerolog.Nop())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(2200 * time.Millisecond)
	require.EqualValues(t, 1, runs.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, h.Stop(ctx), context.DeadlineExceeded)
	cancel()

	close(release)
	require.EqualValues(t, 1, maxRunning.Load())
}
