package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/news"
	"github.com/deusflow/newsbot/internal/telegram"
)

type fakeFetcher struct {
	items []news.Item
	err   error
	calls int
	block chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, requested int) ([]news.Item, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	return f.items, f.err
}

type fakeSender struct {
	mu      sync.Mutex
	results []telegram.Result // consumed in order; Sent once exhausted
	sent    []string
	notices []string
}

func (s *fakeSender) Send(ctx context.Context, msg telegram.FormattedMessage) telegram.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := telegram.Result{Status: telegram.StatusSent}
	if len(s.results) > 0 {
		res = s.results[0]
		s.results = s.results[1:]
	}
	if res.Status == telegram.StatusSent {
		s.sent = append(s.sent, msg.Text)
	}
	return res
}

func (s *fakeSender) SendNotice(ctx context.Context, text string) telegram.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, text)
	return telegram.Result{Status: telegram.StatusSent}
}

func (s *fakeSender) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func threeItems() []news.Item {
	return []news.Item{
		{Title: "Bir", Content: "birinci haber"},
		{Title: "İki", Content: "ikinci haber"},
		{Title: "Üç", Content: "üçüncü haber"},
	}
}

func newTestUpdater(f Fetcher, s Sender, opts Options, m *metrics.Metrics) *Updater {
	return New(f, s, opts, m, zerolog.Nop())
}

func TestRunFetchFailureSkipsTick(t *testing.T) {
	f := &fakeFetcher{err: news.Fail(news.KindQuota, "quota exceeded", nil)}
	s := &fakeSender{}
	m := metrics.New()
	u := newTestUpdater(f, s, Options{NewsCount: 3}, m)

	rep := u.Run(context.Background())
	require.Equal(t, StateSkippedFailure, rep.State)
	require.Equal(t, news.KindQuota, rep.FailureKind)
	require.NotEmpty(t, rep.RunID)
	require.Zero(t, s.attempts())
	require.Empty(t, s.notices)
	require.EqualValues(t, 1, m.FetchFailures["quota"])
	require.False(t, m.Healthy())
}

func TestRunFetchFailureNotifiesWhenEnabled(t *testing.T) {
	f := &fakeFetcher{err: news.Fail(news.KindSafety, "blocked", nil)}
	s := &fakeSender{}
	u := newTestUpdater(f, s, Options{NewsCount: 3, NotifyOnFailure: true}, nil)

	rep := u.Run(context.Background())
	require.Equal(t, StateSkippedFailure, rep.State)
	require.Len(t, s.notices, 1)
	require.Contains(t, s.notices[0], "safety")
	require.Zero(t, s.attempts())
}

func TestRunEmptyBatch(t *testing.T) {
	f := &fakeFetcher{items: []news.Item{}}
	s := &fakeSender{}
	m := metrics.New()
	u := newTestUpdater(f, s, Options{NewsCount: 3}, m)

	rep := u.Run(context.Background())
	require.Equal(t, StateSkippedEmpty, rep.State)
	require.Zero(t, s.attempts())
	require.EqualValues(t, 1, m.RunsSkippedEmpty)
}

func TestRunRetriesRateLimitedItem(t *testing.T) {
	f := &fakeFetcher{items: threeItems()}
	s := &fakeSender{results: []telegram.Result{
		{Status: telegram.StatusSent},
		{Status: telegram.StatusRateLimited, RetryAfter: 5 * time.Second},
		{Status: telegram.StatusSent},
		{Status: telegram.StatusSent},
	}}
	rec := &sleepRecorder{}
	m := metrics.New()
	u := newTestUpdater(f, s, Options{NewsCount: 3, RateLimitMargin: time.Second, Sleep: rec.sleep}, m)

	rep := u.Run(context.Background())
	require.Equal(t, StateDone, rep.State)
	require.Equal(t, 3, rep.Sent)
	require.Zero(t, rep.Failed)
	require.Equal(t, []string{
		telegram.Format(threeItems()[0]).Text,
		telegram.Format(threeItems()[1]).Text,
		telegram.Format(threeItems()[2]).Text,
	}, s.sent)
	require.Len(t, rec.waits, 1)
	require.GreaterOrEqual(t, rec.waits[0], 5*time.Second)
	require.EqualValues(t, 1, m.RateLimitHits)
}

func TestRunRateLimitIsBounded(t *testing.T) {
	limited := telegram.Result{Status: telegram.StatusRateLimited, RetryAfter: time.Second}
	f := &fakeFetcher{items: threeItems()[:1]}
	s := &fakeSender{results: []telegram.Result{limited, limited, limited, limited}}
	rec := &sleepRecorder{}
	u := newTestUpdater(f, s, Options{NewsCount: 1, MaxSendAttempts: 3, Sleep: rec.sleep}, nil)

	rep := u.Run(context.Background())
	require.Equal(t, StateDone, rep.State)
	require.Zero(t, rep.Sent)
	require.Equal(t, 1, rep.Failed)
	require.Len(t, rec.waits, 2)
	require.Len(t, s.results, 1, "exactly MaxSendAttempts sends are made")
}

func TestRunFatalTargetAbortsBatch(t *testing.T) {
	f := &fakeFetcher{items: threeItems()}
	s := &fakeSender{results: []telegram.Result{
		{Status: telegram.StatusFatalTarget, Code: 400, Reason: "Bad Request: chat not found", Err: errors.New("chat not found")},
	}}
	m := metrics.New()
	u := newTestUpdater(f, s, Options{NewsCount: 3}, m)

	rep := u.Run(context.Background())
	require.Equal(t, StateDone, rep.State)
	require.True(t, rep.Aborted)
	require.Zero(t, rep.Sent)
	require.Equal(t, 1, rep.Failed)
	require.Zero(t, s.attempts())
	require.False(t, m.Healthy())
}

func TestRunSkipsMarkupAndTransientFailures(t *testing.T) {
	f := &fakeFetcher{items: threeItems()}
	s := &fakeSender{results: []telegram.Result{
		{Status: telegram.StatusMarkupRejected, Err: errors.New("can't parse entities")},
		{Status: telegram.StatusTransient, Err: errors.New("connection reset")},
		{Status: telegram.StatusSent},
	}}
	u := newTestUpdater(f, s, Options{NewsCount: 3}, nil)

	rep := u.Run(context.Background())
	require.Equal(t, StateDone, rep.State)
	require.False(t, rep.Aborted)
	require.Equal(t, 1, rep.Sent)
	require.Equal(t, 2, rep.Failed)
	require.Equal(t, []string{telegram.Format(threeItems()[2]).Text}, s.sent)
}

func TestRunSkipsOverlappingTick(t *testing.T) {
	f := &fakeFetcher{items: threeItems()[:1], block: make(chan struct{})}
	s := &fakeSender{}
	m := metrics.New()
	u := newTestUpdater(f, s, Options{NewsCount: 1}, m)

	done := make(chan Report)
	go func() { done <- u.Run(context.Background()) }()

	require.Eventually(t, u.busy.Load, time.Second, time.Millisecond)

	rep := u.Run(context.Background())
	require.Equal(t, StateSkippedBusy, rep.State)

	close(f.block)
	first := <-done
	require.Equal(t, StateDone, first.State)
	require.Equal(t, 1, first.Sent)
	require.Equal(t, 1, f.calls)
	require.EqualValues(t, 1, m.RunsSkippedBusy)
	require.False(t, u.busy.Load())
}

func TestRunCountsTruncatedMessages(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	f := &fakeFetcher{items: []news.Item{{Title: "Uzun", Content: string(long)}}}
	s := &fakeSender{}
	u := newTestUpdater(f, s, Options{NewsCount: 1}, nil)

	rep := u.Run(context.Background())
	require.Equal(t, 1, rep.Truncated)
	require.Equal(t, 1, rep.Sent)
}
