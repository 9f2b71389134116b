package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/news"
	"github.com/deusflow/newsbot/internal/retry"
	"github.com/deusflow/newsbot/internal/telegram"
)

// Fetcher produces the news batch for one tick.
type Fetcher interface {
	Fetch(ctx context.Context, requested int) ([]news.Item, error)
}

// Sender delivers messages to the destination chat.
type Sender interface {
	Send(ctx context.Context, msg telegram.FormattedMessage) telegram.Result
	SendNotice(ctx context.Context, text string) telegram.Result
}

// State is the terminal state of one run.
type State string

const (
	StateDone           State = "done"
	StateSkippedEmpty   State = "skipped_empty"
	StateSkippedFailure State = "skipped_failure"
	StateSkippedBusy    State = "skipped_busy"
)

// Report summarises one run.
type Report struct {
	RunID       string
	State       State
	Requested   int
	Fetched     int
	Sent        int
	Failed      int
	Truncated   int
	Aborted     bool
	FailureKind news.Kind
	Elapsed     time.Duration
}

type Options struct {
	NewsCount       int
	MaxSendAttempts int
	RateLimitMargin time.Duration
	NotifyOnFailure bool
	// Sleep overrides the wait between rate-limited attempts (tests).
	Sleep func(ctx context.Context, d time.Duration) error
}

// Updater runs the fetch, format and deliver pipeline once per tick.
type Updater struct {
	fetcher Fetcher
	sender  Sender
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger

	busy atomic.Bool
}

func New(fetcher Fetcher, sender Sender, opts Options, m *metrics.Metrics, log zerolog.Logger) *Updater {
	if opts.NewsCount <= 0 {
		opts.NewsCount = 5
	}
	if opts.MaxSendAttempts <= 0 {
		opts.MaxSendAttempts = 5
	}
	if m == nil {
		m = metrics.New()
	}
	return &Updater{
		fetcher: fetcher,
		sender:  sender,
		opts:    opts,
		metrics: m,
		log:     log.With().Str("comp", "updater").Logger(),
	}
}

// Run executes one tick. A tick that starts while another is still running
// is skipped.
func (u *Updater) Run(ctx context.Context) Report {
	if !u.busy.CompareAndSwap(false, true) {
		u.log.Warn().Msg("previous run still in progress, skipping tick")
		u.metrics.IncrementSkippedBusy()
		return Report{State: StateSkippedBusy, Requested: u.opts.NewsCount}
	}
	defer u.busy.Store(false)

	started := time.Now()
	rep := Report{RunID: uuid.NewString(), Requested: u.opts.NewsCount}
	log := u.log.With().Str("run_id", rep.RunID).Logger()
	u.metrics.IncrementTicks()

	log.Info().Int("requested", rep.Requested).Msg("news update started")

	items, err := u.fetcher.Fetch(ctx, rep.Requested)
	if err != nil {
		rep.State = StateSkippedFailure
		rep.FailureKind = news.KindOf(err)
		rep.Elapsed = time.Since(started)
		u.fetchFailed(ctx, log, rep, err)
		return rep
	}
	rep.Fetched = len(items)
	u.metrics.AddItemsFetched(len(items))

	if len(items) == 0 {
		rep.State = StateSkippedEmpty
		rep.Elapsed = time.Since(started)
		log.Info().Msg("no news items returned, nothing to send")
		u.metrics.IncrementSkippedEmpty()
		u.metrics.RecordProcessingTime(rep.Elapsed)
		u.metrics.SetLastRun(rep.RunID, string(rep.State))
		return rep
	}

	u.deliverAll(ctx, log, items, &rep)

	rep.State = StateDone
	rep.Elapsed = time.Since(started)
	u.metrics.RecordProcessingTime(rep.Elapsed)
	if !rep.Aborted {
		u.metrics.SetLastRun(rep.RunID, string(rep.State))
	}

	log.Info().
		Int("sent", rep.Sent).
		Int("failed", rep.Failed).
		Int("fetched", rep.Fetched).
		Bool("aborted", rep.Aborted).
		Dur("elapsed", rep.Elapsed).
		Msgf("news update finished: %d/%d delivered in %s", rep.Sent, rep.Fetched, rep.Elapsed.Round(time.Millisecond))
	return rep
}

func (u *Updater) fetchFailed(ctx context.Context, log zerolog.Logger, rep Report, err error) {
	log.Error().Err(err).Str("kind", string(rep.FailureKind)).Msg("fetching news failed, skipping tick")
	u.metrics.IncrementFetchFailure(string(rep.FailureKind))
	u.metrics.RecordProcessingTime(rep.Elapsed)
	u.metrics.SetError(err.Error())

	if !u.opts.NotifyOnFailure {
		return
	}
	text := fmt.Sprintf("Haberler alınamadı (%s). Bir sonraki çalıştırmada tekrar denenecek.", rep.FailureKind)
	if res := u.sender.SendNotice(ctx, text); res.Status != telegram.StatusSent {
		log.Warn().Err(res.Err).Str("status", res.Status.String()).Msg("failure notice not delivered")
	}
}

func (u *Updater) deliverAll(ctx context.Context, log zerolog.Logger, items []news.Item, rep *Report) {
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("remaining", len(items)-i).Msg("run cancelled, remaining items dropped")
			rep.Aborted = true
			return
		}

		ilog := log.With().Int("item", i+1).Str("title", item.Title).Logger()

		msg := telegram.Format(item)
		if msg.Truncated {
			rep.Truncated++
			u.metrics.IncrementTruncated()
			ilog.Debug().Msg("message truncated to fit Telegram limit")
		}

		res := u.deliver(ctx, ilog, msg)
		switch res.Status {
		case telegram.StatusSent:
			rep.Sent++
			u.metrics.IncrementMessagesSent()
			ilog.Debug().Msg("item delivered")
		case telegram.StatusFatalTarget:
			rep.Failed++
			rep.Aborted = true
			u.metrics.IncrementMessagesFailed()
			u.metrics.SetError(res.Reason)
			ilog.Error().Err(res.Err).Int("code", res.Code).
				Msg("CRITICAL: destination chat rejected the bot. Check TARGET_CHAT_ID and make sure the bot is a member (admin for channels) of that chat. Aborting batch.")
			return
		case telegram.StatusMarkupRejected:
			rep.Failed++
			u.metrics.IncrementMessagesFailed()
			ilog.Warn().Err(res.Err).Msg("Telegram rejected message markup, skipping item")
		case telegram.StatusRateLimited:
			rep.Failed++
			u.metrics.IncrementMessagesFailed()
			ilog.Warn().Err(res.Err).Int("attempts", u.opts.MaxSendAttempts).Msg("still rate limited after max attempts, skipping item")
		case telegram.StatusTransient:
			rep.Failed++
			u.metrics.IncrementMessagesFailed()
			ilog.Warn().Err(res.Err).Msg("sending item failed, skipping")
		default:
			rep.Failed++
			u.metrics.IncrementMessagesFailed()
			ilog.Warn().Str("status", res.Status.String()).Msg("unexpected send status, skipping item")
		}
	}
}

// deliver sends msg, retrying the same message while Telegram asks to wait.
func (u *Updater) deliver(ctx context.Context, log zerolog.Logger, msg telegram.FormattedMessage) telegram.Result {
	var last telegram.Result
	cfg := retry.RetryConfig{
		MaxAttempts: u.opts.MaxSendAttempts,
		Margin:      u.opts.RateLimitMargin,
		Sleep:       u.opts.Sleep,
	}
	err := retry.WithRetry(ctx, cfg, func(attempt int) error {
		last = u.sender.Send(ctx, msg)
		if last.Status != telegram.StatusRateLimited {
			return nil
		}
		u.metrics.IncrementRateLimitHits()
		log.Warn().
			Int("attempt", attempt).
			Dur("retry_after", last.RetryAfter).
			Msg("rate limited by Telegram, waiting before retrying the same item")
		return retry.After(last.RetryAfter, errRateLimited)
	})
	if err != nil && !errors.Is(err, errRateLimited) {
		// Cancelled while waiting.
		return telegram.Result{Status: telegram.StatusTransient, Reason: "cancelled while rate limited", Err: err}
	}
	return last
}

var errRateLimited = errors.New("rate limited")
