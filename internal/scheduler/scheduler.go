// Package scheduler fires the news update on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/deusflow/newsbot/internal/logger"
)

const DefaultTimezone = "Europe/Istanbul"

// istanbulFallback is used when the tz database is unavailable. Turkey has
// stayed on UTC+3 all year since 2016.
var istanbulFallback = time.FixedZone("+03", 3*60*60)

// Validate reports whether expr is a standard five-field cron expression or a
// descriptor such as @hourly.
func Validate(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return nil
}

// LoadLocation resolves tz, falling back to a fixed +03:00 zone for
// Europe/Istanbul and to time.Local otherwise.
func LoadLocation(tz string, log zerolog.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err == nil {
		return loc
	}
	if tz == DefaultTimezone {
		log.Warn().Err(err).Msg("tz database unavailable, using fixed +03:00 for Europe/Istanbul")
		return istanbulFallback
	}
	log.Warn().Err(err).Str("tz", tz).Msg("invalid timezone, falling back to Local")
	return time.Local
}

// Handle controls a started schedule.
type Handle struct {
	c     *cron.Cron
	entry cron.EntryID
	log   zerolog.Logger
}

// Start registers job under expr and starts firing it. Ticks that arrive
// while job is still running are skipped, and panics inside job are
// recovered and logged.
func Start(expr string, loc *time.Location, job func(), log zerolog.Logger) (*Handle, error) {
	if loc == nil {
		loc = time.Local
	}
	clog := logger.CronLogger{Log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		// Recover runs inside SkipIfStillRunning so a panic still releases the guard.
		cron.WithChain(cron.SkipIfStillRunning(clog), cron.Recover(clog)),
	)
	id, err := c.AddFunc(expr, job)
	if err != nil {
		return nil, fmt.Errorf("register cron job %q: %w", expr, err)
	}
	c.Start()

	h := &Handle{c: c, entry: id, log: log}
	log.Info().Str("schedule", expr).Str("tz", loc.String()).Time("next", h.Next()).Msg("scheduler started")
	return h, nil
}

// Next returns the next planned fire time.
func (h *Handle) Next() time.Time {
	return h.c.Entry(h.entry).Next
}

// Stop prevents further ticks and waits for a running tick to finish or for
// ctx to be done, whichever comes first.
func (h *Handle) Stop(ctx context.Context) error {
	done := h.c.Stop().Done()
	select {
	case <-done:
		h.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		h.log.Warn().Msg("scheduler stop timed out, a run is still in progress")
		return ctx.Err()
	}
}
