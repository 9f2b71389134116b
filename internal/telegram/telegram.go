package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// Status is the outcome class of a single send.
type Status int

const (
	StatusSent Status = iota
	StatusRateLimited
	StatusFatalTarget
	StatusMarkupRejected
	StatusTransient
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusRateLimited:
		return "rate_limited"
	case StatusFatalTarget:
		return "fatal_target"
	case StatusMarkupRejected:
		return "markup_rejected"
	case StatusTransient:
		return "transient"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Result describes what happened to one send call.
type Result struct {
	Status     Status
	RetryAfter time.Duration // set for StatusRateLimited
	Code       int           // Telegram error_code when known
	Reason     string
	Err        error
}

// defaultRetryAfter is used when a 429 carries no retry_after parameter.
const defaultRetryAfter = 5 * time.Second

type Config struct {
	Token        string
	ChatID       int64
	Timeout      time.Duration
	SendInterval time.Duration
	// APIURL overrides https://api.telegram.org (tests).
	APIURL string
}

// Client delivers messages to one fixed chat.
type Client struct {
	bot     *tele.Bot
	chat    *tele.Chat
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	limit := rate.Inf
	if cfg.SendInterval > 0 {
		limit = rate.Every(cfg.SendInterval)
	}

	return &Client{
		bot:     b,
		chat:    &tele.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With().Str("comp", "telegram").Int64("chat_id", cfg.ChatID).Logger(),
	}, nil
}

// Send posts msg as MarkdownV2 with link previews enabled. Consecutive calls
// are spaced by at least the configured send interval.
func (c *Client) Send(ctx context.Context, msg FormattedMessage) Result {
	return c.send(ctx, msg.Text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdownV2,
		DisableWebPagePreview: false,
	})
}

// SendNotice posts plain text without any markup parsing.
func (c *Client) SendNotice(ctx context.Context, text string) Result {
	return c.send(ctx, text, &tele.SendOptions{DisableWebPagePreview: true})
}

func (c *Client) send(ctx context.Context, text string, opts *tele.SendOptions) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Status: StatusTransient, Reason: "cancelled while pacing", Err: err}
	}

	started := time.Now()
	_, err := c.bot.Send(c.chat, text, opts)
	if err == nil {
		c.log.Debug().Int("len", textUnits(text)).Dur("took", time.Since(started)).Msg("message sent to Telegram")
		return Result{Status: StatusSent}
	}

	res := Classify(err)
	c.log.Debug().Err(err).Str("status", res.Status.String()).Int("code", res.Code).Msg("telegram send failed")
	return res
}

var (
	codeSuffix     = regexp.MustCompile(`\((\d{3})\)\s*$`)
	retryAfterText = regexp.MustCompile(`(?i)retry after (\d+)`)
)

// Classify maps a telebot error to a Result. Typed telebot errors are used
// when present; otherwise the "(code)" suffix and description text are parsed
// as a best-effort fallback.
func Classify(err error) Result {
	if err == nil {
		return Result{Status: StatusSent}
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		wait := time.Duration(flood.RetryAfter) * time.Second
		if wait <= 0 {
			wait = retryAfterFromText(err.Error())
		}
		return rateLimited(wait, err)
	}

	code := 0
	desc := err.Error()
	var terr *tele.Error
	if errors.As(err, &terr) {
		code = terr.Code
		desc = terr.Description
	} else if m := codeSuffix.FindStringSubmatch(desc); m != nil {
		code, _ = strconv.Atoi(m[1])
	}
	lower := strings.ToLower(desc)

	res := Result{Code: code, Reason: desc, Err: err}
	switch {
	case code == http.StatusTooManyRequests:
		return rateLimited(retryAfterFromText(desc), err)
	case code == http.StatusForbidden:
		res.Status = StatusFatalTarget
	case code == http.StatusUnauthorized:
		res.Status = StatusFatalTarget
	case strings.Contains(lower, "chat not found"), strings.Contains(lower, "upgraded to a supergroup"):
		res.Status = StatusFatalTarget
	case strings.Contains(lower, "can't parse entities"), strings.Contains(lower, "can't find end of"),
		strings.Contains(lower, "reserved and must be escaped"):
		res.Status = StatusMarkupRejected
	default:
		res.Status = StatusTransient
	}
	return res
}

// retryAfterFromText reads "retry after N" from an error description, or
// returns defaultRetryAfter.
func retryAfterFromText(desc string) time.Duration {
	if m := retryAfterText.FindStringSubmatch(desc); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultRetryAfter
}

func rateLimited(wait time.Duration, err error) Result {
	if wait <= 0 {
		wait = defaultRetryAfter
	}
	return Result{
		Status:     StatusRateLimited,
		RetryAfter: wait,
		Code:       http.StatusTooManyRequests,
		Reason:     "too many requests",
		Err:        err,
	}
}
