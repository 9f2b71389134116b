package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/deusflow/newsbot/internal/news"
	"github.com/deusflow/newsbot/internal/rss"
)

// Generator is the slice of *genai.GenerativeModel the fetcher needs.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// HeadlineSource supplies optional grounding headlines for the prompt.
type HeadlineSource interface {
	Headlines(ctx context.Context) ([]rss.Headline, error)
}

type Options struct {
	Topic    string
	Language string
	Timeout  time.Duration
}

type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.ResponseMIMEType = "application/json"

	return &Client{client: client, model: model}, nil
}

func (c *Client) Model() *genai.GenerativeModel { return c.model }

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Fetcher asks the model for a batch of news items once per call.
type Fetcher struct {
	gen       Generator
	headlines HeadlineSource
	opts      Options
	log       zerolog.Logger
}

func NewFetcher(gen Generator, headlines HeadlineSource, opts Options, log zerolog.Logger) *Fetcher {
	return &Fetcher{gen: gen, headlines: headlines, opts: opts, log: log.With().Str("comp", "gemini").Logger()}
}

// Fetch returns up to requested validated items. A non-nil error is always a
// *news.FetchError. There is no retry; the next tick tries again.
func (f *Fetcher) Fetch(ctx context.Context, requested int) ([]news.Item, error) {
	var grounding []rss.Headline
	if f.headlines != nil {
		hs, err := f.headlines.Headlines(ctx)
		if err != nil {
			f.log.Warn().Err(err).Msg("headline grounding unavailable, prompting without it")
		}
		grounding = hs
	}

	prompt := BuildPrompt(f.opts.Topic, f.opts.Language, requested, grounding)

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	f.log.Info().Int("requested", requested).Int("headlines", len(grounding)).Msg("requesting news from Gemini")

	resp, err := f.gen.GenerateContent(ctx, genai.Text(prompt))
	if reason, blocked := blockReason(resp, err); blocked {
		f.log.Warn().Str("reason", reason).Msg("Gemini request blocked by safety filters")
		return nil, news.Fail(news.KindSafety, fmt.Sprintf("request blocked by safety filters (%s)", reason), err)
	}
	if reason, stopped := stopReason(err); stopped {
		f.log.Warn().Str("reason", reason).Msg("Gemini stopped generating before a usable answer")
		return nil, news.Fail(news.KindFormat, fmt.Sprintf("response stopped early (%s)", reason), err)
	}
	if err != nil {
		fe := Classify(err)
		f.log.Error().Err(err).Str("kind", string(fe.Kind)).Dur("took", time.Since(started)).Msg("Gemini request failed")
		return nil, fe
	}

	text := responseText(resp)
	f.log.Debug().Int("bytes", len(text)).Dur("took", time.Since(started)).Msg("Gemini response received")

	items, err := news.Parse(text, requested)
	if err != nil {
		f.log.Warn().Err(err).Str("raw", truncateForLog(text, 300)).Msg("Gemini response rejected")
		return nil, err
	}
	return items, nil
}

// blockReason reports whether the response (or its error) is a safety block.
// Only a prompt-feedback block or a SAFETY finish reason counts.
func blockReason(resp *genai.GenerateContentResponse, err error) (string, bool) {
	var be *genai.BlockedError
	if errors.As(err, &be) {
		if be.PromptFeedback != nil && be.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return be.PromptFeedback.BlockReason.String(), true
		}
		if be.Candidate == nil || be.Candidate.FinishReason == genai.FinishReasonSafety {
			return "SAFETY", true
		}
		return "", false
	}
	if resp == nil {
		return "", false
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return resp.PromptFeedback.BlockReason.String(), true
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "SAFETY", true
	}
	return "", false
}

// stopReason reports a BlockedError raised for a non-safety finish reason,
// such as recitation.
func stopReason(err error) (string, bool) {
	var be *genai.BlockedError
	if errors.As(err, &be) && be.Candidate != nil && be.Candidate.FinishReason != genai.FinishReasonSafety {
		return be.Candidate.FinishReason.String(), true
	}
	return "", false
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func truncateForLog(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
