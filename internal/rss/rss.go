package rss

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const userAgent = "TelegramNewsBot/1.0"

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// Headline is one recent feed entry used to ground the AI prompt.
type Headline struct {
	Title     string
	Link      string
	Source    string
	Published time.Time
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	urls := make([]string, 0, len(cfg.Feeds))
	for _, u := range cfg.Feeds {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// Grounder collects recent headlines from a fixed list of feeds.
type Grounder struct {
	urls    []string
	perFeed int
	timeout time.Duration
	parser  *gofeed.Parser
	log     zerolog.Logger
}

func NewGrounder(urls []string, perFeed int, timeout time.Duration, log zerolog.Logger) *Grounder {
	if perFeed <= 0 {
		perFeed = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &Grounder{urls: urls, perFeed: perFeed, timeout: timeout, parser: parser, log: log.With().Str("comp", "rss").Logger()}
}

// Headlines downloads every feed, keeps the newest perFeed entries of each and
// returns them newest first. A failing feed is logged and skipped; an error is
// returned only when every feed failed.
func (g *Grounder) Headlines(ctx context.Context) ([]Headline, error) {
	var all []Headline
	ok := 0
	var lastErr error

	for _, url := range g.urls {
		fctx, cancel := context.WithTimeout(ctx, g.timeout)
		feed, err := g.parser.ParseURLWithContext(url, fctx)
		cancel()
		if err != nil {
			lastErr = err
			g.log.Warn().Err(err).Str("url", url).Msg("error parsing RSS")
			continue
		}
		ok++
		all = append(all, fromFeed(feed, g.perFeed)...)
		g.log.Debug().Int("items", len(feed.Items)).Str("url", url).Msg("loaded feed")
	}

	if ok == 0 && len(g.urls) > 0 {
		return nil, fmt.Errorf("all %d feeds failed: %w", len(g.urls), lastErr)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Published.After(all[j].Published) })
	g.log.Info().Int("ok", ok).Int("feeds", len(g.urls)).Int("headlines", len(all)).Msg("processed RSS feeds")
	return all, nil
}

func fromFeed(feed *gofeed.Feed, limit int) []Headline {
	source := strings.TrimSpace(feed.Title)
	out := make([]Headline, 0, limit)
	for _, it := range feed.Items {
		if len(out) >= limit {
			break
		}
		if it == nil || strings.TrimSpace(it.Title) == "" {
			continue
		}
		h := Headline{Title: strings.TrimSpace(it.Title), Link: strings.TrimSpace(it.Link), Source: source}
		switch {
		case it.PublishedParsed != nil:
			h.Published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			h.Published = *it.UpdatedParsed
		}
		out = append(out, h)
	}
	return out
}
