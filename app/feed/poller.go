package feed

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lysyi3m/tubewatch/app/metrics"
	"github.com/lysyi3m/tubewatch/app/timer"
)

const (
	DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"
	MinBodySize    = 200
)

type Poller struct {
	transport Transport
	resolver  *HandleResolver
	clock     timer.Clock
	feedURL   string
	timeout   time.Duration
}

func NewPoller(transport Transport, resolver *HandleResolver, clock timer.Clock, feedURL string, timeout time.Duration) *Poller {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Poller{
		transport: transport,
		resolver:  resolver,
		clock:     clock,
		feedURL:   feedURL,
		timeout:   timeout,
	}
}

// FeedURL is the public feed address of a channel.
func (p *Poller) FeedURL(channelID string) string {
	return p.feedURL + "?channel_id=" + url.QueryEscape(channelID)
}

// Poll returns the newest entry of a channel's feed, or nil when this cycle produced
// nothing usable. Failures are logged and never returned: the next cycle retries.
func (p *Poller) Poll(ctx context.Context, channel string) *Entry {
	start := time.Now()
	result := "ok"
	defer func() {
		metrics.RecordPoll(result, time.Since(start).Seconds())
	}()

	channelID, err := p.resolver.Resolve(ctx, channel)
	if err != nil {
		result = "unresolved"
		slog.Warn("Skipping source, handle not resolved", "source", channel, "error", err)
		return nil
	}

	feedURL := p.FeedURL(channelID)
	resp, err := p.transport.FetchFeed(ctx, feedURL, p.timeout)
	if err != nil {
		result = "fetch_error"
		slog.Warn("Failed to fetch feed", "source", channelID, "error", err)
		return nil
	}
	if resp.Status != http.StatusOK {
		result = "http_error"
		slog.Warn("Feed returned non-success status", "source", channelID, "status", resp.Status)
		return nil
	}
	if len(resp.Body) < MinBodySize {
		result = "short_body"
		slog.Warn("Feed body too short", "source", channelID, "bytes", len(resp.Body))
		return nil
	}

	entry := ParseFeedEntry(resp.Body, p.clock.Now())
	if entry == nil {
		result = "unparsable"
		slog.Warn("No entry found in feed", "source", channelID)
		return nil
	}

	slog.Debug("Feed polled", "source", channelID, "item", entry.ItemID, "published", entry.PublishedAt)
	return entry
}
