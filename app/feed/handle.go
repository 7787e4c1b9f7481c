package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/singleflight"
)

const DefaultBaseURL = "https://www.youtube.com"

var (
	channelIDPattern = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)

	pageIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"externalId"\s*:\s*"(UC[A-Za-z0-9_-]{22})"`),
		regexp.MustCompile(`"channelId"\s*:\s*"(UC[A-Za-z0-9_-]{22})"`),
		regexp.MustCompile(`/channel/(UC[A-Za-z0-9_-]{22})`),
	}
)

func IsChannelID(s string) bool {
	return channelIDPattern.MatchString(s)
}

func IsHandle(s string) bool {
	return len(s) > 1 && strings.HasPrefix(s, "@") && !strings.ContainsAny(s, " /?#")
}

// HandleStore persists resolved handles. Lookup reports found=false for an unknown handle.
type HandleStore interface {
	LookupHandle(ctx context.Context, handle string) (channelID string, found bool, err error)
	SaveHandle(ctx context.Context, handle, channelID string) error
}

// HandleResolver maps @handles to canonical channel ids. A resolved handle never
// changes, so results are kept forever.
type HandleResolver struct {
	transport Transport
	store     HandleStore
	baseURL   string
	timeout   time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	memo  map[string]string
}

func NewHandleResolver(transport Transport, store HandleStore, baseURL string, timeout time.Duration) *HandleResolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HandleResolver{
		transport: transport,
		store:     store,
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   timeout,
		memo:      make(map[string]string),
	}
}

// Resolve returns the channel id for an id or handle.
func (r *HandleResolver) Resolve(ctx context.Context, identifier string) (string, error) {
	if IsChannelID(identifier) {
		return identifier, nil
	}
	if !IsHandle(identifier) {
		return "", fmt.Errorf("not a channel id or handle: %q", identifier)
	}

	handle := strings.ToLower(identifier)

	r.mu.RLock()
	id, ok := r.memo[handle]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	v, err, _ := r.group.Do(handle, func() (interface{}, error) {
		return r.resolve(ctx, handle)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *HandleResolver) resolve(ctx context.Context, handle string) (string, error) {
	if r.store != nil {
		id, found, err := r.store.LookupHandle(ctx, handle)
		if err != nil {
			slog.Warn("Failed to read stored handle", "handle", handle, "error", err)
		} else if found {
			r.remember(handle, id)
			return id, nil
		}
	}

	pageURL := r.baseURL + "/" + url.PathEscape(handle)
	resp, err := r.transport.FetchFeed(ctx, pageURL, r.timeout)
	if err != nil {
		return "", fmt.Errorf("failed to fetch channel page for %s: %w", handle, err)
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("channel page for %s returned status %d", handle, resp.Status)
	}

	id := ChannelIDFromPage(resp.Body)
	if id == "" {
		return "", fmt.Errorf("no channel id found on page for %s", handle)
	}

	r.remember(handle, id)
	if r.store != nil {
		if err := r.store.SaveHandle(ctx, handle, id); err != nil {
			slog.Warn("Failed to persist resolved handle", "handle", handle, "channel", id, "error", err)
		}
	}

	slog.Info("Handle resolved", "handle", handle, "channel", id)
	return id, nil
}

func (r *HandleResolver) remember(handle, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo[handle] = id
}

// ChannelIDFromPage reads the canonical channel id from a channel page, trying page
// metadata before raw patterns.
func ChannelIDFromPage(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err == nil {
		candidates := []string{
			doc.Find(`meta[itemprop="channelId"]`).AttrOr("content", ""),
			doc.Find(`meta[itemprop="identifier"]`).AttrOr("content", ""),
			lastSegment(doc.Find(`link[rel="canonical"]`).AttrOr("href", "")),
			lastSegment(doc.Find(`meta[property="og:url"]`).AttrOr("content", "")),
		}
		for _, c := range candidates {
			if IsChannelID(c) {
				return c
			}
		}
	}

	for _, p := range pageIDPatterns {
		if m := p.FindSubmatch(page); m != nil {
			return string(m[1])
		}
	}
	return ""
}

func lastSegment(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
