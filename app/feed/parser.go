package feed

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

var (
	entryPattern = regexp.MustCompile(`(?s)<entry[\s>].*?</entry>`)

	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`<yt:videoId>\s*([A-Za-z0-9_-]{6,})\s*</yt:videoId>`),
		regexp.MustCompile(`<id>\s*yt:video:([A-Za-z0-9_-]{6,})\s*</id>`),
		regexp.MustCompile(`watch\?v=([A-Za-z0-9_-]{6,})`),
	}

	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)<title[^>]*>(.*?)</title>`),
		regexp.MustCompile(`(?s)<media:title[^>]*>(.*?)</media:title>`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`<published>\s*([^<]+?)\s*</published>`),
		regexp.MustCompile(`<updated>\s*([^<]+?)\s*</updated>`),
	}

	dateLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		time.RFC1123Z,
		time.RFC1123,
	}
)

// ParseFeedEntry extracts the newest entry from a raw feed document. It tries a
// structured parse first and falls back to ordered patterns over the raw text. It returns
// nil when no item id can be found; an unreadable date becomes now.
func ParseFeedEntry(raw []byte, now time.Time) *Entry {
	if entry := parseStructured(raw, now); entry != nil {
		return entry
	}
	return parsePatterns(raw, now)
}

func parseStructured(raw []byte, now time.Time) *Entry {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil || len(feed.Items) == 0 {
		return nil
	}

	item := newestItem(feed.Items)
	id := itemID(item)
	if id == "" {
		return nil
	}

	published := now
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	return &Entry{
		ItemID:      id,
		Title:       cleanTitle(item.Title),
		PublishedAt: published,
	}
}

// newestItem prefers the latest publication date and keeps document order on ties.
func newestItem(items []*gofeed.Item) *gofeed.Item {
	newest := items[0]
	for _, item := range items[1:] {
		if item.PublishedParsed == nil || newest.PublishedParsed == nil {
			continue
		}
		if item.PublishedParsed.After(*newest.PublishedParsed) {
			newest = item
		}
	}
	return newest
}

func itemID(item *gofeed.Item) string {
	if ext, ok := item.Extensions["yt"]; ok {
		if vals := ext["videoId"]; len(vals) > 0 && strings.TrimSpace(vals[0].Value) != "" {
			return strings.TrimSpace(vals[0].Value)
		}
	}
	if id, ok := strings.CutPrefix(item.GUID, "yt:video:"); ok && id != "" {
		return id
	}
	if m := idPatterns[2].FindStringSubmatch(item.Link); m != nil {
		return m[1]
	}
	return ""
}

func parsePatterns(raw []byte, now time.Time) *Entry {
	text := string(raw)
	if block := entryPattern.FindString(text); block != "" {
		text = block
	}

	id := firstMatch(idPatterns, text)
	if id == "" {
		return nil
	}

	published := now
	if s := firstMatch(datePatterns, text); s != "" {
		if t, ok := parseDate(s); ok {
			published = t
		}
	}

	return &Entry{
		ItemID:      id,
		Title:       cleanTitle(firstMatch(titlePatterns, text)),
		PublishedAt: published,
	}
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if inner, ok := strings.CutPrefix(s, "<![CDATA["); ok {
		s = strings.TrimSuffix(inner, "]]>")
	}
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}
