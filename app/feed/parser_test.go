package feed

import (
	"testing"
	"time"
)

var parseNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const youtubeFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <link rel="self" href="http://www.youtube.com/feeds/videos.xml?channel_id=UCHnyfMqiRRG1u-2MsSQLbXA"/>
 <id>yt:channel:HnyfMqiRRG1u-2MsSQLbXA</id>
 <yt:channelId>HnyfMqiRRG1u-2MsSQLbXA</yt:channelId>
 <title>Veritasium</title>
 <published>2010-07-21T07:18:02+00:00</published>
 <entry>
  <id>yt:video:abcDEF12345</id>
  <yt:videoId>abcDEF12345</yt:videoId>
  <yt:channelId>UCHnyfMqiRRG1u-2MsSQLbXA</yt:channelId>
  <title>Why Rain &amp; Snow Fall</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=abcDEF12345"/>
  <published>2024-05-30T14:00:00+00:00</published>
  <updated>2024-05-31T08:00:00+00:00</updated>
 </entry>
 <entry>
  <id>yt:video:olderVideo01</id>
  <yt:videoId>olderVideo01</yt:videoId>
  <title>Older</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=olderVideo01"/>
  <published>2024-05-01T14:00:00+00:00</published>
 </entry>
</feed>`

func TestParseFeedEntryStructured(t *testing.T) {
	entry := ParseFeedEntry([]byte(youtubeFeed), parseNow)
	if entry == nil {
		t.Fatal("Expected entry, got nil")
	}

	if entry.ItemID != "abcDEF12345" {
		t.Errorf("Expected item id 'abcDEF12345', got '%s'", entry.ItemID)
	}
	if entry.Title != "Why Rain & Snow Fall" {
		t.Errorf("Expected decoded title, got '%s'", entry.Title)
	}
	want := time.Date(2024, 5, 30, 14, 0, 0, 0, time.UTC)
	if !entry.PublishedAt.Equal(want) {
		t.Errorf("Expected published %v, got %v", want, entry.PublishedAt)
	}
}

func TestParseFeedEntryPicksNewest(t *testing.T) {
	feed := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
 <title>t</title>
 <entry><id>yt:video:oldOLDold01</id><title>Old</title><published>2024-01-01T00:00:00Z</published></entry>
 <entry><id>yt:video:newNEWnew01</id><title>New</title><published>2024-03-01T00:00:00Z</published></entry>
</feed>`

	entry := ParseFeedEntry([]byte(feed), parseNow)
	if entry == nil {
		t.Fatal("Expected entry, got nil")
	}
	if entry.ItemID != "newNEWnew01" {
		t.Errorf("Expected newest entry 'newNEWnew01', got '%s'", entry.ItemID)
	}
}

func TestParseFeedEntryPatternFallback(t *testing.T) {
	// no recognisable feed root: the structured parser gives up
	raw := `<entry>
<yt:videoId>zzzZZZ99999</yt:videoId>
<media:title>Caf&eacute; Tour</media:title>
<updated>2024-05-29T10:00:00+00:00</updated>
<broken attr=></entry>`

	entry := ParseFeedEntry([]byte(raw), parseNow)
	if entry == nil {
		t.Fatal("Expected entry, got nil")
	}
	if entry.ItemID != "zzzZZZ99999" {
		t.Errorf("Expected item id 'zzzZZZ99999', got '%s'", entry.ItemID)
	}
	if entry.Title != "Café Tour" {
		t.Errorf("Expected title 'Café Tour', got '%s'", entry.Title)
	}
	want := time.Date(2024, 5, 29, 10, 0, 0, 0, time.UTC)
	if !entry.PublishedAt.Equal(want) {
		t.Errorf("Expected published %v, got %v", want, entry.PublishedAt)
	}
}

func TestParseFeedEntryIDFallbackOrder(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"video id wins", `<entry><id>yt:video:second22222</id><yt:videoId>first111111</yt:videoId><bad=</entry>`, "first111111"},
		{"atom id", `<entry><id>yt:video:second22222</id><a href="watch?v=third333333"><bad=</entry>`, "second22222"},
		{"watch url", `<entry><a href="https://www.youtube.com/watch?v=third333333"><bad=</entry>`, "third333333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := parsePatterns([]byte(tt.raw), parseNow)
			if entry == nil {
				t.Fatal("Expected entry, got nil")
			}
			if entry.ItemID != tt.want {
				t.Errorf("Expected item id '%s', got '%s'", tt.want, entry.ItemID)
			}
		})
	}
}

func TestParseFeedEntryBadDateFallsBackToNow(t *testing.T) {
	raw := `<entry><yt:videoId>dateless0001</yt:videoId><title>x</title><published>yesterday-ish</published></entry>`

	entry := parsePatterns([]byte(raw), parseNow)
	if entry == nil {
		t.Fatal("Expected entry, got nil")
	}
	if !entry.PublishedAt.Equal(parseNow) {
		t.Errorf("Expected fallback to now, got %v", entry.PublishedAt)
	}
}

func TestParseFeedEntryNoID(t *testing.T) {
	if entry := ParseFeedEntry([]byte(`<feed><title>empty</title></feed>`), parseNow); entry != nil {
		t.Errorf("Expected nil, got %+v", entry)
	}
	if entry := ParseFeedEntry(nil, parseNow); entry != nil {
		t.Errorf("Expected nil for empty input, got %+v", entry)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Plain  ", "Plain"},
		{"<![CDATA[Inside]]>", "Inside"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"multi\n   line", "multi line"},
		{"Café", "Café"},
	}

	for _, tt := range tests {
		if got := cleanTitle(tt.in); got != tt.want {
			t.Errorf("cleanTitle(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
