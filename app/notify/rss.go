package notify

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"time"
)

// RSSWriter renders pending digest entries as an RSS 2.0 document so the digest can be
// followed from any feed reader.
type RSSWriter struct {
	selfLink string
	version  string
}

func NewRSSWriter(selfLink, version string) *RSSWriter {
	return &RSSWriter{selfLink: selfLink, version: version}
}

func (g *RSSWriter) Run(entries []DigestEntry, now time.Time) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", "tubewatch digest", 4)
	g.writeElement(&buf, "link", "https://www.youtube.com/feed/subscriptions", 4)
	g.writeElement(&buf, "description", "New uploads from approved sources", 4)

	if g.selfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(g.selfLink)))
	}

	lastBuildDate := now
	if len(entries) > 0 {
		lastBuildDate = entries[0].CreatedAt
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("tubewatch/%s", g.version), 4)

	for _, entry := range entries {
		g.writeItem(&buf, entry)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String()
}

func (g *RSSWriter) writeItem(buf *bytes.Buffer, entry DigestEntry) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(entry.SourceID+"/"+entry.ItemID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", entry.Title, 6)
	g.writeElement(buf, "link", "https://www.youtube.com/watch?v="+entry.ItemID, 6)
	g.writeElement(buf, "description", fmt.Sprintf("%s (score %d, %s priority)", entry.SourceName, entry.Score, entry.Priority), 6)

	published := entry.PublishedAt
	if published.IsZero() {
		published = entry.CreatedAt
	}
	g.writeElement(buf, "pubDate", published.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "category", entry.Priority, 6)

	buf.WriteString("    </item>\n")
}

func (g *RSSWriter) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
