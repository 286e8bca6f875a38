package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

const maxPerFeed = 20

// FeedAgent reads an RSS or Atom events calendar.
type FeedAgent struct {
	URL        string
	SourceName string
	Location   *time.Location
	Now        func() time.Time
	parser     *gofeed.Parser
}

// NewFeedAgent creates an agent for feedURL. An empty name is derived from
// the feed host.
func NewFeedAgent(feedURL, name string, loc *time.Location) *FeedAgent {
	if name == "" {
		name = extractSourceName(feedURL)
	}
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &FeedAgent{
		URL:        feedURL,
		SourceName: name,
		Location:   loc,
		Now:        time.Now,
		parser:     p,
	}
}

func (f *FeedAgent) Name() string { return f.SourceName }

// Search parses the feed and keeps entries that are not already over.
func (f *FeedAgent) Search(ctx context.Context) (agent.SearchResult, error) {
	start := time.Now()
	feed, err := f.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return agent.SearchResult{}, fmt.Errorf("parsing feed %s: %w", f.URL, err)
	}

	now := f.Now()
	var events []event.Event
	for _, item := range feed.Items {
		if len(events) >= maxPerFeed {
			break
		}
		e, ok := f.parseItem(item, now)
		if !ok {
			continue
		}
		events = append(events, e)
	}

	return agent.NewSearchResult(f.Name(), events, 0.7, time.Since(start))
}

func (f *FeedAgent) parseItem(item *gofeed.Item, now time.Time) (event.Event, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return event.Event{}, false
	}

	var desc string
	if item.Description != "" {
		desc = stripHTML(item.Description)
	} else if item.Content != "" {
		desc = stripHTML(item.Content)
	}

	e := event.Event{
		Title:       title,
		Description: event.Truncate(desc, 500),
		URL:         link,
		Categories:  event.Categorize(title, desc),
		Source:      f.SourceName,
	}
	for _, c := range item.Categories {
		e.AddCategory(strings.ToLower(strings.TrimSpace(c)))
	}

	// Calendars usually publish an item under its event date. Past dates are
	// announcements of something already over.
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.In(f.location())
		if t.Before(now.Add(-24 * time.Hour)) {
			return event.Event{}, false
		}
		e.Start = &t
	}

	return e, true
}

func (f *FeedAgent) location() *time.Location {
	if f.Location == nil {
		return time.Local
	}
	return f.Location
}

// stripHTML returns the visible text of an HTML fragment with whitespace
// collapsed.
func stripHTML(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "events.", "calendar.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
