// Package event holds the Event model shared by every stage of a run and
// the small pure helpers that operate on it.
package event

import (
	"errors"
	"strings"
	"time"
)

// Event is a single candidate happening discovered by a search source.
// Title is the only identity: two events whose titles match
// case-insensitively are the same event.
type Event struct {
	Title       string
	Description string
	URL         string
	Location    string
	Start       *time.Time
	End         *time.Time
	Categories  []string
	Source      string
}

// Validate reports whether the event can enter a run.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("event title is required")
	}
	if e.Start != nil && e.End != nil && e.End.Before(*e.Start) {
		return errors.New("event ends before it starts")
	}
	return nil
}

// Key returns the deduplication key.
func (e Event) Key() string {
	return strings.ToLower(e.Title)
}

// AddCategory appends a category unless it is already present.
func (e *Event) AddCategory(category string) {
	for _, c := range e.Categories {
		if c == category {
			return
		}
	}
	e.Categories = append(e.Categories, category)
}

// HasCategory reports whether the event carries the category.
func (e Event) HasCategory(category string) bool {
	for _, c := range e.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Dedupe drops events whose lower-cased title was already seen. The first
// occurrence wins and input order is preserved.
func Dedupe(events []Event) []Event {
	seen := make(map[string]struct{}, len(events))
	unique := make([]Event, 0, len(events))
	for _, e := range events {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, e)
	}
	return unique
}

// Titles returns the titles of events in order.
func Titles(events []Event) []string {
	titles := make([]string, len(events))
	for i, e := range events {
		titles[i] = e.Title
	}
	return titles
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
