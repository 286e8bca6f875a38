// Package compose assembles the daily digest from a finished workflow run.
package compose

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/planner"
)

const timeLayout = "Mon, Jan 2 at 3:04 PM"

var md = goldmark.New()

// Digest is the deliverable produced from one run.
type Digest struct {
	RunID      string
	PeriodID   string
	Subject    string
	Promo      string
	Text       string // plain text: promo, listing and reasoning trace
	Markdown   string
	HTML       string
	Events     []event.Event
	EventCount int
	Phase      agent.Phase
	Failed     bool
}

// Compose builds the digest for st. A run that failed or produced no text
// yields a failure digest explaining what happened.
func Compose(st *planner.State, periodID string) Digest {
	d := Digest{
		RunID:    st.RunID,
		PeriodID: periodID,
		Phase:    st.Phase,
	}

	if st.Phase == agent.PhaseFailed || strings.TrimSpace(st.Output) == "" {
		return failure(d, st)
	}

	events := ordered(st)
	d.Subject = fmt.Sprintf("Events for %s: %d picks", periodDisplay(periodID), len(events))
	d.Promo = strings.TrimSpace(st.Output)
	d.Events = events
	d.EventCount = len(events)

	trace := st.Observations()
	d.Text = d.Promo + EventListing(events) + ReasoningTrace(trace)
	d.Markdown = markdown(d.Promo, events, researchNarratives(st), trace)
	d.HTML = RenderHTML(d.Markdown)
	return d
}

func failure(d Digest, st *planner.State) Digest {
	reason := st.Err
	if reason == "" {
		if len(st.EventsFound) == 0 {
			reason = "No events were found"
		} else {
			reason = "No digest text was generated"
		}
	}
	d.Failed = st.Phase == agent.PhaseFailed
	d.Subject = "Event digest unavailable"
	d.Promo = "Workflow did not produce a digest: " + reason

	trace := st.Observations()
	d.Text = d.Promo + ReasoningTrace(trace)
	d.Markdown = fmt.Sprintf("# %s\n\n%s\n", d.Subject, d.Promo) + markdownTrace(trace)
	d.HTML = RenderHTML(d.Markdown)
	return d
}

// ordered lists the reviewed events with the synthesized ranking first.
func ordered(st *planner.State) []event.Event {
	byKey := make(map[string]event.Event, len(st.EventsReviewed))
	for _, e := range st.EventsReviewed {
		byKey[e.Event.Key()] = e.Event
	}

	out := make([]event.Event, 0, len(st.EventsReviewed))
	seen := make(map[string]bool, len(st.EventsReviewed))
	for _, title := range st.IncludedTitles {
		k := strings.ToLower(title)
		if e, ok := byKey[k]; ok && !seen[k] {
			out = append(out, e)
			seen[k] = true
		}
	}
	for _, e := range st.EventsReviewed {
		if k := e.Event.Key(); !seen[k] {
			out = append(out, e.Event)
			seen[k] = true
		}
	}
	return out
}

func researchNarratives(st *planner.State) map[string]string {
	out := make(map[string]string, len(st.Research))
	for _, r := range st.Research {
		if r.Narrative != "" {
			out[r.EventTitle] = r.Narrative
		}
	}
	return out
}

// EventListing renders events as a numbered plain text list.
func EventListing(events []event.Event) string {
	if len(events) == 0 {
		return ""
	}
	rule := strings.Repeat("=", 60)
	lines := []string{"\n\n" + rule, "COMPLETE EVENT LISTING", rule, ""}

	for i, e := range events {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, strings.ToUpper(e.Title)))
		if e.URL != "" {
			lines = append(lines, "   "+e.URL)
		}
		if d := details(e); d != "" {
			lines = append(lines, "   "+d)
		}
		if len(e.Categories) > 0 {
			lines = append(lines, "   Categories: "+strings.Join(e.Categories, ", "))
		}
		lines = append(lines, "")
	}
	lines = append(lines, rule)
	return strings.Join(lines, "\n")
}

// ReasoningTrace renders the scratchpad as plain text.
func ReasoningTrace(obs []agent.Observation) string {
	rule := strings.Repeat("=", 60)
	lines := []string{"\n\n" + rule, "AGENT REASONING TRACE", rule, ""}

	for i, o := range obs {
		lines = append(lines, fmt.Sprintf("[%d] %s @ %s", i+1, o.Agent, o.Timestamp.Format("15:04:05")))
		if o.Thought != "" {
			lines = append(lines, "    Thought: "+o.Thought)
		}
		if o.Action != "" {
			lines = append(lines, "    Action: "+o.Action)
		}
		if o.Result != "" {
			lines = append(lines, "    Observation: "+o.Result)
		}
		lines = append(lines, fmt.Sprintf("    Confidence: %.2f", o.Confidence), "")
	}
	lines = append(lines, rule)
	return strings.Join(lines, "\n")
}

func details(e event.Event) string {
	var parts []string
	if e.Location != "" {
		parts = append(parts, "Location: "+e.Location)
	}
	if e.Start != nil {
		parts = append(parts, "Time: "+e.Start.Format(timeLayout))
	}
	return strings.Join(parts, " | ")
}

func markdown(promo string, events []event.Event, narratives map[string]string, trace []agent.Observation) string {
	var b strings.Builder
	b.WriteString(promo)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "## All events (%d)\n\n", len(events))

	for _, e := range events {
		title := e.Title
		if e.URL != "" {
			title = fmt.Sprintf("[%s](%s)", e.Title, e.URL)
		}
		fmt.Fprintf(&b, "### %s\n\n", title)
		if d := details(e); d != "" {
			b.WriteString(d + "\n\n")
		}
		if desc := strings.TrimSpace(e.Description); desc != "" {
			b.WriteString(event.Truncate(desc, 300) + "\n\n")
		}
		if n, ok := narratives[e.Title]; ok {
			fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(n, "\n", " "))
		}
		if len(e.Categories) > 0 {
			fmt.Fprintf(&b, "*%s*\n\n", strings.Join(e.Categories, ", "))
		}
	}

	b.WriteString(markdownTrace(trace))
	return b.String()
}

func markdownTrace(trace []agent.Observation) string {
	if len(trace) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n---\n\n## How this digest was made\n\n")
	for _, o := range trace {
		fmt.Fprintf(&b, "- **%s** (%.2f): %s", o.Agent, o.Confidence, o.Thought)
		if o.Result != "" {
			b.WriteString(" → " + o.Result)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderHTML converts markdown to HTML. On a conversion error the escaped
// source is wrapped in a pre block.
func RenderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "<pre>" + html.EscapeString(markdown) + "</pre>"
	}
	return buf.String()
}

func periodDisplay(periodID string) string {
	t, err := time.Parse("2006-01-02", periodID)
	if err != nil {
		return periodID
	}
	return t.Format("Monday, January 2")
}
