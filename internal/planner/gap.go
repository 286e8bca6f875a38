package planner

import (
	"fmt"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

// GapQuestions raises one aggregate question per kind of missing data:
// start time, URL and location.
func GapQuestions(events []event.Event) []agent.Question {
	var noStart, noURL, noLocation int
	for _, e := range events {
		if e.Start == nil {
			noStart++
		}
		if e.URL == "" {
			noURL++
		}
		if e.Location == "" {
			noLocation++
		}
	}

	gaps := []struct {
		count    int
		priority int
		text     string
	}{
		{noStart, 8, "What are the start times for %d events with missing dates?"},
		{noURL, 5, "Where can more information be found for %d events without URLs?"},
		{noLocation, 7, "What are the venues for %d events with missing locations?"},
	}

	var out []agent.Question
	for _, g := range gaps {
		if g.count == 0 {
			continue
		}
		q, err := agent.NewQuestion(fmt.Sprintf(g.text, g.count), g.priority)
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	return out
}
