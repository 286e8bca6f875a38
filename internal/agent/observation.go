package agent

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Observation is one entry of the scratchpad: what an agent thought, did
// and saw. Entries are never modified once recorded.
type Observation struct {
	Timestamp  time.Time
	Agent      string
	Thought    string
	Action     string
	Result     string
	Confidence float64
}

// Validate range-checks the observation.
func (o Observation) Validate() error {
	if strings.TrimSpace(o.Agent) == "" {
		return fmt.Errorf("observation agent is required")
	}
	return CheckConfidence(o.Confidence)
}

// Question is an open investigative prompt raised by gap analysis.
type Question struct {
	Text     string
	Priority int
	Answered bool
	Answer   string
}

// NewQuestion builds a question with priority in [1, 10].
func NewQuestion(text string, priority int) (Question, error) {
	if strings.TrimSpace(text) == "" {
		return Question{}, fmt.Errorf("question text is required")
	}
	if priority < 1 || priority > 10 {
		return Question{}, fmt.Errorf("question priority %d out of range [1,10]", priority)
	}
	return Question{Text: text, Priority: priority}, nil
}

// Resolve marks the question answered.
func (q *Question) Resolve(answer string) {
	q.Answered = true
	q.Answer = answer
}

// CheckConfidence rejects values outside [0, 1].
func CheckConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", c)
	}
	return nil
}
