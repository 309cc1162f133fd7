package model

import (
	"strings"
	"time"
)

// Letters enumerates the option slots of a question in order.
const Letters = "ABCD"

// Question is a multiple-choice question loaded from the question bank.
// Questions are immutable after load; sessions reference them by bank index.
type Question struct {
	Text string
	// Options holds the A-D option texts in slot order. A blank slot means
	// the question has fewer choices; blank slots keep their letter so the
	// correct-letter assignment never shifts.
	Options       [4]string
	CorrectLetter string
	CorrectText   string
}

// Choice is a renderable option: its fixed letter plus the option text.
type Choice struct {
	Letter string
	Text   string
}

// Choices returns the non-blank options of q with their original letters.
func (q Question) Choices() []Choice {
	var cs []Choice
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			continue
		}
		cs = append(cs, Choice{Letter: string(Letters[i]), Text: opt})
	}
	return cs
}

// Attempt is one completed exam submission as recorded in the ledger.
type Attempt struct {
	ID        int64
	User      string
	Day       string // calendar day, YYYY-MM-DD
	Timestamp time.Time
	Score     float64
	Correct   int
	Wrong     int
}

// Outcome is the derived grading result of a session. Positions index the
// exam draw, not the full bank.
type Outcome struct {
	Score   float64
	Correct []int
	Wrong   []int
}

// Percentage returns the share of correct answers, 0-100.
func (o Outcome) Percentage() float64 {
	total := len(o.Correct) + len(o.Wrong)
	if total == 0 {
		return 0
	}
	return float64(len(o.Correct)) / float64(total) * 100
}
