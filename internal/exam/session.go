package exam

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/opeprep/opexam/internal/model"
)

// Session holds one exam draw: the selected bank indices, the (sparse)
// answer map, and the countdown window. A session freezes on first grading.
type Session struct {
	indices  []int
	answers  map[int]string
	start    time.Time
	duration time.Duration

	submitted bool
	outcome   model.Outcome
}

// NewSession draws draw distinct indices uniformly from [0, population).
// The draw uses a full Fisher-Yates permutation sliced to size, so subset
// selection is unbiased without any modulo arithmetic.
func NewSession(population, draw int, duration time.Duration, now time.Time) (*Session, error) {
	if draw > population {
		return nil, ErrInsufficientQuestions
	}
	return &Session{
		indices:  rand.Perm(population)[:draw],
		answers:  make(map[int]string),
		start:    now,
		duration: duration,
	}, nil
}

// Size returns the number of questions in the draw.
func (s *Session) Size() int { return len(s.indices) }

// Index returns the bank index of draw position pos.
func (s *Session) Index(pos int) int { return s.indices[pos] }

// Start returns the session start time.
func (s *Session) Start() time.Time { return s.start }

// Submitted reports whether the session has been graded and frozen.
func (s *Session) Submitted() bool { return s.submitted }

// RecordAnswer stores the selected letter for a draw position. An empty
// letter clears the selection. Out-of-range positions and writes to a
// frozen session are silent no-ops.
func (s *Session) RecordAnswer(pos int, letter string) {
	if s.submitted || pos < 0 || pos >= len(s.indices) {
		return
	}
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		delete(s.answers, pos)
		return
	}
	if len(letter) != 1 || !strings.Contains(model.Letters, letter) {
		return
	}
	s.answers[pos] = letter
}

// Answer returns the recorded letter for a draw position, if any.
func (s *Session) Answer(pos int) (string, bool) {
	letter, ok := s.answers[pos]
	return letter, ok
}

// Answered returns the number of positions with a recorded selection.
func (s *Session) Answered() int { return len(s.answers) }

// Remaining returns the time left before auto-submission, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	left := s.duration - now.Sub(s.start)
	if left < 0 {
		return 0
	}
	return left
}

// Grade compares every draw position against the bank and freezes the
// session. Selections are trimmed and case-normalized; an unanswered
// position counts as wrong. Each correct answer is worth 0.1 points.
// After the first call the cached outcome is returned unchanged.
func (s *Session) Grade(bank QuestionSource) model.Outcome {
	if s.submitted {
		return s.outcome
	}
	var o model.Outcome
	for pos, idx := range s.indices {
		want := strings.ToUpper(strings.TrimSpace(bank.Question(idx).CorrectLetter))
		got, ok := s.answers[pos]
		if ok && strings.ToUpper(strings.TrimSpace(got)) == want {
			o.Correct = append(o.Correct, pos)
		} else {
			o.Wrong = append(o.Wrong, pos)
		}
	}
	o.Score = 0.1 * float64(len(o.Correct))

	s.outcome = o
	s.submitted = true
	return s.outcome
}

// QuestionSource resolves bank indices to questions during grading.
type QuestionSource interface {
	Question(i int) model.Question
}
