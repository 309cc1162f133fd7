package exam

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/opeprep/opexam/internal/model"
)

// fakeBank serves synthetic questions whose correct letter cycles A-D by
// bank index.
type fakeBank struct {
	n int
}

func (b fakeBank) Len() int { return b.n }

func (b fakeBank) Question(i int) model.Question {
	letter := string(model.Letters[i%len(model.Letters)])
	q := model.Question{
		Text:          fmt.Sprintf("question %d", i),
		CorrectLetter: letter,
	}
	for j := range q.Options {
		q.Options[j] = fmt.Sprintf("option %s", string(model.Letters[j]))
	}
	q.CorrectText = q.Options[i%len(model.Letters)]
	return q
}

func newTestSession(t *testing.T, population, draw int) *Session {
	t.Helper()
	s, err := NewSession(population, draw, 90*time.Minute, time.Now())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestNewSessionDrawsDistinctIndices(t *testing.T) {
	s := newTestSession(t, 500, 100)

	if s.Size() != 100 {
		t.Fatalf("Size() = %d, want 100", s.Size())
	}
	seen := make(map[int]bool, s.Size())
	for pos := 0; pos < s.Size(); pos++ {
		idx := s.Index(pos)
		if idx < 0 || idx >= 500 {
			t.Errorf("Index(%d) = %d, out of range [0,500)", pos, idx)
		}
		if seen[idx] {
			t.Errorf("Index(%d) = %d drawn twice", pos, idx)
		}
		seen[idx] = true
	}
}

func TestNewSessionInsufficientPopulation(t *testing.T) {
	_, err := NewSession(50, 100, 90*time.Minute, time.Now())
	if !errors.Is(err, ErrInsufficientQuestions) {
		t.Fatalf("NewSession error = %v, want ErrInsufficientQuestions", err)
	}
}

func TestNewSessionExactPopulation(t *testing.T) {
	s := newTestSession(t, 100, 100)
	if s.Size() != 100 {
		t.Fatalf("Size() = %d, want 100", s.Size())
	}
}

func TestRecordAnswer(t *testing.T) {
	s := newTestSession(t, 20, 10)

	s.RecordAnswer(3, " b ")
	if got, ok := s.Answer(3); !ok || got != "B" {
		t.Errorf("Answer(3) = %q, %v; want %q, true", got, ok, "B")
	}

	// Overwrite is allowed any number of times before grading.
	s.RecordAnswer(3, "C")
	if got, _ := s.Answer(3); got != "C" {
		t.Errorf("Answer(3) after overwrite = %q, want %q", got, "C")
	}

	// Empty selection clears.
	s.RecordAnswer(3, "")
	if _, ok := s.Answer(3); ok {
		t.Error("Answer(3) still set after clearing")
	}

	// Invalid letters and out-of-range positions are ignored.
	s.RecordAnswer(4, "E")
	s.RecordAnswer(4, "AB")
	s.RecordAnswer(-1, "A")
	s.RecordAnswer(10, "A")
	if s.Answered() != 0 {
		t.Errorf("Answered() = %d after invalid writes, want 0", s.Answered())
	}
}

func TestRecordAnswerAfterGradeIsNoop(t *testing.T) {
	s := newTestSession(t, 20, 10)
	s.Grade(fakeBank{n: 20})

	s.RecordAnswer(0, "A")
	if s.Answered() != 0 {
		t.Errorf("Answered() = %d after frozen write, want 0", s.Answered())
	}
}

func TestGradeScoresTenthPerCorrect(t *testing.T) {
	s := newTestSession(t, 40, 10)
	bank := fakeBank{n: 40}

	// Answer the first four positions correctly, case-insensitively, and
	// the fifth wrong. The rest stay unanswered.
	for pos := 0; pos < 4; pos++ {
		want := bank.Question(s.Index(pos)).CorrectLetter
		if pos%2 == 1 {
			want = " " + want + " " // RecordAnswer normalizes
		}
		s.RecordAnswer(pos, want)
	}
	wrongLetter := "A"
	if bank.Question(s.Index(4)).CorrectLetter == "A" {
		wrongLetter = "B"
	}
	s.RecordAnswer(4, wrongLetter)

	o := s.Grade(bank)
	if len(o.Correct) != 4 {
		t.Errorf("Correct = %v (%d), want 4 positions", o.Correct, len(o.Correct))
	}
	if len(o.Wrong) != 6 {
		t.Errorf("Wrong = %v (%d), want 6 positions", o.Wrong, len(o.Wrong))
	}
	if math.Abs(o.Score-0.4) > 1e-9 {
		t.Errorf("Score = %v, want 0.4", o.Score)
	}
	if got := o.Percentage(); math.Abs(got-40) > 1e-9 {
		t.Errorf("Percentage() = %v, want 40", got)
	}
}

func TestGradeUnansweredExamScoresZero(t *testing.T) {
	s := newTestSession(t, 40, 10)
	o := s.Grade(fakeBank{n: 40})

	if o.Score != 0 {
		t.Errorf("Score = %v, want 0", o.Score)
	}
	if len(o.Wrong) != 10 {
		t.Errorf("Wrong = %d positions, want 10", len(o.Wrong))
	}
}

func TestGradeIsIdempotent(t *testing.T) {
	s := newTestSession(t, 40, 10)
	bank := fakeBank{n: 40}
	s.RecordAnswer(0, bank.Question(s.Index(0)).CorrectLetter)

	first := s.Grade(bank)
	second := s.Grade(bank)
	if first.Score != second.Score || len(first.Correct) != len(second.Correct) {
		t.Errorf("repeated Grade changed outcome: %+v then %+v", first, second)
	}
	if !s.Submitted() {
		t.Error("Submitted() = false after grading")
	}
}

func TestRemaining(t *testing.T) {
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	s, err := NewSession(10, 5, 90*time.Minute, start)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if got := s.Remaining(start); got != 90*time.Minute {
		t.Errorf("Remaining(start) = %v, want 90m", got)
	}
	if got := s.Remaining(start.Add(89 * time.Minute)); got != time.Minute {
		t.Errorf("Remaining(+89m) = %v, want 1m", got)
	}
	if got := s.Remaining(start.Add(2 * time.Hour)); got != 0 {
		t.Errorf("Remaining(+2h) = %v, want 0 (clamped)", got)
	}
}
