package exam

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/opeprep/opexam/internal/model"
	"github.com/opeprep/opexam/internal/qbank"
)

// State identifies a screen of the exam state machine.
type State string

const (
	StateLoggedOut State = "logged_out"
	StateMenu      State = "menu"
	StateInExam    State = "in_exam"
	StateResults   State = "results"
)

// Ledger is the append-only attempt history the controller persists into.
type Ledger interface {
	Append(user string, a model.Attempt) (int64, error)
	Query(user string) ([]model.Attempt, error)
}

// Config holds the externalized exam parameters.
type Config struct {
	DrawSize int
	PageSize int
	Duration time.Duration

	// Secret is the shared plaintext password. SecretHash, when set, takes
	// precedence and is compared with bcrypt instead.
	Secret     string
	SecretHash string

	// BankPath is the default question source, used when login supplies
	// no override.
	BankPath string
}

// Controller owns the current state-machine state, the loaded question bank,
// and the active session. All methods are safe for concurrent use: the web
// layer and the timeout ticker call in from different goroutines.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	ledger Ledger
	clock  func() time.Time

	state      State
	user       string
	bank       *qbank.Bank
	session    *Session
	page       int
	outcome    *model.Outcome
	finished   time.Time
	timedOut   bool
	persistErr error
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// New creates a controller in the LoggedOut state.
func New(cfg Config, ledger Ledger, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg,
		ledger: ledger,
		clock:  time.Now,
		state:  StateLoggedOut,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state-machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the logged-in user name.
func (c *Controller) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Login authenticates against the shared secret and loads the question bank
// from bankPath, or from the configured default when bankPath is empty.
// On any failure the state stays LoggedOut.
func (c *Controller) Login(user, secret, bankPath string) error {
	if bankPath == "" {
		bankPath = c.cfg.BankPath
	}
	if err := c.verifySecret(secret); err != nil {
		return err
	}
	bank, err := qbank.Load(bankPath)
	if err != nil {
		return err
	}
	return c.LoginWith(user, secret, bank)
}

// LoginWith authenticates and installs an already-parsed bank, used when the
// login screen uploads an override source.
func (c *Controller) LoginWith(user, secret string, bank *qbank.Bank) error {
	if err := c.verifySecret(secret); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLoggedOut {
		return ErrInvalidState
	}
	c.user = user
	c.bank = bank
	c.state = StateMenu
	slog.Info("user logged in", "user", user, "questions", bank.Len())
	return nil
}

func (c *Controller) verifySecret(secret string) error {
	secret = strings.TrimSpace(secret)
	if c.cfg.SecretHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(c.cfg.SecretHash), []byte(secret)) != nil {
			return ErrAuth
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(c.cfg.Secret)) != 1 {
		return ErrAuth
	}
	return nil
}

// StartExam draws a fresh session and enters InExam. A draw size exceeding
// the bank population surfaces ErrInsufficientQuestions and keeps the menu.
func (c *Controller) StartExam() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateMenu {
		return ErrInvalidState
	}
	session, err := NewSession(c.bank.Len(), c.cfg.DrawSize, c.cfg.Duration, c.clock())
	if err != nil {
		return err
	}
	c.session = session
	c.page = 0
	c.outcome = nil
	c.timedOut = false
	c.persistErr = nil
	c.state = StateInExam
	slog.Info("exam started", "user", c.user, "draw", session.Size(), "duration", c.cfg.Duration)
	return nil
}

// Answer records a selection for a draw position; an empty letter clears it.
func (c *Controller) Answer(pos int, letter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInExam {
		return ErrInvalidState
	}
	c.session.RecordAnswer(pos, letter)
	return nil
}

// Page returns the current exam page, zero-based.
func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// PageCount returns ceil(drawSize / pageSize).
func (c *Controller) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageCountLocked()
}

func (c *Controller) pageCountLocked() int {
	if c.session == nil || c.cfg.PageSize <= 0 {
		return 0
	}
	return (c.session.Size() + c.cfg.PageSize - 1) / c.cfg.PageSize
}

// NextPage advances one page, never past the last. Paging never touches
// the answer map.
func (c *Controller) NextPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateInExam && c.page < c.pageCountLocked()-1 {
		c.page++
	}
}

// PrevPage moves one page back, never before page zero.
func (c *Controller) PrevPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateInExam && c.page > 0 {
		c.page--
	}
}

// PageQuestion is one question of the current exam page, with the user's
// current selection if any.
type PageQuestion struct {
	Pos      int
	Question model.Question
	Selected string
}

// PageQuestions returns the questions of the current page in draw order.
func (c *Controller) PageQuestions() []PageQuestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	start := c.page * c.cfg.PageSize
	end := min(start+c.cfg.PageSize, c.session.Size())
	var qs []PageQuestion
	for pos := start; pos < end; pos++ {
		selected, _ := c.session.Answer(pos)
		qs = append(qs, PageQuestion{
			Pos:      pos,
			Question: c.bank.Question(c.session.Index(pos)),
			Selected: selected,
		})
	}
	return qs
}

// Remaining returns the time left in the running exam, zero otherwise.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInExam || c.session == nil {
		return 0
	}
	return c.session.Remaining(c.clock())
}

// Submit grades the active session and moves to Results. Calling it again
// after submission (including after a timeout already fired) returns the
// cached outcome without a second ledger append.
func (c *Controller) Submit() (model.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateResults && c.outcome != nil {
		return *c.outcome, nil
	}
	if c.state != StateInExam {
		return model.Outcome{}, ErrInvalidState
	}
	return c.finishLocked("manual"), nil
}

// Tick drives the countdown. It fires the timeout submission exactly once
// when the remaining time reaches zero and reports whether it did.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInExam || c.session == nil || c.session.Submitted() {
		return false
	}
	if c.session.Remaining(c.clock()) > 0 {
		return false
	}
	c.finishLocked("timeout")
	return true
}

// finishLocked is the single InExam -> Results edge: it grades, persists one
// attempt record, and transitions. A persistence failure is kept aside so
// the score still reaches the user.
func (c *Controller) finishLocked(cause string) model.Outcome {
	now := c.clock()
	o := c.session.Grade(c.bank)
	c.outcome = &o
	c.finished = now
	c.timedOut = cause == "timeout"

	attempt := model.Attempt{
		User:      c.user,
		Day:       now.Format("2006-01-02"),
		Timestamp: now,
		Score:     o.Score,
		Correct:   len(o.Correct),
		Wrong:     len(o.Wrong),
	}
	if _, err := c.ledger.Append(c.user, attempt); err != nil {
		c.persistErr = fmt.Errorf("persist attempt: %w", err)
		slog.Error("attempt not persisted", "user", c.user, "error", err)
	}

	c.state = StateResults
	slog.Info("exam submitted", "user", c.user, "cause", cause,
		"score", o.Score, "correct", len(o.Correct), "wrong", len(o.Wrong))
	return o
}

// ViewHistory opens the results screen without grading fields.
func (c *Controller) ViewHistory() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateMenu {
		return ErrInvalidState
	}
	c.state = StateResults
	return nil
}

// ReturnToMenu closes the results screen.
func (c *Controller) ReturnToMenu() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateResults {
		return ErrInvalidState
	}
	c.state = StateMenu
	return nil
}

// Logout discards the current session without persisting anything.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateLoggedOut
	c.user = ""
	c.bank = nil
	c.session = nil
	c.outcome = nil
	c.timedOut = false
	c.persistErr = nil
}

// TimedOut reports whether the last submission was triggered by the clock.
func (c *Controller) TimedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timedOut
}

// Outcome returns the grading outcome of the last submitted session.
func (c *Controller) Outcome() (model.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return model.Outcome{}, false
	}
	return *c.outcome, true
}

// PersistErr returns the ledger failure of the last submission, if any.
func (c *Controller) PersistErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistErr
}

// WrongAnswer describes one missed question for the results screen and the
// PDF report. Chosen is empty when the position was left unanswered.
type WrongAnswer struct {
	Pos      int
	Question model.Question
	Chosen   string
}

// WrongAnswers lists the missed positions of the last submitted session.
func (c *Controller) WrongAnswers() []WrongAnswer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil || c.session == nil {
		return nil
	}
	var ws []WrongAnswer
	for _, pos := range c.outcome.Wrong {
		chosen, _ := c.session.Answer(pos)
		ws = append(ws, WrongAnswer{
			Pos:      pos,
			Question: c.bank.Question(c.session.Index(pos)),
			Chosen:   chosen,
		})
	}
	return ws
}

// Draw returns the questions of the last session in draw order.
func (c *Controller) Draw() []model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	qs := make([]model.Question, c.session.Size())
	for pos := range qs {
		qs[pos] = c.bank.Question(c.session.Index(pos))
	}
	return qs
}

// Answers returns a copy of the session's answer map keyed by draw position.
func (c *Controller) Answers() map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[int]string)
	if c.session == nil {
		return m
	}
	for pos := 0; pos < c.session.Size(); pos++ {
		if letter, ok := c.session.Answer(pos); ok {
			m[pos] = letter
		}
	}
	return m
}

// Window returns the start and end timestamps of the last submitted session.
func (c *Controller) Window() (start, end time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.outcome == nil {
		return time.Time{}, time.Time{}, false
	}
	return c.session.Start(), c.finished, true
}

// History returns the logged-in user's attempts, oldest first.
func (c *Controller) History() ([]model.Attempt, error) {
	c.mu.Lock()
	user := c.user
	c.mu.Unlock()
	if user == "" {
		return nil, ErrInvalidState
	}
	attempts, err := c.ledger.Query(user)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return attempts, nil
}

// BankSize returns the loaded question population, zero before login.
func (c *Controller) BankSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bank == nil {
		return 0
	}
	return c.bank.Len()
}
