package webui

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opeprep/opexam/internal/exam"
	appI18n "github.com/opeprep/opexam/internal/i18n"
	"github.com/opeprep/opexam/internal/model"
	"github.com/opeprep/opexam/internal/qbank"
	"github.com/opeprep/opexam/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxUploadBytes = 10 << 20

// Handler is the single presentation shell over the exam controller. It
// holds no exam state of its own; every screen is derived from the
// controller on each request.
type Handler struct {
	ctrl *exam.Controller
	tmpl *template.Template
}

// New parses the embedded views and wires them to the controller.
func New(ctrl *exam.Controller) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Handler{ctrl: ctrl, tmpl: tmpl}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/menu", h.handleMenu)
	r.Post("/exam/start", h.handleStartExam)
	r.Get("/exam", h.handleExamPage)
	r.Post("/exam/page", h.handlePaginate)
	r.Post("/exam/submit", h.handleSubmit)
	r.Get("/results", h.handleResults)
	r.Post("/history", h.handleViewHistory)
	r.Post("/results/menu", h.handleReturnToMenu)
	r.Get("/results/report.pdf", h.handleReportPDF)
	r.Get("/results/charts/scores.png", h.handleScoreChart)
	r.Get("/results/charts/breakdown.png", h.handleBreakdownChart)
}

// handleRoot sends the browser to whatever screen the state machine is on.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.screenPath(), http.StatusSeeOther)
}

func (h *Handler) screenPath() string {
	switch h.ctrl.State() {
	case exam.StateMenu:
		return "/menu"
	case exam.StateInExam:
		return "/exam"
	case exam.StateResults:
		return "/results"
	default:
		return "/login"
	}
}

// page is the shared view-model base; templates call T for static labels.
type page struct {
	Ctx context.Context
}

func (p page) T(id string) string { return appI18n.T(p.Ctx, id) }

type loginPage struct {
	page
	Error string
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", loginPage{page: page{Ctx: r.Context()}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	user := r.FormValue("username")
	secret := r.FormValue("password")

	var err error
	if file, _, ferr := r.FormFile("bank"); ferr == nil {
		// An uploaded bank overrides the configured source.
		var bank *qbank.Bank
		if bank, err = qbank.Parse(file); err == nil {
			err = h.ctrl.LoginWith(user, secret, bank)
		}
		file.Close()
	} else {
		err = h.ctrl.Login(user, secret, "")
	}

	if err != nil {
		msg := err.Error()
		if errors.Is(err, exam.ErrAuth) {
			msg = appI18n.T(r.Context(), "LoginError")
		}
		w.WriteHeader(http.StatusUnauthorized)
		h.render(w, r, "login.html", loginPage{page: page{Ctx: r.Context()}, Error: msg})
		return
	}
	http.Redirect(w, r, "/menu", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Logout()
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type menuPage struct {
	page
	User      string
	Available string
	Error     string
}

func (h *Handler) handleMenu(w http.ResponseWriter, r *http.Request) {
	if h.ctrl.State() != exam.StateMenu {
		http.Redirect(w, r, h.screenPath(), http.StatusSeeOther)
		return
	}
	h.render(w, r, "menu.html", menuPage{
		page:      page{Ctx: r.Context()},
		User:      h.ctrl.User(),
		Available: appI18n.Tp(r.Context(), "QuestionsAvailable", h.ctrl.BankSize()),
		Error:     r.URL.Query().Get("err"),
	})
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StartExam(); err != nil {
		if errors.Is(err, exam.ErrInsufficientQuestions) {
			http.Redirect(w, r, "/menu?err="+err.Error(), http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, h.screenPath(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/exam", http.StatusSeeOther)
}

type examPage struct {
	page
	RemainingSecs int
	Remaining     string
	PageLabel     string
	Questions     []exam.PageQuestion
	HasPrev       bool
	HasNext       bool
}

func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	if h.ctrl.State() != exam.StateInExam {
		http.Redirect(w, r, h.screenPath(), http.StatusSeeOther)
		return
	}
	remaining := h.ctrl.Remaining()
	cur, total := h.ctrl.Page(), h.ctrl.PageCount()
	h.render(w, r, "exam.html", examPage{
		page:          page{Ctx: r.Context()},
		RemainingSecs: int(remaining.Seconds()),
		Remaining:     fmtCountdown(remaining),
		PageLabel: appI18n.Td(r.Context(), "PageOf", map[string]any{
			"Page": cur + 1, "Total": total,
		}),
		Questions: h.ctrl.PageQuestions(),
		HasPrev:   cur > 0,
		HasNext:   cur < total-1,
	})
}

func fmtCountdown(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// recordPageAnswers persists the radio selections posted with the current
// page's form. Absent fields leave earlier selections untouched.
func (h *Handler) recordPageAnswers(r *http.Request) {
	for _, q := range h.ctrl.PageQuestions() {
		letter := r.FormValue("q_" + strconv.Itoa(q.Pos))
		if letter == "" {
			continue
		}
		if err := h.ctrl.Answer(q.Pos, letter); err != nil {
			// Session froze under us (timeout); answers stay as graded.
			return
		}
	}
}

func (h *Handler) handlePaginate(w http.ResponseWriter, r *http.Request) {
	h.recordPageAnswers(r)
	switch r.FormValue("dir") {
	case "prev":
		h.ctrl.PrevPage()
	case "next":
		h.ctrl.NextPage()
	}
	http.Redirect(w, r, "/exam", http.StatusSeeOther)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.recordPageAnswers(r)
	if _, err := h.ctrl.Submit(); err != nil && !errors.Is(err, exam.ErrInvalidState) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/results", http.StatusSeeOther)
}

func (h *Handler) handleViewHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ViewHistory(); err != nil {
		http.Redirect(w, r, h.screenPath(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/results", http.StatusSeeOther)
}

func (h *Handler) handleReturnToMenu(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ReturnToMenu(); err != nil {
		http.Redirect(w, r, h.screenPath(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/menu", http.StatusSeeOther)
}

type wrongView struct {
	Num         int
	Text        string
	CorrectText string
	Chosen      string
}

type attemptView struct {
	Num       int
	Day       string
	Timestamp string
	Score     string
	Correct   int
	Wrong     int
}

type resultsPage struct {
	page
	HasOutcome  bool
	ScoreLine   string
	CorrectLine string
	WrongLine   string
	RateLine    string
	Encourage   string
	TimedOut    bool
	PersistWarn bool
	Wrong       []wrongView
	Attempts    []attemptView
	HasHistory  bool
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	if h.ctrl.State() != exam.StateResults {
		http.Redirect(w, r, h.screenPath(), http.StatusSeeOther)
		return
	}
	ctx := r.Context()
	data := resultsPage{page: page{Ctx: ctx}}

	if outcome, ok := h.ctrl.Outcome(); ok {
		data.HasOutcome = true
		data.ScoreLine = appI18n.Td(ctx, "FinalScore", map[string]any{
			"Score": fmt.Sprintf("%.1f", outcome.Score),
		})
		data.CorrectLine = appI18n.Tp(ctx, "CorrectCount", len(outcome.Correct))
		data.WrongLine = appI18n.Tp(ctx, "WrongCount", len(outcome.Wrong))
		data.RateLine = appI18n.Td(ctx, "SuccessRate", map[string]any{
			"Percent": fmt.Sprintf("%.1f", outcome.Percentage()),
		})
		data.Encourage = appI18n.T(ctx, encourageID(outcome.Percentage()))
		data.TimedOut = h.ctrl.TimedOut()
		data.PersistWarn = h.ctrl.PersistErr() != nil

		for _, wa := range h.ctrl.WrongAnswers() {
			chosen := wa.Chosen
			if chosen == "" {
				chosen = appI18n.T(ctx, "NotAnswered")
			}
			data.Wrong = append(data.Wrong, wrongView{
				Num:         wa.Pos + 1,
				Text:        wa.Question.Text,
				CorrectText: wa.Question.CorrectText,
				Chosen:      chosen,
			})
		}
	}

	attempts, err := h.ctrl.History()
	if err != nil {
		slog.Error("history query failed", "error", err)
	}
	for i, a := range attempts {
		data.Attempts = append(data.Attempts, attemptView{
			Num:       i + 1,
			Day:       a.Day,
			Timestamp: a.Timestamp.Format("2006-01-02 15:04:05"),
			Score:     fmt.Sprintf("%.1f", a.Score),
			Correct:   a.Correct,
			Wrong:     a.Wrong,
		})
	}
	data.HasHistory = len(attempts) > 0

	h.render(w, r, "results.html", data)
}

// encourageID picks the tiered encouragement message, thresholds 80 and 60.
func encourageID(percentage float64) string {
	switch {
	case percentage >= 80:
		return "EncourageHigh"
	case percentage >= 60:
		return "EncourageMid"
	default:
		return "EncourageLow"
	}
}

func (h *Handler) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	outcome, ok := h.ctrl.Outcome()
	if !ok {
		http.NotFound(w, r)
		return
	}
	start, end, _ := h.ctrl.Window()

	var buf bytes.Buffer
	err := report.WritePDF(&buf, report.Params{
		User:        h.ctrl.User(),
		Score:       outcome.Score,
		Correct:     len(outcome.Correct),
		Wrong:       h.ctrl.WrongAnswers(),
		Start:       start,
		End:         end,
		NotAnswered: appI18n.T(r.Context(), "NotAnswered"),
	})
	if err != nil {
		slog.Error("report generation failed", "error", err)
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}

	name := report.Filename("exam_report", time.Now())
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleScoreChart(w http.ResponseWriter, r *http.Request) {
	h.renderChart(w, r, report.ScoreChart)
}

func (h *Handler) handleBreakdownChart(w http.ResponseWriter, r *http.Request) {
	h.renderChart(w, r, report.BreakdownChart)
}

func (h *Handler) renderChart(w http.ResponseWriter, r *http.Request, render func(io.Writer, []model.Attempt) error) {
	attempts, err := h.ctrl.History()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := render(&buf, attempts); err != nil {
		if errors.Is(err, report.ErrNoAttempts) {
			http.NotFound(w, r)
			return
		}
		slog.Error("chart rendering failed", "error", err)
		http.Error(w, "chart rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("render error", "template", name, "error", err)
	}
}
