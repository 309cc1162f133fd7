package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/opeprep/opexam/internal/exam"
)

const (
	maxQuestionLen = 200
	maxAnswerLen   = 100
)

// Params carries everything the exam summary PDF needs. The generator is a
// read-only consumer: it never feeds back into the controller or the ledger.
type Params struct {
	User    string
	Score   float64
	Correct int
	Wrong   []exam.WrongAnswer
	Start   time.Time
	End     time.Time

	// NotAnswered is the localized placeholder for a blank selection.
	NotAnswered string
}

// WritePDF renders the exam summary: score header, then every missed
// question with the user's choice and the correct answer.
func WritePDF(w io.Writer, p Params) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Exam report - User: %s", p.User)), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Start: %s   End: %s",
		p.Start.Format("2006-01-02 15:04:05"), p.End.Format("2006-01-02 15:04:05")), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Score: %.2f points", p.Score), "", 1, "", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Correct: %d  Wrong: %d", p.Correct, len(p.Wrong)), "", 1, "", false, 0, "")
	pdf.Ln(5)

	if len(p.Wrong) == 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 10, tr("Perfect exam! No missed questions."), "", 1, "C", false, 0, "")
	} else {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, "MISSED QUESTIONS:", "", 1, "", false, 0, "")
		pdf.Ln(3)

		for _, wa := range p.Wrong {
			chosen := wa.Chosen
			if chosen == "" {
				chosen = p.NotAnswered
				if chosen == "" {
					chosen = "not answered"
				}
			}

			pdf.SetFont("Arial", "B", 9)
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("Q%d: %s", wa.Pos+1, truncate(wa.Question.Text, maxQuestionLen))), "", "", false)

			pdf.SetFont("Arial", "", 8)
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("Your answer: %s", chosen)), "", "", false)
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("Correct: %s", truncate(wa.Question.CorrectText, maxAnswerLen))), "", "", false)
			pdf.Ln(3)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report PDF: %w", err)
	}
	return nil
}

// Filename derives a collision-free report name from a timestamp.
func Filename(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.pdf", prefix, now.Format("20060102_150405"))
}

// truncate bounds s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
