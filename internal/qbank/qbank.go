package qbank

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/opeprep/opexam/internal/model"
)

// ErrSourceNotFound reports a missing question-bank file.
var ErrSourceNotFound = errors.New("question bank not found")

// SchemaError reports a required column missing from the source header row.
type SchemaError struct {
	Column string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("question bank: missing column %q", e.Column)
}

// Required header columns, in the order they appear in the reference bank.
var requiredColumns = []string{
	"Question",
	"Answer A",
	"Answer B",
	"Answer C",
	"Answer D",
	"Correct Letter",
	"Correct Answer",
}

// Bank is an immutable, index-addressable question collection.
type Bank struct {
	questions []model.Question
}

// Len returns the population size of the bank.
func (b *Bank) Len() int { return len(b.questions) }

// Question returns the question at bank index i.
func (b *Bank) Question(i int) model.Question { return b.questions[i] }

// Load reads and validates a question bank from an xlsx file.
func Load(path string) (*Bank, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("open question bank %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

// Parse reads and validates a question bank from an uploaded xlsx stream.
func Parse(r io.Reader) (*Bank, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open question bank: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(f *excelize.File) (*Bank, error) {
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, SchemaError{Column: requiredColumns[0]}
	}

	cols, err := columnIndex(rows[0])
	if err != nil {
		return nil, err
	}

	b := &Bank{}
	for n, row := range rows[1:] {
		q, err := parseRow(row, cols)
		if err != nil {
			// Header is row 1, so the first data row is row 2.
			return nil, fmt.Errorf("question bank row %d: %w", n+2, err)
		}
		b.questions = append(b.questions, q)
	}

	slog.Info("loaded question bank", "sheet", sheet, "questions", b.Len())
	return b, nil
}

// columnIndex maps each required column name to its position in the header.
func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, SchemaError{Column: col}
		}
	}
	return idx, nil
}

func parseRow(row []string, cols map[string]int) (model.Question, error) {
	cell := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	q := model.Question{
		Text:          cell("Question"),
		CorrectLetter: strings.ToUpper(cell("Correct Letter")),
		CorrectText:   cell("Correct Answer"),
	}
	q.Options[0] = cell("Answer A")
	q.Options[1] = cell("Answer B")
	q.Options[2] = cell("Answer C")
	q.Options[3] = cell("Answer D")

	if q.Text == "" {
		return q, errors.New("empty question text")
	}
	if len(q.Choices()) < 2 {
		return q, errors.New("fewer than two options")
	}
	slot := strings.Index(model.Letters, q.CorrectLetter)
	if len(q.CorrectLetter) != 1 || slot < 0 {
		return q, fmt.Errorf("invalid correct letter %q", q.CorrectLetter)
	}
	if strings.TrimSpace(q.Options[slot]) == "" {
		return q, fmt.Errorf("correct letter %s points at a blank option", q.CorrectLetter)
	}
	return q, nil
}

// Sample questions cycled by WriteSample.
var sampleRows = [][]string{
	{"What is the capital of Spain?", "Madrid", "Barcelona", "Valencia", "Seville", "A", "Madrid"},
	{"What is 2+2?", "3", "4", "5", "6", "B", "4"},
	{"In which year was America discovered?", "1491", "1492", "1493", "1494", "B", "1492"},
	{"Which is the largest planet of the solar system?", "Jupiter", "Saturn", "Neptune", "Uranus", "A", "Jupiter"},
}

// WriteSample writes a placeholder bank of n questions to path. It is an
// optional convenience for first runs without a real bank.
func WriteSample(path string, n int) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]any, len(requiredColumns))
	for i, c := range requiredColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := 0; i < n; i++ {
		src := sampleRows[i%len(sampleRows)]
		row := make([]any, len(src))
		for j, v := range src {
			row[j] = v
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save sample bank %s: %w", path, err)
	}
	slog.Info("wrote sample question bank", "path", path, "questions", n)
	return nil
}
