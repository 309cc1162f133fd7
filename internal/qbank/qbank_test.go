package qbank

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

var validHeader = []string{
	"Question", "Answer A", "Answer B", "Answer C", "Answer D",
	"Correct Letter", "Correct Answer",
}

// writeBank writes an xlsx bank file with the given header and rows and
// returns its path.
func writeBank(t *testing.T, header []string, rows [][]string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	toAny := func(ss []string) []any {
		out := make([]any, len(ss))
		for i, s := range ss {
			out[i] = s
		}
		return out
	}

	h := toAny(header)
	if err := f.SetSheetRow(sheet, "A1", &h); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := toAny(row)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "bank.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save bank: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xlsx"))
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("Load error = %v, want ErrSourceNotFound", err)
	}
}

func TestLoadMissingColumn(t *testing.T) {
	header := []string{"Question", "Answer A", "Answer B", "Answer C", "Answer D", "Correct Letter"}
	path := writeBank(t, header, nil)

	_, err := Load(path)
	var se SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("Load error = %v, want SchemaError", err)
	}
	if se.Column != "Correct Answer" {
		t.Errorf("SchemaError.Column = %q, want %q", se.Column, "Correct Answer")
	}
}

func TestLoadValidBank(t *testing.T) {
	path := writeBank(t, validHeader, [][]string{
		{"What is the capital of Spain?", "Madrid", "Barcelona", "Valencia", "Seville", "A", "Madrid"},
		{"What is 2+2?", "3", "4", "5", "6", "b", "4"},
	})

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	q := b.Question(1)
	if q.CorrectLetter != "B" {
		t.Errorf("CorrectLetter = %q, want %q (uppercased)", q.CorrectLetter, "B")
	}
	if q.CorrectText != "4" {
		t.Errorf("CorrectText = %q, want %q", q.CorrectText, "4")
	}
}

func TestLoadBlankOptionKeepsLetters(t *testing.T) {
	path := writeBank(t, validHeader, [][]string{
		{"Pick C", "first", "second", "third", "", "C", "third"},
	})

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	choices := b.Question(0).Choices()
	if len(choices) != 3 {
		t.Fatalf("Choices() = %d entries, want 3", len(choices))
	}
	for i, want := range []string{"A", "B", "C"} {
		if choices[i].Letter != want {
			t.Errorf("choice %d letter = %q, want %q", i, choices[i].Letter, want)
		}
	}
}

func TestLoadRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		row  []string
	}{
		{"empty question", []string{"", "a", "b", "c", "d", "A", "a"}},
		{"single option", []string{"Q?", "a", "", "", "", "A", "a"}},
		{"invalid letter", []string{"Q?", "a", "b", "c", "d", "E", "a"}},
		{"letter at blank option", []string{"Q?", "a", "b", "", "d", "C", "?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeBank(t, validHeader, [][]string{tt.row})
			if _, err := Load(path); err == nil {
				t.Fatal("Load succeeded, want row error")
			}
		})
	}
}

func TestWriteSampleRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.xlsx")
	if err := WriteSample(path, 10); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if b.Len() != 10 {
		t.Errorf("Len() = %d, want 10", b.Len())
	}
}
