// Package importer loads catalog questions from spreadsheets.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"amc-progress-service/internal/domain"
	"github.com/xuri/excelize/v2"
)

// QuestionWriter stores imported questions.
type QuestionWriter interface {
	UpsertQuestions(ctx context.Context, questions []domain.Question) (int, error)
}

// Config describes the sheet layout.
type Config struct {
	FilePath  string
	SheetName string // empty means the first sheet
	StartRow  int    // 1-based; defaults to 2 to skip the header
}

// Result holds the outcome of an import.
type Result struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// Columns, in order: testType, year, number, topic, answer, prompt, choices.
// Choices are separated by "|".
const (
	colTestType = iota
	colYear
	colNumber
	colTopic
	colAnswer
	colPrompt
	colChoices
)

// Import reads the workbook and upserts every valid row. Invalid rows are
// reported in the result and skipped.
func Import(ctx context.Context, cfg Config, w QuestionWriter) (Result, error) {
	questions, res, err := Read(cfg)
	if err != nil {
		return res, err
	}
	if len(questions) == 0 {
		return res, nil
	}
	n, err := w.UpsertQuestions(ctx, questions)
	res.Imported = n
	if err != nil {
		return res, fmt.Errorf("store questions: %w", err)
	}
	return res, nil
}

// Read parses the workbook without storing anything.
func Read(cfg Config) ([]domain.Question, Result, error) {
	res := Result{Errors: make([]string, 0)}
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, res, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := cfg.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	start := cfg.StartRow
	if start <= 0 {
		start = 2
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, res, fmt.Errorf("read rows: %w", err)
	}

	var out []domain.Question
	for i, row := range rows {
		if i < start-1 {
			continue
		}
		if isBlank(row) {
			continue
		}
		res.TotalProcessed++
		q, err := parseRow(row)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		out = append(out, q)
	}
	return out, res, nil
}

func parseRow(row []string) (domain.Question, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	testType, ok := domain.ParseTestType(cell(colTestType))
	if !ok {
		return domain.Question{}, fmt.Errorf("unknown test type %q", cell(colTestType))
	}
	year, err := strconv.Atoi(cell(colYear))
	if err != nil {
		return domain.Question{}, fmt.Errorf("bad year %q", cell(colYear))
	}
	number, err := strconv.Atoi(cell(colNumber))
	if err != nil || number < 1 || number > domain.QuestionCount {
		return domain.Question{}, fmt.Errorf("bad question number %q", cell(colNumber))
	}
	answer := strings.ToUpper(cell(colAnswer))
	if answer == "" {
		return domain.Question{}, fmt.Errorf("missing answer")
	}

	q := domain.Question{
		ID:       fmt.Sprintf("%s-%d-%d", testType, year, number),
		TestType: testType,
		Year:     year,
		Number:   number,
		Topic:    domain.NormalizeTopic(cell(colTopic)),
		Prompt:   cell(colPrompt),
		Answer:   answer,
	}
	if raw := cell(colChoices); raw != "" {
		for _, c := range strings.Split(raw, "|") {
			q.Choices = append(q.Choices, strings.TrimSpace(c))
		}
	}
	return q, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
