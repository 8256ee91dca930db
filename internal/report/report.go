// Package report exports a progress report as PDF.
package report

import (
	"fmt"
	"io"
	"time"

	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/scoring"
	"amc-progress-service/internal/stats"
	"github.com/jung-kurt/gofpdf"
)

// Input is everything the report shows.
type Input struct {
	Title       string
	GeneratedAt time.Time
	Profile     domain.Profile
	Summary     stats.Summary
	Scores      []domain.TestScore
}

// WritePDF renders the report to w.
func WritePDF(w io.Writer, in Input) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(in.Title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, in.Title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated "+in.GeneratedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Profile")
	p := in.Profile
	rows := [][2]string{
		{"Level", fmt.Sprintf("%d (%d%% to next)", p.Level.Level, p.Level.Progress)},
		{"XP", fmt.Sprintf("%d", p.XP)},
		{"Coins", fmt.Sprintf("%d", p.Coins)},
		{"Streak", fmt.Sprintf("%d days", p.Streak)},
		{"Tests", fmt.Sprintf("%d", p.TotalTests)},
		{"Badges", fmt.Sprintf("%d earned", countEarned(p.Badges))},
	}
	keyValues(pdf, rows)

	section(pdf, "Summary")
	sum := in.Summary
	summaryRows := [][2]string{
		{"Average", fmt.Sprintf("%.1f%%", sum.AveragePercent)},
		{"Best", fmt.Sprintf("%.1f%%", sum.BestPercent)},
		{"Latest", fmt.Sprintf("%.1f%%", sum.LatestPercent)},
		{"Trend", string(sum.Trend)},
	}
	if sum.Consistency != nil {
		summaryRows = append(summaryRows, [2]string{"Consistency", fmt.Sprintf("%d", *sum.Consistency)})
	}
	keyValues(pdf, summaryRows)

	if len(sum.Topics) > 0 {
		section(pdf, "Topics")
		pdf.SetFont("Helvetica", "B", 10)
		for _, h := range []string{"Topic", "Correct", "Total", "Accuracy"} {
			pdf.CellFormat(40, 7, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
		for _, t := range sum.Topics {
			pdf.CellFormat(40, 7, string(t.Topic), "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 7, fmt.Sprintf("%d", t.Correct), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 7, fmt.Sprintf("%d", t.Total), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 7, fmt.Sprintf("%d%%", t.Accuracy), "1", 1, "R", false, 0, "")
		}
	}

	if len(in.Scores) > 0 {
		section(pdf, "Tests")
		pdf.SetFont("Helvetica", "B", 10)
		for _, h := range []string{"Date", "Test", "Year", "Score", "Percent"} {
			pdf.CellFormat(32, 7, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
		for _, s := range in.Scores {
			pdf.CellFormat(32, 7, s.Date.Format("2006-01-02"), "1", 0, "L", false, 0, "")
			pdf.CellFormat(32, 7, string(s.TestType), "1", 0, "L", false, 0, "")
			pdf.CellFormat(32, 7, fmt.Sprintf("%d", s.Year), "1", 0, "R", false, 0, "")
			pdf.CellFormat(32, 7, fmt.Sprintf("%g", s.Score), "1", 0, "R", false, 0, "")
			pdf.CellFormat(32, 7, fmt.Sprintf("%.1f%%", scoring.Percent(s)), "1", 1, "R", false, 0, "")
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return pdf.Output(w)
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func keyValues(pdf *gofpdf.Fpdf, rows [][2]string) {
	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(40, 6, r[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, r[1], "", 1, "L", false, 0, "")
	}
}

func countEarned(badges []domain.BadgeStatus) int {
	n := 0
	for _, b := range badges {
		if b.Earned {
			n++
		}
	}
	return n
}
