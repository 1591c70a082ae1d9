// Package report renders parent-facing progress reports.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/hyperengineering/sprout/analytics"
	"github.com/hyperengineering/sprout/progress"
)

// Sheet names of the workbook.
const (
	SheetSummary  = "Summary"
	SheetWeak     = "Weak Items"
	SheetCalendar = "Calendar"
	SheetRecords  = "Records"
)

// WriteXLSX writes a workbook with the learner's summary, weak items,
// practice calendar and raw records.
func WriteXLSX(w io.Writer, s analytics.Summary, records []progress.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", SheetSummary)
	for _, name := range []string{SheetWeak, SheetCalendar, SheetRecords} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("report: new sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: style: %w", err)
	}

	summary := [][]any{
		{"Learner", s.LearnerID},
		{"7-day retention (%)", s.Retention7Day},
		{"14-day retention (%)", s.Retention14Day},
		{"Items mastered", s.ItemsMastered},
		{"Total items", s.TotalItems},
		{"Due today", s.DueToday},
		{"Efficiency score", s.EfficiencyScore},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("report: style summary: %w", err)
	}

	weak := [][]any{{"Item", "Ease", "Streak", "Repetitions", "Suggested practice"}}
	for _, wi := range s.WeakItems {
		weak = append(weak, []any{wi.ItemID, wi.Ease, wi.Streak, wi.Repetitions, wi.Remediation})
	}
	if err := writeTable(f, SheetWeak, weak, bold); err != nil {
		return err
	}

	calendar := [][]any{{"Date", "Attempts", "Mean quality"}}
	for _, d := range s.CalendarData {
		calendar = append(calendar, []any{d.Date.String(), d.Attempts, d.MeanQuality})
	}
	if err := writeTable(f, SheetCalendar, calendar, bold); err != nil {
		return err
	}

	rows := [][]any{{"Item", "Interval (days)", "Ease", "Repetitions", "Streak", "Mastery", "Due", "Last review", "Attempts"}}
	for _, r := range records {
		if r.LearnerID != s.LearnerID {
			continue
		}
		rows = append(rows, []any{
			r.ItemID, r.IntervalDays, r.Ease, r.Repetitions, r.Streak,
			string(r.MasteryLevel), r.DueDate.String(), r.LastReviewDate.String(), len(r.History),
		})
	}
	if err := writeTable(f, SheetRecords, rows, bold); err != nil {
		return err
	}

	if err := f.SetColWidth(SheetSummary, "A", "A", 24); err != nil {
		return fmt.Errorf("report: column width: %w", err)
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}

// writeTable writes rows with a bold header row.
func writeTable(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return fmt.Errorf("report: %s header: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("report: %s header style: %w", sheet, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("report: %s row %d: %w", sheet, i+1, err)
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("report: %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
