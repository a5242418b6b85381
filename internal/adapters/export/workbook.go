// Package export renders report and calendar downloads.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"fellowship/internal/domain/event"
	"fellowship/internal/domain/member"
)

// Sheet names in the report workbook.
const (
	SheetSummary = "Summary"
	SheetMembers = "Members"
	SheetEvents  = "Events"
)

// Count is one named figure from the health report. A nil Value means the
// figure could not be computed.
type Count struct {
	Name  string
	Value *int64
}

// Check mirrors one health check line.
type Check struct {
	Name   string
	Status string
	Detail string
}

// EventRow pairs an event with its RSVP totals.
type EventRow struct {
	Event   event.Event
	Summary event.Summary
}

// Report is everything the admin workbook shows.
type Report struct {
	GeneratedAt time.Time
	Status      string
	Counts      []Count
	Checks      []Check
	Members     []member.Member
	Events      []EventRow
}

var (
	memberHeaders = []string{"Last name", "First name", "Email", "Phone", "Role", "Status", "Member since", "Last login"}
	eventHeaders  = []string{"Title", "Starts", "Ends", "Location", "Status", "Capacity", "Attending", "Guests", "Maybe", "Declined"}
)

// WriteReportWorkbook writes r as an XLSX workbook with Summary, Members and
// Events sheets.
// POST: w receives a complete workbook, or an error is returned
func WriteReportWorkbook(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to set sheet name: %w", err)
	}
	for _, name := range []string{SheetMembers, SheetEvents} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeSummary(f, r, bold); err != nil {
		return err
	}

	rows := make([][]any, 0, len(r.Members))
	for _, m := range r.Members {
		rows = append(rows, []any{
			m.LastName, m.FirstName, m.Email, m.Phone, m.Role, m.Status,
			m.MembershipDate.Format("2006-01-02"), formatOptional(m.LastLoginAt),
		})
	}
	if err := writeTable(f, SheetMembers, memberHeaders, rows, bold); err != nil {
		return err
	}

	rows = rows[:0]
	for _, e := range r.Events {
		capacity := any(e.Event.Capacity)
		if e.Event.Capacity == 0 {
			capacity = "unlimited"
		}
		rows = append(rows, []any{
			e.Event.Title,
			e.Event.StartsAt.UTC().Format(time.DateTime),
			e.Event.EndsAt.UTC().Format(time.DateTime),
			e.Event.Location,
			e.Event.Status,
			capacity,
			e.Summary.Attending,
			e.Summary.Guests,
			e.Summary.Maybe,
			e.Summary.Declined,
		})
	}
	if err := writeTable(f, SheetEvents, eventHeaders, rows, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSummary(f *excelize.File, r Report, bold int) error {
	rows := [][]any{
		{"Generated at", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Status", r.Status},
		{},
		{"Count", "Value"},
	}
	for _, c := range r.Counts {
		var v any = "unavailable"
		if c.Value != nil {
			v = *c.Value
		}
		rows = append(rows, []any{c.Name, v})
	}
	rows = append(rows, []any{}, []any{"Check", "Status", "Detail"})
	for _, c := range r.Checks {
		rows = append(rows, []any{c.Name, c.Status, c.Detail})
	}
	for i, row := range rows {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(SheetSummary, 4, 4, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 24); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "C", "C", 48)
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any, bold int) error {
	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	if err := setRow(f, sheet, 1, head); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	return f.SetColWidth(sheet, "A", last, 18)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateTime)
}
