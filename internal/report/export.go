package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Reports"

var exportHeader = []any{
	"ID", "Call ID", "Customer Name", "Phone Number", "Customer Email", "Duration (s)",
	"Status", "Language", "Customer Mood", "Overall Score", "Summary", "Created At", "Generated At",
}

// ExportXLSX writes all report summaries as a spreadsheet, newest first.
func (reportService *Service) ExportXLSX(ctx context.Context, w io.Writer) error {
	summaries, err := reportService.List(ctx)
	if err != nil {
		return err
	}

	return WriteXLSX(w, summaries)
}

func WriteXLSX(w io.Writer, summaries []Summary) error {
	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	err := file.SetSheetName("Sheet1", exportSheet)
	if err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	err = file.SetSheetRow(exportSheet, "A1", &exportHeader)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for idx, summary := range summaries {
		cell, err := excelize.CoordinatesToCellName(1, idx+2)
		if err != nil {
			return err
		}

		row := []any{
			summary.ID,
			summary.CallID,
			summary.CustomerName,
			summary.PhoneNumber,
			summary.CustomerEmail,
			summary.Duration,
			summary.Status,
			summary.Language,
			summary.CustomerMood,
			summary.CustomerOverallScore,
			summary.Summary,
			formatTime(summary.CreatedAt),
			formatTime(summary.GeneratedAt),
		}

		err = file.SetSheetRow(exportSheet, cell, &row)
		if err != nil {
			return fmt.Errorf("write row %d: %w", idx+2, err)
		}
	}

	return file.Write(w)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339)
}
