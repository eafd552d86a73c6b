// Package excel exports trial batches as spreadsheets for offline analysis.
package excel

import (
	"context"
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"

	"cognosis/domain/statistics"
	"cognosis/ports"
)

// ReportWriter implements ports.ReportWriter with an xlsx workbook: one
// sheet of raw trials, one of summary statistics.
type ReportWriter struct{}

// NewReportWriter creates a ReportWriter.
func NewReportWriter() *ReportWriter {
	return &ReportWriter{}
}

const (
	trialsSheet  = "Trials"
	summarySheet = "Summary"
)

// WriteBatchReport writes the workbook to path.
func (w *ReportWriter) WriteBatchReport(ctx context.Context, path string, trials []ports.Trial, summary statistics.BatchSummary) error {
	if len(trials) == 0 {
		return fmt.Errorf("no trials to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", trialsSheet)
	if err := w.writeTrials(f, trials); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := w.writeSummary(f, summary); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	log.Printf("[ReportWriter] wrote %d trials to %s", len(trials), path)
	return nil
}

func (w *ReportWriter) writeTrials(f *excelize.File, trials []ports.Trial) error {
	headers := []any{
		"Trial ID", "Session ID", "Party", "Kind", "Hit", "Options",
		"Score", "Method", "Z", "P", "Significance", "Psi", "Reward", "Settled At",
	}
	if err := f.SetSheetRow(trialsSheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, t := range trials {
		hit := ""
		if t.Hit != nil {
			hit = fmt.Sprintf("%t", *t.Hit)
		}
		psi := ""
		if t.Psi != nil {
			psi = fmt.Sprintf("%.4f", t.Psi.Psi)
		}
		row := []any{
			t.ID.String(), t.SessionID.String(), t.PartyID.String(), t.Kind, hit, t.NumOptions,
			t.Score.OverallScore, string(t.Score.Method),
			t.Stats.ZScore, t.Stats.PValue, string(t.Stats.Significance),
			psi, t.Reward, t.CreatedAt.String(),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(trialsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}

func (w *ReportWriter) writeSummary(f *excelize.File, summary statistics.BatchSummary) error {
	rows := [][]any{
		{"Sessions", summary.Sessions},
		{"Mean score", summary.Mean},
		{"Std dev", summary.Std},
		{"Median", summary.Median},
		{"Min", summary.Min},
		{"Max", summary.Max},
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	return nil
}
