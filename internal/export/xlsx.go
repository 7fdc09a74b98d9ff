package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/core/ports"
)

// Service produces XLSX bytes for the classification history plus a summary
// sheet with the running statistics.
type Service struct {
	records ports.RecordReader
	stats   ports.StatsReader
	logger  *slog.Logger
}

func NewService(records ports.RecordReader, stats ports.StatsReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, stats: stats, logger: logger}
}

// ExportHistoryXLSX renders the most recent records into a workbook.
func (s *Service) ExportHistoryXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	records, err := s.records.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "History"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Classified At",
		"Filename",
		"Class",
		"Confidence",
		"Fusion Applied",
		"Simulation",
		"Pages",
		"Keywords",
		"Uploaded By",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range records {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.CreatedAt.Format("2006-01-02 15:04:05"))
		write(2, r.Filename)
		write(3, string(r.Result.DocumentClass))
		write(4, fmt.Sprintf("%.1f%%", r.Result.Confidence*100))
		write(5, r.Result.FusionApplied)
		write(6, r.Result.IsSimulation)
		write(7, r.PageCount)
		write(8, truncate(strings.Join(r.Result.Keywords, ", "), 140))
		write(9, r.UploadedBy)

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "C", "C", 12)
	_ = f.SetColWidth(sheet, "H", "H", 40)

	if err := writeSummarySheet(f, stats); err != nil {
		return nil, err
	}

	// The default sheet excelize creates is unused.
	_ = f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	s.logger.Info("history exported",
		"records", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, stats domain.Statistics) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	_ = f.SetCellValue(sheet, "A1", "Total Documents")
	_ = f.SetCellValue(sheet, "B1", stats.Total)
	_ = f.SetCellValue(sheet, "A2", "Average Confidence")
	_ = f.SetCellValue(sheet, "B2", fmt.Sprintf("%.1f%%", stats.AvgConfidence*100))

	row := 4
	_ = f.SetCellValue(sheet, "A3", "Per Class")
	for _, class := range domain.Classes() {
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheet, cellA, string(class))
		_ = f.SetCellValue(sheet, cellB, stats.ByClass[class])
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 22)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
