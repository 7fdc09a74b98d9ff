package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

type readerFake struct {
	records []domain.DocumentRecord
	stats   domain.Statistics
}

func (f *readerFake) GetByID(context.Context, string) (*domain.DocumentRecord, error) {
	return nil, nil
}

func (f *readerFake) ListRecent(context.Context, int) ([]domain.DocumentRecord, error) {
	return f.records, nil
}

func (f *readerFake) Stats(context.Context) (domain.Statistics, error) {
	return f.stats, nil
}

func TestExportHistoryXLSX(t *testing.T) {
	fake := &readerFake{
		records: []domain.DocumentRecord{
			{
				Filename: "invoice.pdf",
				Result: domain.FusionResult{
					DocumentClass: domain.ClassInvoice,
					Confidence:    0.91,
					FusionApplied: true,
					Keywords:      []string{"invoice", "total"},
				},
				PageCount:  2,
				UploadedBy: "admin",
				CreatedAt:  time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
			},
		},
		stats: domain.Statistics{
			Total:         1,
			ByClass:       map[domain.Class]int{domain.ClassInvoice: 1},
			AvgConfidence: 0.91,
		},
	}

	raw, err := NewService(fake, fake, nil).ExportHistoryXLSX(context.Background(), 50)
	if err != nil {
		t.Fatalf("ExportHistoryXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("History")
	if err != nil {
		t.Fatalf("read History sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one record, got %d rows", len(rows))
	}
	if rows[1][1] != "invoice.pdf" || rows[1][2] != "Invoice" {
		t.Fatalf("unexpected record row: %v", rows[1])
	}
	if rows[1][3] != "91.0%" {
		t.Fatalf("confidence formatted wrong: %q", rows[1][3])
	}

	total, err := f.GetCellValue("Summary", "B1")
	if err != nil || total != "1" {
		t.Fatalf("summary total = %q (err=%v)", total, err)
	}
}
