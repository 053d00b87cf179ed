package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheetName = "Music Sheets"

// ExportService renders a user's catalog as an XLSX workbook.
type ExportService struct {
	store SheetStore
}

func NewExportService(store SheetStore) *ExportService {
	return &ExportService{store: store}
}

// ExportUserSheetsXLSX returns the workbook bytes for every sheet owned by userID.
func (s *ExportService) ExportUserSheetsXLSX(ctx context.Context, userID string) ([]byte, error) {
	start := time.Now()

	sheets, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query music sheets: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet rather than adding a second one.
	if err := f.SetSheetName(f.GetSheetName(0), exportSheetName); err != nil {
		return nil, err
	}

	headers := []string{"ID", "Title", "Composer", "Instrument", "Difficulty", "Tags", "File URL", "MusicXML URL", "MIDI URL", "Created"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheetName, cell, h)
	}

	for i, m := range sheets {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(exportSheetName, cell, v)
		}
		write(1, m.ID)
		write(2, m.Title)
		write(3, m.Composer)
		write(4, m.Instrument)
		write(5, m.Difficulty)
		write(6, strings.Join(m.Tags, ", "))
		write(7, m.FileURL)
		write(8, m.XMLURL)
		write(9, m.MIDIURL)
		write(10, m.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}

	_ = f.SetColWidth(exportSheetName, "B", "C", 28)
	_ = f.SetColWidth(exportSheetName, "D", "F", 18)
	_ = f.SetColWidth(exportSheetName, "G", "I", 48)
	_ = f.SetColWidth(exportSheetName, "J", "J", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	slog.InfoContext(ctx, "export.xlsx.ok",
		"user_id", userID,
		"rows", len(sheets),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
