package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"bidintake/internal"
)

var exportHeaders = []string{
	"bid_id", "project_id", "project_name", "contractor", "contractor_id",
	"bid_amount", "due_date", "status", "email_id", "created_at",
}

// ExportBidsToXLSX writes one row per bid to a single-sheet workbook.
func ExportBidsToXLSX(bids []internal.BidRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, bid := range bids {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, bid.ID)
		set(2, bid.ProjectID)
		set(3, bid.ProjectName)
		set(4, bid.ContractorAddress)
		set(5, bid.ContractorID)
		set(6, derefFloat(bid.Value))
		set(7, formatDate(bid))
		set(8, string(bid.Status))
		set(9, bid.EmailID)
		set(10, bid.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func formatDate(bid internal.BidRecord) string {
	if bid.DueDate == nil {
		return ""
	}
	return bid.DueDate.Format("2006-01-02")
}
