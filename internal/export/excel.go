package export

import (
	"fmt"
	"io"

	"nuwa-digital-twin/farm-analysis-backend/internal/batch"

	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

// WriteSummaryExcel renders the run summary as an Excel workbook with a
// styled header row and a totals row.
func WriteSummaryExcel(w io.Writer, summary *batch.RunSummary) error {
	file := excelize.NewFile()
	defer file.Close()

	file.SetSheetName("Sheet1", summarySheet)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2E7D32"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, column := range summaryColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(summarySheet, cell, column); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(summaryColumns), 1)
	if err := file.SetCellStyle(summarySheet, "A1", endHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for rowIdx, result := range summary.Results {
		row := rowIdx + 2
		values := []interface{}{
			result.Filename,
			result.Name,
			result.FarmID,
			cellValue(result.AreaHa),
			cellValue(result.NDVI),
			boolCell(result.EUDRCompliant),
			cellValue(result.DeforestationPercent),
			cellValue(result.CarbonTCO2e),
			yesNo(result.Success),
			result.Error,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := file.SetCellValue(summarySheet, cell, value); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	totalsRow := len(summary.Results) + 2
	totals := map[int]interface{}{
		1: "TOTAL",
		4: summary.TotalArea,
		6: fmt.Sprintf("%d/%d compliant", summary.EUDRCompliant, summary.SuccessfulAnalyses),
		8: summary.TotalCarbon,
	}
	for col, value := range totals {
		cell, _ := excelize.CoordinatesToCellName(col, totalsRow)
		if err := file.SetCellValue(summarySheet, cell, value); err != nil {
			return fmt.Errorf("failed to write totals row: %w", err)
		}
	}

	if err := file.SetColWidth(summarySheet, "A", "C", 22); err != nil {
		return fmt.Errorf("failed to set column widths: %w", err)
	}
	if err := file.SetColWidth(summarySheet, "D", "J", 16); err != nil {
		return fmt.Errorf("failed to set column widths: %w", err)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func cellValue(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func boolCell(v *bool) interface{} {
	if v == nil {
		return ""
	}
	return yesNo(*v)
}
