// Package export renders batch run summaries and per-farm analyses into
// CSV, Excel and PDF artifacts.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"nuwa-digital-twin/farm-analysis-backend/internal/batch"
)

// summaryColumns is the fixed column set of the run summary CSV.
var summaryColumns = []string{
	"filename",
	"name",
	"farmId",
	"areaHa",
	"ndvi",
	"eudrCompliant",
	"deforestationPercent",
	"carbonTCO2e",
	"success",
	"error",
}

// WriteSummaryCSV renders the run summary as CSV, one row per farm.
// Missing figures stay as empty cells rather than zeros.
func WriteSummaryCSV(w io.Writer, summary *batch.RunSummary) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(summaryColumns); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}

	for _, result := range summary.Results {
		row := []string{
			result.Filename,
			result.Name,
			result.FarmID,
			formatFloat(result.AreaHa, 2),
			formatFloat(result.NDVI, 4),
			formatBool(result.EUDRCompliant),
			formatFloat(result.DeforestationPercent, 2),
			formatFloat(result.CarbonTCO2e, 2),
			yesNo(result.Success),
			result.Error,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write summary row for %s: %w", result.Filename, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush summary csv: %w", err)
	}
	return nil
}

func formatFloat(v *float64, precision int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return yesNo(*v)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
