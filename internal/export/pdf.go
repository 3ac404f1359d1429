package export

import (
	"fmt"
	"io"
	"time"

	"nuwa-digital-twin/farm-analysis-backend/internal/analysis"
	"nuwa-digital-twin/farm-analysis-backend/internal/carbon"
	"nuwa-digital-twin/farm-analysis-backend/internal/deforestation"

	"github.com/jung-kurt/gofpdf"
)

// WriteComplianceCertificate renders a one-page PDF certificate for a
// farm analysis. It requires a completed deforestation branch; the
// carbon branch is included when present.
func WriteComplianceCertificate(w io.Writer, doc *analysis.Document) error {
	forest, ok := doc.Analysis[string(analysis.BranchDeforestation)].(*deforestation.Result)
	if !ok {
		return fmt.Errorf("analysis for farm %s has no deforestation result", doc.FarmInfo.FarmID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(46, 125, 50)
	pdf.CellFormat(0, 12, "EUDR Compliance Assessment", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, forest.Methodology, "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetTextColor(0, 0, 0)
	writeField(pdf, "Farm", doc.FarmInfo.Name)
	writeField(pdf, "Farm ID", doc.FarmInfo.FarmID)
	writeField(pdf, "Owner", doc.FarmInfo.Owner)
	writeField(pdf, "Analyzed period", fmt.Sprintf("%s to %s",
		forest.AnalyzedPeriod.StartDate, forest.AnalyzedPeriod.EndDate))
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Forest Change", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	writeField(pdf, "Initial forest area", fmt.Sprintf("%.2f ha", forest.InitialForestHa))
	writeField(pdf, "Area lost", fmt.Sprintf("%.2f ha", forest.AreaLostHa))
	writeField(pdf, "Deforestation", fmt.Sprintf("%.2f %%", forest.DeforestationPercent))
	if forest.Degraded {
		writeField(pdf, "Data quality", forest.Warning)
	}
	pdf.Ln(6)

	if est, ok := doc.Analysis[string(analysis.BranchCarbon)].(*carbon.Result); ok {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Carbon Baseline", "B", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		writeField(pdf, "Area", fmt.Sprintf("%.4f ha", est.AreaHa))
		writeField(pdf, "Baseline carbon", fmt.Sprintf("%.2f tCO2e", est.BaselineCarbonTCO2e))
		writeField(pdf, "Methodology", fmt.Sprintf("%s (%s confidence)", est.Methodology, est.Confidence))
		writeField(pdf, "Standard", est.VerraMethodology)
		pdf.Ln(6)
	}

	pdf.SetFont("Helvetica", "B", 14)
	if forest.Compliant {
		pdf.SetTextColor(46, 125, 50)
		pdf.CellFormat(0, 12, "RESULT: COMPLIANT", "1", 1, "C", false, 0, "")
	} else {
		pdf.SetTextColor(198, 40, 40)
		pdf.CellFormat(0, 12, "RESULT: NON-COMPLIANT", "1", 1, "C", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", doc.GeneratedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render certificate: %w", err)
	}
	return nil
}

func writeField(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(50, 7, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
}
