package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// BuildPDF renders the daily sales table for one farmer.
func BuildPDF(farmerName string, date time.Time, lines []SaleLine, total float64) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(190, 10, fmt.Sprintf("Daily Sales Report for %s", farmerName), "", 1, "C", false, 0, "")
	pdf.CellFormat(190, 10, fmt.Sprintf("Date: %s", date.UTC().Format("2006-01-02")), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(100, 10, "Product", "1", 0, "", false, 0, "")
	pdf.CellFormat(30, 10, "Qty", "1", 0, "", false, 0, "")
	pdf.CellFormat(30, 10, "Price", "1", 0, "", false, 0, "")
	pdf.CellFormat(30, 10, "Total", "1", 1, "", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, line := range lines {
		pdf.CellFormat(100, 10, line.ProductName, "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 10, fmt.Sprintf("%d", line.Quantity), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 10, fmt.Sprintf("%.2f", line.UnitPrice), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 10, fmt.Sprintf("%.2f", line.Total), "1", 1, "", false, 0, "")
	}

	pdf.Ln(5)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(160, 10, "Total Amount Due (Within 24h):", "", 0, "", false, 0, "")
	pdf.CellFormat(30, 10, fmt.Sprintf("INR %.2f", total), "", 1, "", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}
