package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/landbridge/contracts-service/internal/model"
	"github.com/landbridge/contracts-service/internal/service"
)

type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

var _ service.AppendixRenderer = (*Generator)(nil)

// Render produces the appendix document for one approved change request.
func (g *Generator) Render(doc service.AppendixDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Appendix %s to Contract %s", doc.Appendix.Code, doc.Contract.Code), "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Change Request %s: %s", doc.ChangeRequest.Code, safeValue(doc.ChangeRequest.Title)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Contract period: %s to %s", formatDate(doc.Contract.EffectiveStart), formatDate(doc.Contract.EffectiveEnd)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Summary of Change", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.MultiCell(0, 5, safeValue(doc.ChangeRequest.Summary), "", "L", false)
	if strings.TrimSpace(doc.ChangeRequest.Reason) != "" {
		pdf.MultiCell(0, 5, fmt.Sprintf("Reason: %s", doc.ChangeRequest.Reason), "", "L", false)
	}
	pdf.Ln(2)

	if len(doc.Events) > 0 {
		pdf.SetFont(g.fontName, "B", 12)
		pdf.CellFormat(0, 8, "Resource Changes", "", 1, "L", false, 0, "")

		headers := []string{"Action", "Role", "Level", "Billing", "Amount", "Effective"}
		colWidths := []float64{22, 50, 28, 22, 30, 28}
		drawTableRow(pdf, g.fontName, headers, colWidths, true)
		for _, event := range doc.Events {
			row := []string{
				string(event.Action),
				safeValue(event.Role),
				safeValue(event.Level),
				string(event.BillingType),
				eventAmount(event),
				formatDate(event.EffectiveFrom),
			}
			drawTableRow(pdf, g.fontName, row, colWidths, false)
		}
		pdf.Ln(2)
	}

	adjustments := crBilling(doc.ChangeRequest.ID, doc.Billing)
	if len(adjustments) > 0 {
		pdf.SetFont(g.fontName, "B", 12)
		pdf.CellFormat(0, 8, "Billing Adjustments", "", 1, "L", false, 0, "")

		headers := []string{"Description", "Payment Date", "Amount"}
		colWidths := []float64{100, 40, 40}
		drawTableRow(pdf, g.fontName, headers, colWidths, true)
		var total float64
		for _, row := range adjustments {
			drawTableRow(pdf, g.fontName, []string{
				safeValue(row.BillingName),
				formatDate(row.PaymentDate),
				formatAmount(row.Amount, 2),
			}, colWidths, false)
			total += row.Amount
		}
		pdf.SetFont(g.fontName, "", 11)
		pdf.CellFormat(0, 6, fmt.Sprintf("Net adjustment: %s %s", formatAmount(total, 2), doc.Contract.Currency), "", 1, "R", false, 0, "")
		pdf.Ln(2)
	}

	pdf.Ln(4)
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Signatures", "", 1, "L", false, 0, "")
	signatureBlock(pdf, g.fontName, "Provider")
	signatureBlock(pdf, g.fontName, "Client")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func crBilling(crID uint, rows []model.BillingDetail) []model.BillingDetail {
	var out []model.BillingDetail
	for _, row := range rows {
		if row.SourceCRID != nil && *row.SourceCRID == crID {
			out = append(out, row)
		}
	}
	return out
}

func eventAmount(event model.ResourceEvent) string {
	if event.BillingType == model.BillingTypeHourly {
		if event.RateNew != nil {
			return formatAmount(*event.RateNew, 2) + "/h"
		}
		if event.RateOld != nil {
			return formatAmount(*event.RateOld, 2) + "/h"
		}
	} else {
		if event.RatingNew != nil {
			return formatAmount(*event.RatingNew, 2)
		}
		if event.RatingOld != nil {
			return formatAmount(*event.RatingOld, 2)
		}
	}
	return "-"
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i >= len(cols)-2 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func signatureBlock(pdf *gofpdf.Fpdf, fontName, label string) {
	pdf.SetFont(fontName, "", 11)
	pdf.CellFormat(0, 10, fmt.Sprintf("%s: ______________________ Date: ____________", label), "", 1, "L", false, 0, "")
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatAmount(value float64, precision int) string {
	format := fmt.Sprintf("%%.%df", precision)
	return fmt.Sprintf(format, value)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
