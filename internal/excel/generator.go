package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/landbridge/contracts-service/internal/model"
	"github.com/landbridge/contracts-service/internal/service"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

var _ service.LedgerExporter = (*Generator)(nil)

// Generate writes the contract's billing ledger as a two-sheet workbook:
// a contract summary and the row-level ledger.
func (g *Generator) Generate(contract *model.Contract, rows []model.BillingDetail) ([]byte, error) {
	file := excelize.NewFile()

	summarySheet := "Summary"
	file.SetSheetName("Sheet1", summarySheet)
	if err := g.writeSummary(file, summarySheet, contract, rows); err != nil {
		return nil, err
	}

	ledgerSheet := "Ledger"
	file.NewSheet(ledgerSheet)
	if err := g.writeLedger(file, ledgerSheet, rows); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, contract *model.Contract, rows []model.BillingDetail) error {
	var total, paid, outstanding float64
	for _, row := range rows {
		total += row.Amount
		if row.IsPaid {
			paid += row.Amount
		} else {
			outstanding += row.Amount
		}
	}

	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Contract")
	set("B1", contract.Code)
	set("A2", "Name")
	set("B2", contract.Name)
	set("A3", "Engagement")
	set("B3", string(contract.EngagementType))
	set("A4", "Period start")
	set("B4", formatDate(contract.EffectiveStart))
	set("A5", "Period end")
	set("B5", formatDate(contract.EffectiveEnd))
	set("A6", "Currency")
	set("B6", contract.Currency)
	set("A7", "Total billed")
	set("B7", formatAmount(total))
	set("A8", "Paid")
	set("B8", formatAmount(paid))
	set("A9", "Outstanding")
	set("B9", formatAmount(outstanding))

	_ = file.SetColWidth(sheet, "A", "A", 24)
	_ = file.SetColWidth(sheet, "B", "B", 32)
	return nil
}

func (g *Generator) writeLedger(file *excelize.File, sheet string, rows []model.BillingDetail) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	headers := []string{
		"Description",
		"Milestone",
		"Percentage",
		"Payment date",
		"Amount",
		"Paid",
		"Note",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, header)
	}

	for i, row := range rows {
		line := i + 2
		set(fmt.Sprintf("A%d", line), row.BillingName)
		set(fmt.Sprintf("B%d", line), row.Milestone)
		set(fmt.Sprintf("C%d", line), formatPercentage(row.Percentage))
		set(fmt.Sprintf("D%d", line), formatDate(row.PaymentDate))
		set(fmt.Sprintf("E%d", line), formatAmount(row.Amount))
		set(fmt.Sprintf("F%d", line), formatPaid(row.IsPaid))
		set(fmt.Sprintf("G%d", line), row.Note)
	}

	_ = file.SetColWidth(sheet, "A", "B", 32)
	_ = file.SetColWidth(sheet, "C", "C", 12)
	_ = file.SetColWidth(sheet, "D", "E", 16)
	_ = file.SetColWidth(sheet, "F", "F", 8)
	_ = file.SetColWidth(sheet, "G", "G", 40)
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func formatPercentage(value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%.1f%%", *value)
}

func formatPaid(paid bool) string {
	if paid {
		return "Yes"
	}
	return "No"
}
