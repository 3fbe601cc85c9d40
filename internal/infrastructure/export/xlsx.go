package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// Sheet names
const (
	SheetCases = "Cases"
	SheetItems = "Items"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	caseHeader = []interface{}{
		"Case ID", "Status", "Applicant", "Department", "Sender", "Subject",
		"Claimed Date", "Total", "Currency", "Materials OK", "Reimbursed",
		"Issues", "Last Action", "Updated At",
	}
	itemHeader = []interface{}{
		"Case ID", "Tool", "Amount", "Currency", "Date", "Notes",
	}
)

// XLSXExporter writes cases to an Excel workbook with one sheet of cases and
// one sheet of claimed tools
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new XLSXExporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// ContentType returns the workbook MIME type
func (e *XLSXExporter) ContentType() string {
	return xlsxContentType
}

// Export renders the workbook into w
func (e *XLSXExporter) Export(w io.Writer, cases []*entity.ReimbursementCase) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetCases); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetItems); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := e.writeRow(f, SheetCases, 1, caseHeader); err != nil {
		return err
	}
	if err := e.writeRow(f, SheetItems, 1, itemHeader); err != nil {
		return err
	}
	for _, sheet := range []string{SheetCases, SheetItems} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	itemRow := 2
	for i, c := range cases {
		if err := e.writeRow(f, SheetCases, i+2, caseRow(c)); err != nil {
			return err
		}
		for _, item := range c.Tools {
			if err := e.writeRow(f, SheetItems, itemRow, []interface{}{
				c.ID, item.ToolName, amountCell(item.Amount), item.Currency, dateCell(item.Date), item.Notes,
			}); err != nil {
				return err
			}
			itemRow++
		}
	}

	e.setWidths(f)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Cases exported",
		zap.Int("cases", len(cases)),
		zap.Int("items", itemRow-2))
	return nil
}

func (e *XLSXExporter) writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (e *XLSXExporter) setWidths(f *excelize.File) {
	widths := []struct {
		sheet, from, to string
		width           float64
	}{
		{SheetCases, "A", "A", 24},
		{SheetCases, "F", "F", 40},
		{SheetCases, "L", "M", 60},
		{SheetItems, "A", "B", 24},
		{SheetItems, "F", "F", 40},
	}
	for _, w := range widths {
		if err := f.SetColWidth(w.sheet, w.from, w.to, w.width); err != nil {
			e.logger.Warn("Failed to set column width",
				zap.String("sheet", w.sheet),
				zap.Error(err))
		}
	}
}

func caseRow(c *entity.ReimbursementCase) []interface{} {
	return []interface{}{
		c.ID,
		string(c.Status),
		c.ApplicantName,
		c.Department,
		c.Sender,
		c.Subject,
		dateCell(c.ClaimedDate),
		amountCell(c.TotalAmount),
		c.Currency,
		yesNo(c.MaterialsOK),
		yesNo(c.ReimbursedDone),
		strings.Join(c.Issues, "\n"),
		c.LastAction,
		c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// amountCell keeps amounts numeric so the sheet can sum them
func amountCell(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	return d.Round(2).InexactFloat64()
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var _ port.CaseExporter = (*XLSXExporter)(nil)
