package reporter

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"gratuity-map-service/internal/models"
)

// Built-in number formats: 4 is "#,##0.00", 10 is "0.00%".
const (
	moneyNumFmt   = 4
	percentNumFmt = 10
)

var hundred = decimal.NewFromInt(100)

// generateXLSXReport writes a one-sheet workbook: the title line, the
// column titles, the grand total and then the group rows. Counts and money
// are numeric cells; percentages are fractions formatted as 0.00%.
func (rg *ReportGenerator) generateXLSXReport(report *models.Report, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := rg.config.SheetName
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet %q: %w", sheet, err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: moneyNumFmt})
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: percentNumFmt})
	if err != nil {
		return fmt.Errorf("failed to create percent style: %w", err)
	}

	title := fmt.Sprintf("Relatório de gratificações por %s (%d registros)", report.GroupBy, report.Records)
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}

	titles := rg.columnTitles(report.GroupBy)
	header := make([]interface{}, len(titles))
	for i, t := range titles {
		header[i] = t
	}
	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		return fmt.Errorf("failed to write column titles: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(titles), 3)
	if err := f.SetCellStyle(sheet, "A3", last, bold); err != nil {
		return err
	}

	rows := append([]models.ReportRow{report.GrandTotal}, report.Rows...)
	for i, row := range rows {
		line := 4 + i
		col := 1
		if err := setCell(f, sheet, col, line, row.Label, 0); err != nil {
			return err
		}
		for _, b := range bucketTitles {
			bucket := row.Bucket(b.status)
			if err := setCell(f, sheet, col+1, line, bucket.Count, 0); err != nil {
				return err
			}
			if err := setCell(f, sheet, col+2, line, bucket.Value.InexactFloat64(), money); err != nil {
				return err
			}
			col += 2
			if b.status != models.StatusActive {
				pct := row.Percent(b.status).Div(hundred).InexactFloat64()
				if err := setCell(f, sheet, col+1, line, pct, percent); err != nil {
					return err
				}
				col++
			}
		}
	}

	if err := f.SetCellStyle(sheet, "A4", "A4", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "A", float64(rg.config.LabelWidth)); err != nil {
		return err
	}

	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value interface{}, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to write cell %s: %w", cell, err)
	}
	if style != 0 {
		return f.SetCellStyle(sheet, cell, cell, style)
	}
	return nil
}
