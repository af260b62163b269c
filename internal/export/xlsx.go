package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/appmato/gestion/internal/fiscal"
)

const (
	// ContentTypeXLSX is the MIME type of generated workbooks.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// ContentTypeCSV is the MIME type of generated CSV files.
	ContentTypeCSV = "text/csv; charset=utf-8"

	defaultSheet = "Sheet1"
	moneyFormat  = "#,##0.00"
)

// WriteVATYearXLSX renders the VAT worksheet of a dossier: one row per month
// with the six workflow steps, amounts and status, followed by the totals.
func WriteVATYearXLSX(w io.Writer, d fiscal.Dossier, year fiscal.VATYear) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := fmt.Sprintf("TVA %d", year.Year)
	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return err
	}
	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	if err := f.SetCellValue(sheet, "A1", d.Name); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "A2", fmt.Sprintf("Régime TVA : %s", year.Mode.Label())); err != nil {
		return err
	}

	header := []any{"Période"}
	for _, s := range fiscal.Steps() {
		header = append(header, s.Label())
	}
	header = append(header, "Montant", "Crédit", "Net", "Statut", "Note")
	if err := writeRow(f, sheet, 4, header); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(sheet, "A4", lastCol+"4", styles.header); err != nil {
		return err
	}

	rowNo := 5
	for _, row := range year.Rows {
		values := []any{row.Period.String()}
		record := row.Record
		for _, s := range fiscal.Steps() {
			values = append(values, stepMark(row.Applicable, record.Step(s)))
		}
		if record != nil {
			values = append(values, record.Amount.InexactFloat64(), record.Credit.InexactFloat64(), record.Net().InexactFloat64(), row.Status.Label(), record.Note)
		} else {
			values = append(values, nil, nil, nil, row.Status.Label(), "")
		}
		if err := writeRow(f, sheet, rowNo, values); err != nil {
			return err
		}
		rowNo++
	}

	totals := year.Totals
	totalRow := []any{"Total"}
	for range fiscal.Steps() {
		totalRow = append(totalRow, nil)
	}
	totalRow = append(totalRow, totals.Amount.InexactFloat64(), totals.Credit.InexactFloat64(), totals.Net.InexactFloat64(),
		fmt.Sprintf("%d/%d validées", totals.Done, totals.Active))
	if err := writeRow(f, sheet, rowNo, totalRow); err != nil {
		return err
	}

	amountCol, _ := excelize.ColumnNumberToName(fiscal.StepCount + 2)
	netCol, _ := excelize.ColumnNumberToName(fiscal.StepCount + 4)
	if err := f.SetCellStyle(sheet, amountCol+"5", fmt.Sprintf("%s%d", netCol, rowNo), styles.money); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteMatrixXLSX renders the dossier by month matrix of one obligation type.
func WriteMatrixXLSX(w io.Writer, m fiscal.Matrix) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := string(m.Type)
	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return err
	}
	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	header := []any{"Code", "Dossier"}
	for _, p := range m.Months {
		header = append(header, p.String())
	}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", styles.header); err != nil {
		return err
	}

	for i, row := range m.Rows {
		values := []any{row.DossierCode, row.DossierName}
		for _, cell := range row.Cells {
			values = append(values, cellText(cell.Obligation))
		}
		if err := writeRow(f, sheet, i+2, values); err != nil {
			return err
		}
		for j, cell := range row.Cells {
			if cell.Obligation == nil {
				continue
			}
			name, _ := excelize.CoordinatesToCellName(j+3, i+2)
			if err := f.SetCellStyle(sheet, name, name, styles.urgency[cell.Obligation.Urgency]); err != nil {
				return err
			}
		}
	}
	if err := f.SetColWidth(sheet, "B", "B", 32); err != nil {
		return err
	}
	return f.Write(w)
}

type styleSet struct {
	header  int
	money   int
	urgency map[fiscal.Urgency]int
}

var urgencyFill = map[fiscal.Urgency]string{
	fiscal.UrgencyLate:    "F8D7DA",
	fiscal.UrgencyUrgent:  "FFF3CD",
	fiscal.UrgencySoon:    "E2E3E5",
	fiscal.UrgencyDone:    "D1E7DD",
	fiscal.UrgencyUnknown: "FFFFFF",
}

func newStyles(f *excelize.File) (styleSet, error) {
	var set styleSet
	var err error
	if set.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return set, err
	}
	format := moneyFormat
	if set.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &format}); err != nil {
		return set, err
	}
	set.urgency = make(map[fiscal.Urgency]int, len(urgencyFill))
	for u, color := range urgencyFill {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}})
		if err != nil {
			return set, err
		}
		set.urgency[u] = id
	}
	return set, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func stepMark(applicable, done bool) string {
	switch {
	case !applicable:
		return "-"
	case done:
		return "✓"
	default:
		return ""
	}
}
