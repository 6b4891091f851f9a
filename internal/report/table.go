package report

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

// DefaultPriority fills the priority column when a record has none.
const DefaultPriority = "Medium"

var Header = []string{
	"ID", "Title", "Description", "Preconditions", "Priority",
	"Step Number", "Step Description", "Expected Result",
}

// Rows flattens records to one row per step. Only the first row of a
// record carries its ID, title, description, preconditions and priority.
// A record without steps still gets one row.
func Rows(records []testcase.Record) [][]string {
	var rows [][]string
	for _, r := range records {
		info := []string{r.ID, r.Title, r.Description, r.Preconditions, r.Priority}
		if info[4] == "" {
			info[4] = DefaultPriority
		}
		if len(r.Steps) == 0 {
			rows = append(rows, append(info, "", "", ""))
			continue
		}
		for i, s := range r.Steps {
			lead := []string{"", "", "", "", ""}
			if i == 0 {
				lead = append([]string(nil), info...)
			}
			rows = append(rows, append(lead, strconv.Itoa(s.StepNumber), s.Description, s.ExpectedResult))
		}
	}
	return rows
}

// XLSXContentType is the media type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SheetName is the worksheet WriteXLSX fills.
const SheetName = "Test Cases"

var columnWidths = []float64{10, 30, 40, 30, 10, 10, 40, 40}

// WriteXLSX writes Header and Rows as a single-sheet workbook with a bold
// header row. Step numbers are stored as numbers.
func WriteXLSX(w io.Writer, records []testcase.Record) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D7E4BC"}},
		Border: []excelize.Border{
			{Type: "left", Style: 1}, {Type: "top", Style: 1},
			{Type: "right", Style: 1}, {Type: "bottom", Style: 1},
		},
	})
	if err != nil {
		return err
	}

	rows := append([][]string{Header}, Rows(records)...)
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		if i > 0 {
			if n, err := strconv.Atoi(row[5]); err == nil {
				cells[5] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return err
		}
	}
	last, err := excelize.ColumnNumberToName(len(Header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last+"1", header); err != nil {
		return err
	}
	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return err
		}
	}
	return f.Write(w)
}
