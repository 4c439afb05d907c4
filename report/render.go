/*
Package report renders request reports and delivers them periodically.

FORMATS:
  csv:  semicolon separated, header Name;Start;End;Days;Status;Created
  xlsx: one "Requests" sheet with the same columns plus a summary block

DELIVERY:
  Scheduler builds a report on every tick and hands each rendered file to a
  Sink. DirSink writes backup_YYYYMMDD.<ext> into a directory.
*/
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/vacation-planner/leave"
)

// Format is an output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" and "xlsx". Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName returns backup_YYYYMMDD.<ext> for t.
func (f Format) FileName(t time.Time) string {
	return fmt.Sprintf("backup_%s.%s", t.Format("20060102"), f)
}

var header = []string{"Name", "Start", "End", "Days", "Status", "Created"}

func row(r leave.Request) []string {
	created := r.CreatedAt
	if created == "" {
		created = "-"
	}
	return []string{
		r.OwnerName,
		r.Start.String(),
		r.End.String(),
		fmt.Sprint(r.ChargeableDays),
		string(r.Status),
		created,
	}
}

// Render writes rep in format f.
func Render(w io.Writer, f Format, rep *leave.Report) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, rep)
	case FormatXLSX:
		return WriteXLSX(w, rep)
	}
	return fmt.Errorf("unsupported report format %q", f)
}

// RenderBytes is Render into a byte slice.
func RenderBytes(f Format, rep *leave.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, f, rep); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes the semicolon-separated export.
func WriteCSV(w io.Writer, rep *leave.Report) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rep.Rows {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Requests"

// WriteXLSX writes the spreadsheet export.
func WriteXLSX(w io.Writer, rep *leave.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	widths := map[string]float64{"A": 24, "B": 12, "C": 12, "D": 8, "E": 12, "F": 14}
	for col, width := range widths {
		f.SetColWidth(sheetName, col, col, width)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, r := range rep.Rows {
		line := i + 2
		values := row(r)
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, line)
			if j == 3 {
				f.SetCellValue(sheetName, cell, r.ChargeableDays)
				continue
			}
			f.SetCellValue(sheetName, cell, v)
		}
	}

	summary := len(rep.Rows) + 3
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summary), "Pending")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", summary), rep.Pending)
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summary+1), "Approved share (%)")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", summary+1), rep.ApprovedShare.String())
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summary+2), "Generated")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", summary+2), rep.GeneratedAt.Format("2006-01-02 15:04"))
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summary+3), rep.Summary())

	return f.Write(w)
}
