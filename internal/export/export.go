// Package export writes the message-type drill-down table to spreadsheet
// files.
//
// The table has one "Message" column followed by one column per detail
// field, titled from the field name ("emi_amount" → "Emi Amount"). Missing
// values are written as N/A.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"msgdash/internal/domain"
	"msgdash/internal/filter"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// SheetName is the worksheet holding the table.
	SheetName = "Messages"

	// Missing is written for absent or null values.
	Missing = "N/A"

	// bufferSize for buffered CSV output (64KB)
	bufferSize = 64 * 1024
)

// ErrNoMessages is returned when there is nothing to export.
var ErrNoMessages = errors.New("no messages to download")

// Table is the drill-down table in display form.
type Table struct {
	Fields  []string
	Headers []string
	Rows    [][]string
}

// BuildTable lays out msgs with the columns from filter.TableHeaders.
func BuildTable(msgs []domain.TypedMessage) (Table, error) {
	if len(msgs) == 0 {
		return Table{}, ErrNoMessages
	}

	fields := filter.TableHeaders(msgs)
	t := Table{
		Fields:  fields,
		Headers: make([]string, 0, len(fields)+1),
		Rows:    make([][]string, 0, len(msgs)),
	}
	t.Headers = append(t.Headers, "Message")
	for _, f := range fields {
		t.Headers = append(t.Headers, ColumnTitle(f))
	}

	for _, m := range msgs {
		row := make([]string, 0, len(t.Headers))
		msg := m.Message
		if msg == "" {
			msg = Missing
		}
		row = append(row, msg)
		for _, f := range fields {
			row = append(row, Cell(m, f))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// ColumnTitle turns a snake_case field name into a column title. Letters
// after the first of each word keep their case, so "emi_amount_INR" becomes
// "Emi Amount INR".
func ColumnTitle(field string) string {
	return titleCaser.String(strings.ReplaceAll(field, "_", " "))
}

// Cell renders one detail value of m as text.
func Cell(m domain.TypedMessage, field string) string {
	v, ok := m.Field(field)
	if !ok {
		return Missing
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// FileName is the download name for a message type, e.g.
// "EMI_PAYMENT_messages.xlsx".
func FileName(messageType, ext string) string {
	return messageType + "_messages." + strings.TrimPrefix(ext, ".")
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range t.Rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if len(t.Headers) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
			return fmt.Errorf("apply header style: %w", err)
		}
		if err := f.SetColWidth(SheetName, "A", "A", 60); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteCSV writes t as CSV with a header row.
func WriteCSV(w io.Writer, t Table) error {
	buf := bufio.NewWriterSize(w, bufferSize)
	cw := csv.NewWriter(buf)

	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return buf.Flush()
}
