// Package export renders analysis results as downloadable files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"

	defaultBaseName = "contract-analysis"
	sheetName       = "Analysis"
)

// ContentTypes maps each format to its response media type.
var ContentTypes = map[string]string{
	FormatJSON: "application/json",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Row is one label/value line of a spreadsheet export.
type Row struct {
	Label string
	Value string
}

// ParseFormat accepts "json" (the default when empty) and "xlsx".
func ParseFormat(raw string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// FileName returns "<fileName>.<ext>", falling back to "contract-analysis"
// when fileName is blank. The upload's own extension is kept.
func FileName(fileName, format string) string {
	base := strings.TrimSpace(filepath.Base(strings.ReplaceAll(fileName, "\\", "/")))
	if base == "" || base == "." || base == "/" {
		base = defaultBaseName
	}
	base = strings.Map(func(r rune) rune {
		if r == '"' || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	return base + "." + format
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}

// WriteXLSX writes rows into a two-column workbook.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return fmt.Errorf("sheet index: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	write := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cell, v)
	}
	if err := write(1, 1, "Field"); err != nil {
		return err
	}
	if err := write(2, 1, "Value"); err != nil {
		return err
	}
	for i, r := range rows {
		if err := write(1, i+2, r.Label); err != nil {
			return err
		}
		if err := write(2, i+2, r.Value); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetName, "A", "A", 28)
	_ = f.SetColWidth(sheetName, "B", "B", 100)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx export: %w", err)
	}
	return nil
}
