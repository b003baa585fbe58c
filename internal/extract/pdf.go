package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads pages 1..N in order. Items on a page are joined with
// single spaces and pages with newlines.
func extractPDF(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", errors.New("empty pdf data")
	}
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("pdf parse panic: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		items, err := pageItems(page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.Join(items, " "))
	}
	return strings.Join(pages, "\n"), nil
}

func pageItems(page pdf.Page) ([]string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}
	items := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for _, t := range row.Content {
			b.WriteString(t.S)
		}
		if item := strings.TrimSpace(b.String()); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}
