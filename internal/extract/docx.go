package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var errEmptyDOCX = errors.New("no text found in document body")

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	text, err := docxBodyText(doc.Editable().GetContent())
	if err != nil {
		return "", fmt.Errorf("read document.xml: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyDOCX
	}
	return text, nil
}

// docxBodyText walks WordprocessingML tokens, emitting run text and turning
// paragraph ends, breaks and tabs into whitespace.
func docxBodyText(raw string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				buf.WriteString("\t")
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p", "br":
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
