package extract

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	mimePDF    = "application/pdf"
	mimeMSWord = "application/msword"
	mimeDOCX   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText   = "text/plain"
)

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatDOCX
	formatText
)

// resolveFormat dispatches on the declared type first and the file name suffix second.
// Generic container types are resolved by sniffing the payload.
func resolveFormat(mimeType, fileName string, data []byte) format {
	declared := normalizeMimeType(mimeType)
	switch declared {
	case "", "application/octet-stream", "application/zip", "binary/octet-stream":
		declared = sniff(data)
	}

	if f := formatForMime(declared); f != formatUnknown {
		return f
	}
	return formatForExt(fileName)
}

func normalizeMimeType(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}

func formatForMime(mimeType string) format {
	switch mimeType {
	case mimePDF:
		return formatPDF
	case mimeDOCX, mimeMSWord:
		return formatDOCX
	case mimeText:
		return formatText
	default:
		return formatUnknown
	}
}

func formatForExt(fileName string) format {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return formatPDF
	case ".docx", ".doc":
		return formatDOCX
	case ".txt":
		return formatText
	default:
		return formatUnknown
	}
}

func sniff(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	detected := normalizeMimeType(mimetype.Detect(data).String())
	if detected == "application/zip" {
		if isDOCXZip(data) {
			return mimeDOCX
		}
	}
	return detected
}

func isDOCXZip(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}
