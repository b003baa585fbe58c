package extract

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText reads data as UTF-8. UTF-16 payloads are recognised only by their BOM.
func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return string(data[len(utf8BOM):]), nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data, unicode.LittleEndian)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data, unicode.BigEndian)
	default:
		return string(data), nil
	}
}

func decodeUTF16(data []byte, order unicode.Endianness) (string, error) {
	decoder := unicode.UTF16(order, unicode.UseBOM).NewDecoder()
	decoded, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
