package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameLen bounds the sanitized name in bytes, extension included.
const MaxFileNameLen = 180

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName makes an uploaded contract's name safe to embed in a
// storage key. Separators become underscores and control characters are
// dropped. Names climbing directories are rejected. Overlong names are cut on a
// rune boundary and keep their extension, so format detection by name still
// works.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errInvalidFileName
	}
	return truncateKeepingExt(s, MaxFileNameLen), nil
}

func truncateKeepingExt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	ext := path.Ext(s)
	if len(ext) >= max/2 {
		ext = ""
	}
	limit := max - len(ext)
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + ext
}
