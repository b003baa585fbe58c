package respond

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusOK, payload)
}

// Attachment sends body as a download named fileName. Non-ASCII names get an
// ASCII fallback plus an RFC 5987 filename* parameter. Exports are private to
// their owner and are never cached.
func Attachment(c *gin.Context, fileName, contentType string, body []byte) {
	disposition := `attachment; filename="` + asciiFileName(fileName) + `"`
	if asciiFileName(fileName) != fileName {
		disposition += "; filename*=UTF-8''" + url.PathEscape(fileName)
	}
	c.Header("Content-Disposition", disposition)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, body)
}

func asciiFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, name)
}
