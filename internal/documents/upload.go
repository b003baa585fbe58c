package documents

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/extract"
)

// multipartOverhead is allowed on top of the file ceiling for form boundaries and headers.
const multipartOverhead = 1 << 20

// Upload is a file read from a multipart request.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// ReadUpload reads the "file" form field into memory, enforcing maxBytes.
// Oversized files yield a FILE_READ error.
func ReadUpload(c *gin.Context, maxBytes int64) (Upload, error) {
	if maxBytes <= 0 {
		maxBytes = extract.DefaultMaxBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Upload{}, oversize(tooLarge.Limit, maxBytes)
		}
		return Upload{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if fileHeader.Size > maxBytes {
		return Upload{}, oversize(fileHeader.Size, maxBytes)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return Upload{}, apperr.Wrap(apperr.KindFileRead, "Failed to read uploaded file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return Upload{}, apperr.Wrap(apperr.KindFileRead, "Failed to read uploaded file", err)
	}
	if int64(len(data)) > maxBytes {
		return Upload{}, oversize(int64(len(data)), maxBytes)
	}

	return Upload{
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func oversize(size, limit int64) error {
	return apperr.New(apperr.KindFileRead, apperr.MsgFileTooLarge,
		fmt.Sprintf("File size: %d bytes. Maximum allowed: %d bytes", size, limit))
}
