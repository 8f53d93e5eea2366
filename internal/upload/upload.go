package upload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Validate checks that the uploaded payslip is a decodable image or a
// readable PDF and returns the sniffed media type. The declared content type
// from the client is a hint only; the payload bytes decide.
func Validate(data []byte, declaredType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}

	mediaType := http.DetectContentType(data)
	if mediaType == "application/octet-stream" && declaredType != "" {
		mediaType = declaredType
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return mediaType, nil
	case mediaType == "application/pdf":
		if err := validatePDF(data); err != nil {
			return "", err
		}
		return mediaType, nil
	}

	return "", fmt.Errorf("unsupported file type %q: only images and PDF payslips are accepted", mediaType)
}

// validatePDF confirms the PDF opens and has at least one page, so an
// unreadable document fails at upload time rather than inside the model call.
func validatePDF(data []byte) (err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read PDF: %v", r)
		}
	}()

	reader := bytes.NewReader(data)

	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to read PDF: %w", err)
	}

	if pdfReader.NumPage() < 1 {
		return fmt.Errorf("PDF has no pages")
	}

	return nil
}

// DataURI renders the payload as a self-describing data URI for the
// presentation layer's image preview.
func DataURI(data []byte, mediaType string) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}
