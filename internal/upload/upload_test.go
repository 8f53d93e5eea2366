package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImage(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	mediaType, err := Validate(pngHeader, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)

	jpegHeader := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}
	mediaType, err = Validate(jpegHeader, "")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mediaType)
}

func TestValidateRejectsEmptyFile(t *testing.T) {
	_, err := Validate(nil, "image/png")
	require.Error(t, err)
}

func TestValidateRejectsNonDocument(t *testing.T) {
	_, err := Validate([]byte("hello, this is just text"), "")
	require.Error(t, err)

	_, err = Validate([]byte{0x00, 0x01, 0x02, 0x03}, "application/zip")
	require.Error(t, err)
}

func TestValidateRejectsTruncatedPDF(t *testing.T) {
	// Has the PDF magic so it sniffs as application/pdf, but cannot be opened.
	_, err := Validate([]byte("%PDF-1.7 not actually a pdf"), "")
	require.Error(t, err)
}

func TestDataURI(t *testing.T) {
	uri := DataURI([]byte{0x01, 0x02}, "image/png")
	assert.Equal(t, "data:image/png;base64,AQI=", uri)
}
