package types

import (
	"mime"
	"slices"
	"strings"
)

// MimeType is one of the content types the engine recognises.
type MimeType string

const (
	MimeJSON     MimeType = "application/json"
	MimePNGImage MimeType = "image/png"
	MimeHTML     MimeType = "text/html"
)

var knownMimeTypes = []MimeType{MimeJSON, MimePNGImage, MimeHTML}

// ParseMimeType maps a Content-Type header value onto a recognised MimeType.
// Parameters such as charset are ignored. The second return value is false
// for empty, malformed, or unrecognised values.
func ParseMimeType(header string) (MimeType, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}

	candidate := MimeType(strings.ToLower(mediaType))
	if !slices.Contains(knownMimeTypes, candidate) {
		return "", false
	}
	return candidate, true
}

func (m MimeType) String() string {
	return string(m)
}
