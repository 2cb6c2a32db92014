package response

import (
	"mime"
	"strings"
)

// ParseContentType splits a Content-Type header into the lower-cased media
// type without parameters and the charset. XML media types without a charset
// parameter default to UTF-8; others leave the charset empty.
func ParseContentType(value string) (mediaType, charset string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}

	mediaType = value
	if i := strings.IndexByte(value, ';'); i >= 0 {
		mediaType = value[:i]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if _, params, err := mime.ParseMediaType(value); err == nil {
		charset = params["charset"]
	}
	if charset == "" && strings.Contains(mediaType, "xml") {
		charset = "UTF-8"
	}
	return mediaType, charset
}

// IsXML reports whether mediaType is text/xml, application/xml or a +xml
// type.
func IsXML(mediaType string) bool {
	switch mediaType {
	case "text/xml", "application/xml":
		return true
	}
	return strings.HasSuffix(mediaType, "+xml")
}

// UnwrapETag strips the weak marker and quotes from an ETag header value.
func UnwrapETag(raw string) string {
	tag := strings.TrimSpace(raw)
	tag = strings.TrimPrefix(tag, "W/")
	if len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"' {
		tag = tag[1 : len(tag)-1]
	}
	return tag
}
