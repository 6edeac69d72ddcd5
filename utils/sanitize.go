package utils

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// SanitizeHeaderFilename reduces an object leaf name to something safe inside
// a quoted header parameter.
func SanitizeHeaderFilename(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r), r == '"', r == '\\':
			return -1
		case r == '/':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		return "download"
	}
	return clean
}

// AttachmentDisposition builds a Content-Disposition value carrying an ASCII
// fallback name plus the UTF-8 name for clients that understand filename*.
func AttachmentDisposition(name string) string {
	clean := SanitizeHeaderFilename(name)
	fallback := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '_'
		}
		return r
	}, clean)
	if fallback == clean {
		return fmt.Sprintf("attachment; filename=\"%s\"", clean)
	}
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", fallback, url.PathEscape(clean))
}
