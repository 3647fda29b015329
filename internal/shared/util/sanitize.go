package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxExtBytes bounds what TruncateFileName treats as an extension worth keeping.
const maxExtBytes = 16

// ErrInvalidFileName is returned when nothing usable remains after sanitization.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName keeps only the final path element of name and drops path separators
// and control characters. Dot-only names are rejected.
func SanitizeFileName(name string) (string, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	s := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, name)
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, ".") == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}

// TruncateFileName shortens name to at most maxBytes, cutting on a rune boundary
// and keeping a short extension such as ".pdf" intact.
func TruncateFileName(name string, maxBytes int) string {
	if maxBytes <= 0 || len(name) <= maxBytes {
		return name
	}
	ext := path.Ext(name)
	if len(ext) > maxExtBytes || len(ext) >= maxBytes || ext == name {
		ext = ""
	}
	base := name[:len(name)-len(ext)]
	cut := maxBytes - len(ext)
	for cut > 0 && !utf8.RuneStart(base[cut]) {
		cut--
	}
	return base[:cut] + ext
}
