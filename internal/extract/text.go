package extract

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned for text/plain content that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("text is not valid utf-8")

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// PlainText checks the content is valid UTF-8 and folds CRLF and lone CR
// line endings into LF. Nothing else is changed.
type PlainText struct{}

// Extract implements Extractor.
func (PlainText) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return newlines.Replace(string(data)), nil
}
