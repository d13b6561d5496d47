// Package fingerprint derives content fingerprints for discovered files and
// resolves which earlier record a duplicate belongs to.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const unknownContentType = "unknown"

// Compute returns the fingerprint for a file described by its size, name and
// content type. Files without a size or a name have no fingerprint and are
// never treated as duplicates.
func Compute(size *int64, name, contentType string) (string, bool) {
	if size == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if contentType == "" {
		contentType = unknownContentType
	}

	var b strings.Builder
	b.WriteString(strconv.FormatInt(*size, 10))
	b.WriteByte('|')
	b.WriteString(cases.Lower(language.Und).String(trimmed))
	b.WriteByte('|')
	b.WriteString(contentType)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:]), true
}
