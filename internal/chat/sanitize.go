package chat

import (
	"strings"
	"unicode/utf8"
)

// sanitizer normalises user supplied text. Content is plain text and is
// stored exactly as sent apart from surrounding whitespace; escaping belongs
// to whoever renders it.
type sanitizer struct{}

func newSanitizer() *sanitizer {
	return &sanitizer{}
}

func (s *sanitizer) clean(raw string) string {
	return strings.TrimSpace(raw)
}

// text cleans raw and enforces required/max rune length for field.
func (s *sanitizer) text(field, raw string, required bool, max int) (string, error) {
	cleaned := s.clean(raw)
	if required && cleaned == "" {
		return "", Errorf(CodeValidation, "%s is required", field)
	}
	if max > 0 && utf8.RuneCountInString(cleaned) > max {
		return "", Errorf(CodeValidation, "%s exceeds %d characters", field, max)
	}
	return cleaned, nil
}
