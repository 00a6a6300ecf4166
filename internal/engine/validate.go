package engine

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	applicantNameMax = 200
	summaryMax       = 5000
	subcategoryMax   = 200
	phoneMax         = 50
	refNameMax       = 200
)

// validateEmail accepts a bare address only, no display name.
func validateEmail(field, raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || parsed.Name != "" {
		return "", invalidInput("malformed email %q", raw).with("field", field)
	}
	return addr, nil
}

func requireText(field, value string, maxLen int) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", invalidInput("%s is required", field).with("field", field)
	}
	if utf8.RuneCountInString(v) > maxLen {
		return "", invalidInput("%s must be at most %d characters", field, maxLen).with("field", field)
	}
	return v, nil
}

// optionalText trims v and maps blank to nil.
func optionalText(field string, v *string, maxLen int) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(s) > maxLen {
		return nil, invalidInput("%s must be at most %d characters", field, maxLen).with("field", field)
	}
	return &s, nil
}

func optionalEmail(field string, v *string) (*string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	addr, err := validateEmail(field, *v)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func validateCommentText(text string, minLen, maxLen int, field string) (string, error) {
	v := strings.TrimSpace(text)
	n := utf8.RuneCountInString(v)
	if n < minLen {
		return "", invalidInput("%s must be at least %d characters", field, minLen).with("field", field)
	}
	if n > maxLen {
		return "", invalidInput("%s must be at most %d characters", field, maxLen).with("field", field)
	}
	return v, nil
}
