package model

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
)

func requireText(field string, value string, maxLen int) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, field, maxLen)
	}
	return nil
}

func oneOf(field string, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%w: %s must be one of %s", ErrInvalidInput, field, strings.Join(allowed, ", "))
	}
	return nil
}

func validURL(field string, value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an http(s) URL", ErrInvalidInput, field)
	}
	return nil
}

func validEmail(field string, value string) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%w: %s must be an email address", ErrInvalidInput, field)
	}
	return nil
}
