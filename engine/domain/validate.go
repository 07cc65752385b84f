package domain

import (
	"strings"
	"unicode/utf8"
)

const maxFilenameLen = 512

// ValidatePrompt checks a chat query before the retrieval pipeline runs.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return NewValidationError("prompt", prompt, ErrInvalidPrompt)
	}
	if !utf8.ValidString(prompt) {
		return NewValidationError("prompt", prompt, ErrInvalidPrompt)
	}
	return nil
}

// ValidateFilename checks an uploaded filename before it is used as the
// source key for blob storage and chunk metadata. Path separators are
// rejected so a filename can never escape the bucket namespace.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("filename", name, ErrInvalidFilename)
	}
	if len(name) > maxFilenameLen {
		return NewValidationError("filename", name, ErrInvalidFilename)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return NewValidationError("filename", name, ErrInvalidFilename)
	}
	if !utf8.ValidString(name) {
		return NewValidationError("filename", name, ErrInvalidFilename)
	}
	return nil
}
