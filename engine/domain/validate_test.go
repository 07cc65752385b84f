package domain

import (
	"errors"
	"testing"
)

func TestValidatePrompt_Valid(t *testing.T) {
	if err := ValidatePrompt("What is the total on invoice 123?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePrompt_Empty(t *testing.T) {
	for _, p := range []string{"", "   ", "\n\t"} {
		err := ValidatePrompt(p)
		if err == nil {
			t.Fatalf("expected error for %q", p)
		}
		if !errors.Is(err, ErrInvalidPrompt) {
			t.Errorf("expected ErrInvalidPrompt, got %v", err)
		}
	}
}

func TestValidateFilename_Valid(t *testing.T) {
	for _, name := range []string{"report.pdf", "Invoice 90389740.pdf", "photo.png", "notes.txt"} {
		if err := ValidateFilename(name); err != nil {
			t.Errorf("unexpected error for %q: %v", name, err)
		}
	}
}

func TestValidateFilename_Invalid(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"../etc/passwd",
		"dir/file.pdf",
		`dir\file.pdf`,
		"a..b.pdf",
	}
	for _, name := range cases {
		err := ValidateFilename(name)
		if err == nil {
			t.Errorf("expected error for %q", name)
			continue
		}
		if !errors.Is(err, ErrInvalidFilename) {
			t.Errorf("expected ErrInvalidFilename for %q, got %v", name, err)
		}
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	err := NewValidationError("filename", "x/y", ErrInvalidFilename)
	if !errors.Is(err, ErrInvalidFilename) {
		t.Fatal("expected wrapped sentinel to survive errors.Is")
	}
	if err.Error() == "" {
		t.Fatal("expected message")
	}
}
