package protocol

import (
	"strings"
	"testing"
)

// TestValidateName covers trimming, the empty rejection, and the byte-length
// cap (multi-byte runes count in bytes, not runes).
func TestValidateName(t *testing.T) {
	got, err := ValidateName("  alice  ", MaxNameLength)
	if err != nil || got != "alice" {
		t.Errorf("ValidateName trim: got %q, %v", got, err)
	}

	if _, err := ValidateName("   ", MaxNameLength); err == nil {
		t.Error("whitespace-only name accepted")
	}
	if _, err := ValidateName(strings.Repeat("x", MaxNameLength), MaxNameLength); err != nil {
		t.Errorf("name at the limit rejected: %v", err)
	}
	if _, err := ValidateName(strings.Repeat("x", MaxNameLength+1), MaxNameLength); err == nil {
		t.Error("oversized name accepted")
	}
	// "é" is 2 bytes in UTF-8; 26 of them exceed a 50-byte cap.
	if _, err := ValidateName(strings.Repeat("é", 26), MaxNameLength); err == nil {
		t.Error("byte length not enforced for multi-byte runes")
	}
}

func TestValidateBody(t *testing.T) {
	got, err := ValidateBody("  hello  ")
	if err != nil || got != "hello" {
		t.Errorf("ValidateBody trim: got %q, %v", got, err)
	}
	if _, err := ValidateBody(""); err == nil {
		t.Error("empty body accepted")
	}
	if _, err := ValidateBody(strings.Repeat("a", MaxChatLength+1)); err == nil {
		t.Error("oversized body accepted")
	}
}
