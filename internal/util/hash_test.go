package util

import "testing"

func TestGenerateHash(t *testing.T) {
	h := GenerateHash("some document text", 1700000000000000000)
	if len(h) != 16 {
		t.Errorf("Expected 16-character hash, got %d: %q", len(h), h)
	}

	// Deterministic for identical inputs.
	if h != GenerateHash("some document text", 1700000000000000000) {
		t.Error("Expected identical hash for identical inputs")
	}

	// Different text or timestamp changes the hash.
	if h == GenerateHash("other document text", 1700000000000000000) {
		t.Error("Expected different hash for different text")
	}
	if h == GenerateHash("some document text", 1700000000000000001) {
		t.Error("Expected different hash for different timestamp")
	}
}
