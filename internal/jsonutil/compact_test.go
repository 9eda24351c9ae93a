package jsonutil

import (
	"strings"
	"testing"
)

func TestReadCappedWithinLimit(t *testing.T) {
	t.Parallel()

	data, err := ReadCapped(strings.NewReader("hello"), 16)
	if err != nil {
		t.Fatalf("ReadCapped: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected payload %q, got %q", "hello", data)
	}
}

func TestReadCappedExceedsLimit(t *testing.T) {
	t.Parallel()

	if _, err := ReadCapped(strings.NewReader(strings.Repeat("x", 32)), 16); err == nil {
		t.Fatal("expected error for payload over the cap")
	}
}

func TestReadCappedUnlimited(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("y", 4096)
	data, err := ReadCapped(strings.NewReader(payload), 0)
	if err != nil {
		t.Fatalf("ReadCapped: %v", err)
	}
	if len(data) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(data))
	}
}
