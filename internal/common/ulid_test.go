package common

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewULID(t *testing.T) {
	a, err := NewULID()
	if err != nil {
		t.Fatalf("new ulid: %v", err)
	}
	b, err := NewULID()
	if err != nil {
		t.Fatalf("new ulid: %v", err)
	}
	if len(a) != 26 {
		t.Fatalf("expected 26 chars, got %d", len(a))
	}
	if a == b {
		t.Fatalf("expected distinct ids")
	}
	if _, err := ulid.Parse(a); err != nil {
		t.Fatalf("parse: %v", err)
	}
}
