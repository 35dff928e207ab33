package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("id %q is not a uuid: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
