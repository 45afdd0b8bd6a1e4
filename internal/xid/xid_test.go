package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedUniqueAndSortable(t *testing.T) {
	seen := map[string]bool{}
	prev := ""
	for i := 0; i < 200; i++ {
		id := New("cli")
		if !strings.HasPrefix(id, "cli_") {
			t.Fatalf("id %s lacks prefix", id)
		}
		if len(id) != len("cli_")+26 {
			t.Fatalf("id %s has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate %s", id)
		}
		seen[id] = true
		if prev != "" && id[:len("cli_")+10] < prev[:len("cli_")+10] {
			t.Fatalf("timestamp part went backwards: %s after %s", id, prev)
		}
		prev = id
	}
}
