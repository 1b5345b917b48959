package utils

import "testing"

func TestGenerateStreamKey(t *testing.T) {
	hostID := "0b8f8a6e-9c5d-4f4f-9a45-7f3f8f1a2b3c"
	key := GenerateStreamKey(hostID)
	if len(key) != 32 {
		t.Fatalf("key length = %d, want 32", len(key))
	}
	for _, c := range key {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("non-hex character %q in key %s", c, key)
		}
	}
}

func TestGenerateStreamKeyUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		key := GenerateStreamKey("same-host")
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = struct{}{}
	}
}
