package app

import (
	"strings"
	"testing"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		in   string
		tag  string
		args []string
	}{
		{"id:42", "id", []string{"42"}},
		{"\fid:42", "id", []string{"42"}},
		{"root", "root", nil},
		{"sedit:7:3", "sedit", []string{"7", "3"}},
		{"  cancel  ", "cancel", nil},
	}
	for _, tt := range tests {
		tag, args := parseCallback(tt.in)
		if tag != tt.tag {
			t.Fatalf("parseCallback(%q) tag = %q; want %q", tt.in, tag, tt.tag)
		}
		if len(args) != len(tt.args) {
			t.Fatalf("parseCallback(%q) args = %v; want %v", tt.in, args, tt.args)
		}
		for i := range args {
			if args[i] != tt.args[i] {
				t.Fatalf("parseCallback(%q) args = %v; want %v", tt.in, args, tt.args)
			}
		}
	}
}

func TestParseIDCallback(t *testing.T) {
	if id, ok := parseIDCallback("id:42"); !ok || id != 42 {
		t.Fatalf("parseIDCallback(id:42) = %d,%v", id, ok)
	}
	for _, in := range []string{"id:", "id:abc", "h:deadbeef", "root", ""} {
		if _, ok := parseIDCallback(in); ok {
			t.Fatalf("parseIDCallback(%q) accepted invalid token", in)
		}
	}
}

func TestEnsureShortCallbackPrefersID(t *testing.T) {
	long := strings.Repeat("очень длинный callback ", 10)

	// Известный ID всегда дает форму id:N
	if got := ensureShortCallback(long, 42); got != "id:42" {
		t.Fatalf("ensureShortCallback(long, 42) = %q; want id:42", got)
	}
	if got := ensureShortCallback("id:42", 42); got != "id:42" {
		t.Fatalf("ensureShortCallback(id:42, 42) = %q", got)
	}

	// Без ID: короткие остаются как есть, длинные хешируются
	if got := ensureShortCallback("legacy_data", 0); got != "legacy_data" {
		t.Fatalf("short token must pass through, got %q", got)
	}
	hashed := ensureShortCallback(long, 0)
	if !strings.HasPrefix(hashed, "h:") {
		t.Fatalf("long token without id must hash, got %q", hashed)
	}
	if len(hashed) > maxCallbackBytes {
		t.Fatalf("hashed token %q exceeds %d bytes", hashed, maxCallbackBytes)
	}
	// Хеш детерминирован
	if again := ensureShortCallback(long, 0); again != hashed {
		t.Fatalf("hash not deterministic: %q != %q", again, hashed)
	}

	if got := ensureShortCallback("", 0); got != cbNoop {
		t.Fatalf("empty token = %q; want %q", got, cbNoop)
	}
}
