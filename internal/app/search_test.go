package app

import (
	"strings"
	"testing"
)

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"прайс", "прайс", true},
		{"  оценка  ", "оценка", true},
		{"яя", "яя", true},
		{"я", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		got, err := validateQuery(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("validateQuery(%q) err = %v; ok expected %v", tt.in, err, tt.ok)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("validateQuery(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSearchReply(t *testing.T) {
	tests := []struct {
		reply   string
		count   int
		unclear bool
		indices []int
	}{
		{"1, 3, 5", 5, false, []int{0, 2, 4}},
		{"2", 5, false, []int{1}},
		{"НЕПОНЯТНО", 5, true, nil},
		{"непонятно", 5, true, nil},
		{"НЕТ_РЕЗУЛЬТАТОВ", 5, false, nil},
		{"Подходят кнопки: 1 и 4.", 5, false, []int{0, 3}},
		{"0, 6, 99", 5, false, nil}, // вне диапазона — отбрасываются
		{"", 5, false, nil},
	}
	for _, tt := range tests {
		unclear, indices := parseSearchReply(tt.reply, tt.count)
		if unclear != tt.unclear {
			t.Fatalf("parseSearchReply(%q) unclear = %v; want %v", tt.reply, unclear, tt.unclear)
		}
		if len(indices) != len(tt.indices) {
			t.Fatalf("parseSearchReply(%q) indices = %v; want %v", tt.reply, indices, tt.indices)
		}
		for i := range indices {
			if indices[i] != tt.indices[i] {
				t.Fatalf("parseSearchReply(%q) indices = %v; want %v", tt.reply, indices, tt.indices)
			}
		}
	}
}

func TestDedupeByLabel(t *testing.T) {
	in := []MenuButton{
		{ID: 1, Text: "Прайс"},
		{ID: 2, Text: "прайс "},
		{ID: 3, Text: "Контакты"},
		{ID: 4, Text: "ПРАЙС"},
	}
	out := dedupeByLabel(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique labels, got %d: %v", len(out), out)
	}
	if out[0].ID != 1 || out[1].ID != 3 {
		t.Fatalf("dedupe must keep first occurrence: %v", out)
	}
}

func TestBuildSearchListing(t *testing.T) {
	parent := uint(1)
	all := []MenuButton{
		{ID: 1, Text: "Оценка"},
		{ID: 2, Text: "Прайс", ParentID: &parent, MessageText: "Актуальные цены"},
	}
	entries := buildSearchListing(all, ParentPaths(all))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Line != "1. Оценка" {
		t.Fatalf("entry[0] = %q", entries[0].Line)
	}
	if !strings.Contains(entries[1].Line, "(внутри: Оценка)") {
		t.Fatalf("nested entry must carry its path: %q", entries[1].Line)
	}
	if !strings.Contains(entries[1].Line, "Актуальные цены") {
		t.Fatalf("entry must carry the button text preview: %q", entries[1].Line)
	}
}

func TestSearchButtonsEasterEgg(t *testing.T) {
	mm := newTestManager(t)
	sm := NewSearchManager("", "")

	msg, results, err := sm.SearchButtons(mm, "КТО ЛУЧШИЙ")
	if err != nil {
		t.Fatalf("SearchButtons: %v", err)
	}
	if msg != easterEggAnswer {
		t.Fatalf("easter egg answer = %q; want %q", msg, easterEggAnswer)
	}
	if len(results) != 0 {
		t.Fatalf("easter egg must not return buttons: %v", results)
	}
}

func TestSearchButtonsRejectsShortQuery(t *testing.T) {
	mm := newTestManager(t)
	sm := NewSearchManager("", "")

	msg, results, err := sm.SearchButtons(mm, "я")
	if err != nil {
		t.Fatalf("short query must not be a hard error: %v", err)
	}
	if msg == "" {
		t.Fatalf("short query must produce a user-visible message before any network call")
	}
	if len(results) != 0 {
		t.Fatalf("short query must not return buttons: %v", results)
	}
}
