package app

import (
	"errors"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *MenuManager {
	t.Helper()
	mm, err := NewMenuManagerInMemory()
	if err != nil {
		t.Fatalf("in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = mm.CloseDB() })
	return mm
}

func TestValidateLabel(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"Прайс-лист", nil},
		{"  Контакты  ", nil},
		{strings.Repeat("я", 35), nil},
		{strings.Repeat("я", 36), ErrLabelTooLong},
		{"", ErrEmptyLabel},
		{"   ", ErrEmptyLabel},
	}
	for _, tt := range tests {
		if got := validateLabel(tt.in); !errors.Is(got, tt.want) {
			t.Fatalf("validateLabel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestAddButtonAssignsShortCallback(t *testing.T) {
	mm := newTestManager(t)

	id, err := mm.AddButton("Test", "Hello", nil)
	if err != nil {
		t.Fatalf("AddButton: %v", err)
	}
	btn, err := mm.ButtonByID(id)
	if err != nil {
		t.Fatalf("ButtonByID: %v", err)
	}
	if btn.Callback != idCallback(id) {
		t.Fatalf("callback = %q; want %q", btn.Callback, idCallback(id))
	}
	if len(btn.Callback) > maxCallbackBytes {
		t.Fatalf("callback %q longer than %d bytes", btn.Callback, maxCallbackBytes)
	}

	found, err := mm.ButtonByCallback(btn.Callback)
	if err != nil {
		t.Fatalf("ButtonByCallback: %v", err)
	}
	if found.ID != id || found.MessageText != "Hello" {
		t.Fatalf("round-trip mismatch: %+v", found)
	}
}

func TestAddButtonDeduplicatesByTextAndParent(t *testing.T) {
	mm := newTestManager(t)

	first, err := mm.AddButton("Контакты", "", nil)
	if err != nil {
		t.Fatalf("AddButton: %v", err)
	}
	second, err := mm.AddButton("Контакты", "", nil)
	if err != nil {
		t.Fatalf("AddButton duplicate: %v", err)
	}
	if first != second {
		t.Fatalf("duplicate label on same level created new button: %d != %d", first, second)
	}

	// То же название на другом уровне — другая кнопка
	nested, err := mm.AddButton("Контакты", "", &first)
	if err != nil {
		t.Fatalf("AddButton nested: %v", err)
	}
	if nested == first {
		t.Fatalf("same label under different parent must be a new button")
	}
}

func TestCreateButtonWithSteps(t *testing.T) {
	mm := newTestManager(t)

	id, err := mm.CreateButtonWithSteps("Test", nil, []ButtonStep{
		{ContentType: contentTypeText, ContentText: "Hello", Delay: 7},
		{ContentType: contentTypeText, ContentText: "World", Delay: 3},
	})
	if err != nil {
		t.Fatalf("CreateButtonWithSteps: %v", err)
	}

	steps, err := mm.Steps(id)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	for i, s := range steps {
		if s.StepNumber != i+1 {
			t.Fatalf("step %d has number %d; positions must be dense 1..N", i, s.StepNumber)
		}
	}
	if steps[0].Delay != 0 {
		t.Fatalf("first step delay = %d; must always be 0", steps[0].Delay)
	}
	if steps[1].Delay != 3 {
		t.Fatalf("second step delay = %d; want 3", steps[1].Delay)
	}

	roots, err := mm.ButtonsByParent(nil)
	if err != nil {
		t.Fatalf("ButtonsByParent: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != id || roots[0].Text != "Test" {
		t.Fatalf("root listing after commit = %+v; want the created button", roots)
	}

	if _, err := mm.CreateButtonWithSteps("Пустая", nil, nil); err == nil {
		t.Fatalf("expected error for button without steps")
	}
}

func TestDeleteButtonCascades(t *testing.T) {
	mm := newTestManager(t)

	root, err := mm.AddButton("Раздел", "", nil)
	if err != nil {
		t.Fatalf("AddButton: %v", err)
	}
	child, err := mm.AddButton("Подраздел", "", &root)
	if err != nil {
		t.Fatalf("AddButton child: %v", err)
	}
	grandchild, err := mm.AddButton("Вложенный", "", &child)
	if err != nil {
		t.Fatalf("AddButton grandchild: %v", err)
	}
	if _, err := mm.AppendStep(grandchild, ButtonStep{ContentType: contentTypeText, ContentText: "x"}); err != nil {
		t.Fatalf("AppendStep: %v", err)
	}

	if err := mm.DeleteButton(root); err != nil {
		t.Fatalf("DeleteButton: %v", err)
	}

	for _, id := range []uint{root, child, grandchild} {
		if _, err := mm.ButtonByID(id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("button %d survived cascade delete: %v", id, err)
		}
	}
	count, err := mm.CountSteps(grandchild)
	if err != nil {
		t.Fatalf("CountSteps: %v", err)
	}
	if count != 0 {
		t.Fatalf("steps of deleted subtree survived: %d", count)
	}
}

func TestUpdateButtonNotFound(t *testing.T) {
	mm := newTestManager(t)

	if err := mm.UpdateButtonText(9999, "Новое имя"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateButtonText on missing id: %v; want ErrNotFound", err)
	}
	if err := mm.UpdateButtonMessageText(9999, "текст"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateButtonMessageText on missing id: %v; want ErrNotFound", err)
	}
}

func TestLegacyButtonMedia(t *testing.T) {
	mm := newTestManager(t)

	id, err := mm.AddButton("С файлом", "", nil)
	if err != nil {
		t.Fatalf("AddButton: %v", err)
	}
	if err := mm.UpdateButtonFile(id, "file123", "photo"); err != nil {
		t.Fatalf("UpdateButtonFile: %v", err)
	}
	btn, _ := mm.ButtonByID(id)
	if btn.FileID != "file123" || btn.FileType != "photo" {
		t.Fatalf("legacy media not stored: %+v", btn)
	}

	if err := mm.RemoveButtonFile(id); err != nil {
		t.Fatalf("RemoveButtonFile: %v", err)
	}
	btn, _ = mm.ButtonByID(id)
	if btn.FileID != "" || btn.FileType != "" {
		t.Fatalf("legacy media not cleared: %+v", btn)
	}

	if err := mm.UpdateButtonFile(9999, "x", "photo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateButtonFile missing id: %v; want ErrNotFound", err)
	}
}

func TestSearchButtonsByText(t *testing.T) {
	mm := newTestManager(t)

	a, _ := mm.AddButton("Прайс-лист", "", nil)
	if _, err := mm.AddButton("Контакты", "Наш прайс внутри", &a); err != nil {
		t.Fatalf("AddButton: %v", err)
	}
	if _, err := mm.AddButton("Оценка", "", nil); err != nil {
		t.Fatalf("AddButton: %v", err)
	}

	found, err := mm.SearchButtonsByText("ПРАЙС")
	if err != nil {
		t.Fatalf("SearchButtonsByText: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches by label and body, got %d: %v", len(found), found)
	}
}

func TestStartMessageSingleton(t *testing.T) {
	mm := newTestManager(t)

	if got := mm.GetStartMessage(); got == "" {
		t.Fatalf("fresh database must carry a default start message")
	}
	if err := mm.UpdateStartMessage("Привет!"); err != nil {
		t.Fatalf("UpdateStartMessage: %v", err)
	}
	if got := mm.GetStartMessage(); got != "Привет!" {
		t.Fatalf("GetStartMessage = %q; want %q", got, "Привет!")
	}

	var count int64
	mm.DB.Model(&StartMessage{}).Count(&count)
	if count != 1 {
		t.Fatalf("start message rows = %d; must stay a singleton", count)
	}
}
