package app

import (
	"errors"
	"fmt"
	"testing"
)

func newButtonWithSteps(t *testing.T, mm *MenuManager, n int) uint {
	t.Helper()
	id, err := mm.AddButton("Кнопка", "", nil)
	if err != nil {
		t.Fatalf("AddButton: %v", err)
	}
	for i := 1; i <= n; i++ {
		_, err := mm.AppendStep(id, ButtonStep{ContentType: contentTypeText, ContentText: fmt.Sprintf("шаг %d", i)})
		if err != nil {
			t.Fatalf("AppendStep %d: %v", i, err)
		}
	}
	return id
}

func assertDense(t *testing.T, mm *MenuManager, buttonID uint, texts []string) {
	t.Helper()
	steps, err := mm.Steps(buttonID)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(steps) != len(texts) {
		t.Fatalf("expected %d steps, got %d", len(texts), len(steps))
	}
	for i, s := range steps {
		if s.StepNumber != i+1 {
			t.Fatalf("step %d has number %d; positions must be dense 1..N", i, s.StepNumber)
		}
		if s.ContentText != texts[i] {
			t.Fatalf("step %d content = %q; want %q", i+1, s.ContentText, texts[i])
		}
	}
}

func TestValidateDelay(t *testing.T) {
	tests := []struct {
		in int
		ok bool
	}{
		{-1, false},
		{0, true},
		{5, true},
		{10, true},
		{11, false},
	}
	for _, tt := range tests {
		err := validateDelay(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("validateDelay(%d) = %v; ok expected %v", tt.in, err, tt.ok)
		}
	}
}

func TestInsertStepAtShiftsFollowing(t *testing.T) {
	mm := newTestManager(t)
	id := newButtonWithSteps(t, mm, 3)

	if _, err := mm.InsertStepAt(id, 2, ButtonStep{ContentType: contentTypeText, ContentText: "вставка"}); err != nil {
		t.Fatalf("InsertStepAt: %v", err)
	}
	assertDense(t, mm, id, []string{"шаг 1", "вставка", "шаг 2", "шаг 3"})

	// Вставка в хвост: позиция N+1
	if _, err := mm.InsertStepAt(id, 5, ButtonStep{ContentType: contentTypeText, ContentText: "хвост"}); err != nil {
		t.Fatalf("InsertStepAt tail: %v", err)
	}
	assertDense(t, mm, id, []string{"шаг 1", "вставка", "шаг 2", "шаг 3", "хвост"})
}

func TestInsertStepAtRejectsBadPosition(t *testing.T) {
	mm := newTestManager(t)
	id := newButtonWithSteps(t, mm, 2)

	for _, pos := range []int{0, -1, 4} {
		if _, err := mm.InsertStepAt(id, pos, ButtonStep{ContentType: contentTypeText, ContentText: "x"}); err == nil {
			t.Fatalf("InsertStepAt(%d) with 2 steps must fail", pos)
		}
	}
}

func TestDeleteStepAtRenumbers(t *testing.T) {
	mm := newTestManager(t)
	id := newButtonWithSteps(t, mm, 4)

	if err := mm.DeleteStepAt(id, 2); err != nil {
		t.Fatalf("DeleteStepAt: %v", err)
	}
	assertDense(t, mm, id, []string{"шаг 1", "шаг 3", "шаг 4"})

	if err := mm.DeleteStepAt(id, 3); err != nil {
		t.Fatalf("DeleteStepAt tail: %v", err)
	}
	assertDense(t, mm, id, []string{"шаг 1", "шаг 3"})
}

func TestStepsCollapsesDuplicateNumbers(t *testing.T) {
	mm := newTestManager(t)
	id := newButtonWithSteps(t, mm, 1)

	// Унаследованные дубликаты: два шага с одним номером
	dup := ButtonStep{ButtonID: id, StepNumber: 1, ContentType: contentTypeText, ContentText: "дубль"}
	if err := mm.DB.Create(&dup).Error; err != nil {
		t.Fatalf("create duplicate: %v", err)
	}

	steps, err := mm.Steps(id)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected duplicates collapsed to 1 step, got %d", len(steps))
	}
	if steps[0].ContentText != "шаг 1" {
		t.Fatalf("collapse kept %q; must keep the row with the lowest id", steps[0].ContentText)
	}

	count, _ := mm.CountSteps(id)
	if count != 1 {
		t.Fatalf("duplicate row survived in storage: count=%d", count)
	}
}

func TestDeleteStepsClearsButton(t *testing.T) {
	mm := newTestManager(t)
	id := newButtonWithSteps(t, mm, 3)

	if err := mm.DeleteSteps(id); err != nil {
		t.Fatalf("DeleteSteps: %v", err)
	}
	count, err := mm.CountSteps(id)
	if err != nil {
		t.Fatalf("CountSteps: %v", err)
	}
	if count != 0 {
		t.Fatalf("steps survived DeleteSteps: %d", count)
	}
	if _, err := mm.ButtonByID(id); err != nil {
		t.Fatalf("button itself must survive: %v", err)
	}
}

func TestUpdateStepDelay(t *testing.T) {
	mm := newTestManager(t)
	id := newButtonWithSteps(t, mm, 2)

	if err := mm.UpdateStepDelay(id, 2, 10); err != nil {
		t.Fatalf("UpdateStepDelay: %v", err)
	}
	step, err := mm.Step(id, 2)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.Delay != 10 {
		t.Fatalf("delay = %d; want 10", step.Delay)
	}

	if err := mm.UpdateStepDelay(id, 2, 11); !errors.Is(err, ErrBadDelay) {
		t.Fatalf("UpdateStepDelay(11) = %v; want ErrBadDelay", err)
	}
	if err := mm.UpdateStepDelay(id, 9, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateStepDelay missing step = %v; want ErrNotFound", err)
	}
}

func TestUpdateStepContentSwitchesType(t *testing.T) {
	mm := newTestManager(t)
	id := newButtonWithSteps(t, mm, 1)

	if err := mm.UpdateStepContent(id, 1, "подпись", "file123", "photo"); err != nil {
		t.Fatalf("UpdateStepContent to file: %v", err)
	}
	step, err := mm.Step(id, 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.ContentType != contentTypeFile || step.FileID != "file123" || step.FileType != "photo" {
		t.Fatalf("step not converted to file: %+v", step)
	}

	if err := mm.UpdateStepContent(id, 1, "снова текст", "", ""); err != nil {
		t.Fatalf("UpdateStepContent to text: %v", err)
	}
	step, _ = mm.Step(id, 1)
	if step.ContentType != contentTypeText || step.FileID != "" {
		t.Fatalf("step not converted back to text: %+v", step)
	}
}
