package app

import (
	"fmt"
	"sync"
	"testing"
)

func TestResetSessionPreservesUserMode(t *testing.T) {
	const userID = int64(100500)

	s := getSession(userID)
	s.Stage = StageLabel
	s.UserMode = true
	s.Draft = &ButtonDraft{Label: "Черновик"}
	saveSession(userID, s)

	fresh := resetSession(userID)
	if fresh.Stage != StageIdle {
		t.Fatalf("stage after reset = %v; want StageIdle", fresh.Stage)
	}
	if fresh.Draft != nil {
		t.Fatalf("draft survived reset: %+v", fresh.Draft)
	}
	if !fresh.UserMode {
		t.Fatalf("reset must keep the user-mode flag")
	}

	if again := getSession(userID); again != fresh {
		t.Fatalf("getSession must return the stored session")
	}
}

// Каждый апдейт обрабатывается в своей горутине: параллельные дополнения
// черновика (альбом из нескольких фото, быстрые двойные тапы) не должны
// терять шаги или рваться на гонке.
func TestConcurrentDraftUpdatesAreSerialized(t *testing.T) {
	const userID = int64(300700)

	s := resetSession(userID)
	s.Stage = StageStepContent
	s.Draft = &ButtonDraft{Label: "Альбом", PendingDelay: 5}
	saveSession(userID, s)

	const updates = 8
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			mu := lockSession(userID)
			defer mu.Unlock()

			sess := getSession(userID)
			sess.Draft.Steps = append(sess.Draft.Steps, ButtonStep{
				ContentType: contentTypeText,
				ContentText: fmt.Sprintf("шаг %d", n),
				Delay:       sess.Draft.nextStepDelay(),
			})
			saveSession(userID, sess)
		}(i)
	}
	wg.Wait()

	final := getSession(userID)
	if len(final.Draft.Steps) != updates {
		t.Fatalf("accumulated %d steps from %d updates; updates must not be lost", len(final.Draft.Steps), updates)
	}
	if final.Draft.PendingDelay != 0 {
		t.Fatalf("pending delay = %d; must be consumed exactly once", final.Draft.PendingDelay)
	}
	withDelay := 0
	for _, step := range final.Draft.Steps {
		if step.Delay == 5 {
			withDelay++
		}
	}
	if withDelay != 1 {
		t.Fatalf("%d steps carry the pending delay; exactly one update must win it", withDelay)
	}
}

func TestGetSessionStartsIdle(t *testing.T) {
	s := getSession(int64(200600))
	if s.Stage != StageIdle || s.UserMode || s.Draft != nil {
		t.Fatalf("fresh session must be idle and empty: %+v", s)
	}
}
