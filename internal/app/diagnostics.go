package app

import (
	"fmt"
	"log"
	"os"
	"time"

	tele "gopkg.in/telebot.v3"
)

// ==========================================
// АУДИТ МЕДИА (CLI-утилиты)
// ==========================================

// mediaRef — одна ссылка на файл в дереве меню: либо шаг кнопки,
// либо legacy-поле file_id самой кнопки.
type mediaRef struct {
	ButtonID   uint
	ButtonText string
	Path       string
	StepNumber int // 0 для legacy-поля кнопки
	FileID     string
	FileType   string
}

func collectMediaRefs(mm *MenuManager) ([]mediaRef, error) {
	all, err := mm.AllButtonsRecursive(nil)
	if err != nil {
		return nil, err
	}
	paths := ParentPaths(all)

	var ids []uint
	for _, b := range all {
		ids = append(ids, b.ID)
	}
	stepsByButton, err := mm.StepsForButtons(ids)
	if err != nil {
		return nil, err
	}

	var refs []mediaRef
	for _, b := range all {
		if b.FileID != "" {
			refs = append(refs, mediaRef{
				ButtonID: b.ID, ButtonText: b.Text, Path: paths[b.ID],
				FileID: b.FileID, FileType: b.FileType,
			})
		}
		for _, s := range stepsByButton[b.ID] {
			if s.FileID == "" {
				continue
			}
			refs = append(refs, mediaRef{
				ButtonID: b.ID, ButtonText: b.Text, Path: paths[b.ID],
				StepNumber: s.StepNumber, FileID: s.FileID, FileType: s.FileType,
			})
		}
	}
	return refs, nil
}

func describeRef(r mediaRef) string {
	where := fmt.Sprintf("кнопка «%s» (ID %d)", r.ButtonText, r.ButtonID)
	if r.StepNumber > 0 {
		where += fmt.Sprintf(", шаг %d", r.StepNumber)
	}
	if r.Path != "" {
		where += fmt.Sprintf(" [%s]", r.Path)
	}
	return where
}

// auditSetup — общая инициализация CLI-утилит: конфиг и БД без запуска бота.
func auditSetup() (*MenuManager, error) {
	if err := loadJSON(configFilePath, &config); err != nil {
		log.Printf("⚠️ Файл %s не найден, используем только переменные окружения", configFilePath)
	}
	applyEnvOverrides(&config)
	return NewMenuManager(&config)
}

// RunBrokenMediaAudit проверяет каждый file_id через Telegram API и
// печатает ссылки, которые Telegram больше не отдает.
func RunBrokenMediaAudit() {
	mm, err := auditSetup()
	if err != nil {
		log.Fatalf("❌ БД недоступна: %v", err)
	}
	defer mm.CloseDB()

	if config.Token == "" {
		log.Fatalf("❌ BOT_TOKEN не задан: проверка file_id требует доступа к Telegram API")
	}
	bot, err := tele.NewBot(tele.Settings{Token: config.Token, URL: config.BotAPIUrl})
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к Telegram API: %v", err)
	}

	refs, err := collectMediaRefs(mm)
	if err != nil {
		log.Fatalf("❌ Ошибка чтения дерева меню: %v", err)
	}
	fmt.Printf("Проверяю %d ссылок на медиа...\n", len(refs))

	broken := 0
	for _, r := range refs {
		if _, err := bot.FileByID(r.FileID); err != nil {
			broken++
			fmt.Printf("⚠️ БИТЫЙ %s: %s (%v)\n", r.FileType, describeRef(r), err)
		}
		// Щадим лимиты Telegram
		time.Sleep(50 * time.Millisecond)
	}

	if broken == 0 {
		fmt.Println("✅ Битых медиа не найдено.")
		return
	}
	fmt.Printf("Итого битых: %d из %d\n", broken, len(refs))
	os.Exit(1)
}

// RunMissingMediaAudit ищет дефекты без обращения к Telegram:
// файловые шаги без file_id и кнопки, у которых нет ни текста, ни шагов,
// ни дочерних пунктов.
func RunMissingMediaAudit() {
	mm, err := auditSetup()
	if err != nil {
		log.Fatalf("❌ БД недоступна: %v", err)
	}
	defer mm.CloseDB()

	all, err := mm.AllButtonsRecursive(nil)
	if err != nil {
		log.Fatalf("❌ Ошибка чтения дерева меню: %v", err)
	}
	paths := ParentPaths(all)

	var ids []uint
	children := make(map[uint]int)
	for _, b := range all {
		ids = append(ids, b.ID)
		if b.ParentID != nil {
			children[*b.ParentID]++
		}
	}
	stepsByButton, err := mm.StepsForButtons(ids)
	if err != nil {
		log.Fatalf("❌ Ошибка чтения шагов: %v", err)
	}

	issues := 0
	for _, b := range all {
		steps := stepsByButton[b.ID]
		for _, s := range steps {
			if s.ContentType == contentTypeFile && s.FileID == "" {
				issues++
				fmt.Printf("⚠️ Шаг %d кнопки «%s» (ID %d) помечен как файл, но file_id пустой [%s]\n",
					s.StepNumber, b.Text, b.ID, paths[b.ID])
			}
		}
		if len(steps) == 0 && b.MessageText == "" && b.FileID == "" && children[b.ID] == 0 {
			issues++
			fmt.Printf("⚠️ Кнопка «%s» (ID %d) пустая: нет текста, шагов и подменю [%s]\n",
				b.Text, b.ID, paths[b.ID])
		}
	}

	if issues == 0 {
		fmt.Printf("✅ Проверено %d кнопок, проблем не найдено.\n", len(all))
		return
	}
	fmt.Printf("Итого проблем: %d (кнопок: %d)\n", issues, len(all))
	os.Exit(1)
}
