package app

import (
	"fmt"
	"log"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"
)

// ==========================================
// РЕГИСТРАЦИЯ ХЕНДЛЕРОВ
// ==========================================

func RegisterHandlers(b *tele.Bot) {
	b.Handle("/start", func(c tele.Context) error {
		mu := lockSession(c.Sender().ID)
		defer mu.Unlock()
		resetSession(c.Sender().ID)
		return showRoot(c)
	})

	b.Handle("/admin", func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return c.Send("У вас нет прав для входа в админ-панель.")
		}
		mu := lockSession(c.Sender().ID)
		defer mu.Unlock()
		s := resetSession(c.Sender().ID)
		s.UserMode = false
		saveSession(c.Sender().ID, s)
		return showRoot(c)
	})

	b.Handle("/search", func(c tele.Context) error {
		mu := lockSession(c.Sender().ID)
		defer mu.Unlock()
		return startSearch(c)
	})

	b.Handle("/id", func(c tele.Context) error {
		return sendWhoAmI(c)
	})

	b.Handle(tele.OnText, handleText)
	b.Handle(tele.OnCallback, handleCallback)

	// Все виды медиа уходят в общий маршрутизатор
	for _, event := range []string{
		tele.OnPhoto, tele.OnVideo, tele.OnDocument,
		tele.OnAudio, tele.OnVoice, tele.OnVideoNote,
	} {
		b.Handle(event, handleMedia)
	}

	log.Println("✅ Хендлеры зарегистрированы.")
}

// ==========================================
// ТЕКСТОВЫЙ МАРШРУТИЗАТОР (по стадии сессии)
// ==========================================

func handleText(c tele.Context) error {
	userID := c.Sender().ID
	mu := lockSession(userID)
	defer mu.Unlock()

	s := getSession(userID)
	text := c.Text()

	// Админские стадии закрыты для посторонних: сценарий сбрасывается молча
	if stageRequiresAdmin(s.Stage) && !isAdmin(userID) {
		resetSession(userID)
		return nil
	}

	switch s.Stage {
	case StageLabel:
		return wizardLabelInput(c, s, text)
	case StageStepContent:
		return wizardStepText(c, s, text)
	case StageFileCaption:
		return wizardCaptionInput(c, s, text)
	case StageDelayValue:
		return wizardDelayInput(c, s, text)
	case StageFinalize:
		// Меню мастера ждет нажатия кнопки; текст трактуем как еще один шаг
		return wizardStepText(c, s, text)
	case StageRename:
		return renameInput(c, s, text)
	case StageEditBody:
		return editBodyInput(c, s, text)
	case StageWelcome:
		return editWelcomeInput(c, s, text)
	case StageInsertContent:
		return insertStepText(c, s, text)
	case StageInsertCaption:
		return insertCaptionInput(c, s, text)
	case StageInsertPosition:
		return insertPositionInput(c, s, text)
	case StageInsertConfirm:
		return c.Send("Нажми «Подтвердить» или «Отмена».", buildConfirmInsertKeyboard())
	case StageEditStepContent:
		return editStepText(c, s, text)
	case StageStepDelay:
		return editStepDelayInput(c, s, text)
	case StageSearchQuery:
		return runSearch(c, s, text)
	case StageFeedback:
		return relayFeedback(c)
	default:
		return sendWhoAmI(c)
	}
}

func stageRequiresAdmin(stage Stage) bool {
	switch stage {
	case StageSearchQuery, StageFeedback, StageIdle:
		return false
	default:
		return true
	}
}

// sendWhoAmI — ответ на текст вне сценариев: показываем ID (полезно,
// чтобы пользователь мог сообщить его админам) и главное меню.
func sendWhoAmI(c tele.Context) error {
	user := c.Sender()
	username := user.Username
	if username == "" {
		username = "не указан"
	}
	kb, err := buildRootKeyboard(menuManager, false, false)
	if err != nil {
		return sendStorageError(c, err)
	}
	return c.Send(
		fmt.Sprintf("Ваш ID: <code>%d</code>\nUsername: @%s\nИмя: %s",
			user.ID, username, user.FirstName),
		kb, tele.ModeHTML,
	)
}

// ==========================================
// CALLBACK-МАРШРУТИЗАТОР (по тегу команды)
// ==========================================

func handleCallback(c tele.Context) error {
	if c.Callback() == nil {
		return nil
	}
	tag, args := parseCallback(c.Callback().Data)
	userID := c.Sender().ID
	mu := lockSession(userID)
	defer mu.Unlock()
	s := getSession(userID)

	// Команды, доступные всем
	switch tag {
	case cbOpen, cbHash:
		return openButtonByCallback(c)
	case cbRoot:
		_ = c.Respond()
		return showRoot(c)
	case cbSearch:
		_ = c.Respond()
		return startSearch(c)
	case cbFeedback:
		_ = c.Respond()
		return startFeedback(c)
	case cbNoop:
		return c.Respond()
	}

	// Всё остальное — только для админов
	if !isAdmin(userID) {
		return c.Respond(&tele.CallbackResponse{Text: "У вас нет прав.", ShowAlert: true})
	}

	switch tag {
	case cbModeUser:
		s.UserMode = true
		saveSession(userID, s)
		_ = c.Respond(&tele.CallbackResponse{Text: "Режим пользователя"})
		return showRoot(c)
	case cbModeAdmin:
		s.UserMode = false
		saveSession(userID, s)
		_ = c.Respond(&tele.CallbackResponse{Text: "Режим админа"})
		return showRoot(c)

	case cbAdd:
		parentID := parseOptionalID(args)
		_ = c.Respond()
		return startCreateWizard(c, parentID)
	case cbRename:
		if id, ok := argID(args, 0); ok {
			_ = c.Respond()
			return startRename(c, id)
		}
	case cbEditBody:
		if id, ok := argID(args, 0); ok {
			_ = c.Respond()
			return startEditBody(c, id)
		}
	case cbWelcome:
		_ = c.Respond()
		return startEditWelcome(c)
	case cbStats:
		_ = c.Respond()
		return sendStatsReport(c)

	case cbDelete:
		if id, ok := argID(args, 0); ok {
			return askDeleteButton(c, id)
		}
	case cbDeleteOK:
		if id, ok := argID(args, 0); ok {
			return doDeleteButton(c, id)
		}

	case cbSteps:
		if id, ok := argID(args, 0); ok {
			_ = c.Respond()
			return showStepsMenu(c, id)
		}
	case cbStepIns:
		if id, ok := argID(args, 0); ok {
			_ = c.Respond()
			return startInsertStep(c, id)
		}
	case cbStepEdit:
		if id, pos, ok := argIDPos(args); ok {
			_ = c.Respond()
			return startEditStep(c, id, pos)
		}
	case cbStepDel:
		if id, pos, ok := argIDPos(args); ok {
			return doDeleteStep(c, id, pos)
		}
	case cbStepDelay:
		if id, pos, ok := argIDPos(args); ok {
			_ = c.Respond()
			return startEditStepDelay(c, id, pos)
		}

	case cbCancel:
		return cancelScenario(c, s)
	case cbWizAdd:
		if s.Stage == StageFinalize {
			_ = c.Respond()
			return wizardAddAnotherStep(c, s)
		}
	case cbWizDelay:
		if s.Stage == StageFinalize {
			_ = c.Respond()
			return wizardAskDelay(c, s)
		}
	case cbWizBack:
		if s.Stage == StageFinalize {
			_ = c.Respond()
			return wizardStepBack(c, s)
		}
	case cbWizDone:
		if s.Stage == StageFinalize {
			return wizardFinish(c, s)
		}
	case cbWizSkipCap:
		if s.Stage == StageFileCaption && s.Draft != nil {
			_ = c.Respond()
			return wizardAttachPendingFile(c, s)
		}
		if s.Stage == StageInsertCaption {
			_ = c.Respond()
			return insertAskPosition(c, s)
		}
	case cbInsertOK:
		if s.Stage == StageInsertConfirm {
			return insertConfirm(c, s)
		}
	case cbInsertNo:
		if s.Stage == StageInsertConfirm {
			return insertAbort(c, s)
		}
	}

	return c.Respond()
}

func argID(args []string, i int) (uint, bool) {
	if i >= len(args) {
		return 0, false
	}
	id, err := strconv.ParseUint(args[i], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func argIDPos(args []string) (uint, int, bool) {
	id, ok := argID(args, 0)
	if !ok || len(args) < 2 {
		return 0, 0, false
	}
	pos, err := strconv.Atoi(args[1])
	if err != nil || pos < 1 {
		return 0, 0, false
	}
	return id, pos, true
}

// parseOptionalID: "0" означает корневой уровень (parent = nil).
func parseOptionalID(args []string) *uint {
	id, ok := argID(args, 0)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

// ==========================================
// ПРОСМОТР МЕНЮ
// ==========================================

func adminView(c tele.Context) (admin, userMode bool) {
	s := getSession(c.Sender().ID)
	return isAdmin(c.Sender().ID), s.UserMode
}

func showRoot(c tele.Context) error {
	admin, userMode := adminView(c)
	kb, err := buildRootKeyboard(menuManager, admin, userMode)
	if err != nil {
		return sendStorageError(c, err)
	}
	return c.Send(menuManager.GetStartMessage(), kb)
}

func showNode(c tele.Context, btn *MenuButton) error {
	admin, userMode := adminView(c)
	kb, err := buildNodeKeyboard(menuManager, btn, admin, userMode)
	if err != nil {
		return sendStorageError(c, err)
	}
	text := btn.MessageText
	if text == "" {
		text = menuManager.GetStartMessage()
	}
	return c.Send(text, kb)
}

// openButtonByCallback — нажатие на кнопку меню: фиксируем просмотр,
// отдаем шаги по порядку с паузами и показываем вид кнопки.
func openButtonByCallback(c tele.Context) error {
	raw := c.Callback().Data
	if len(raw) > 0 && raw[0] == '\f' {
		raw = raw[1:]
	}
	btn, err := menuManager.ButtonByCallback(raw)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Кнопка не найдена", ShowAlert: true})
	}

	_ = c.Respond(&tele.CallbackResponse{Text: "Вы нажали: " + shorten(btn.Text, 50)})
	recordButtonView(btn.ID, c.Sender().ID)

	steps, err := menuManager.Steps(btn.ID)
	if err != nil {
		return sendStorageError(c, err)
	}
	for _, step := range steps {
		if step.Delay > 0 {
			time.Sleep(time.Duration(step.Delay) * time.Second)
		}
		if err := sendStep(c, step); err != nil {
			log.Printf("⚠️ Не удалось отправить шаг %d кнопки %d: %v", step.StepNumber, btn.ID, err)
		}
	}

	// Унаследованное одиночное медиа кнопки (до появления шагов)
	if len(steps) == 0 && btn.FileID != "" {
		if err := sendMedia(c, btn.FileID, btn.FileType, ""); err != nil {
			log.Printf("⚠️ Не удалось отправить медиа кнопки %d: %v", btn.ID, err)
		}
	}

	return showNode(c, btn)
}

func sendStep(c tele.Context, step ButtonStep) error {
	if step.ContentType == contentTypeFile && step.FileID != "" {
		return sendMedia(c, step.FileID, step.FileType, step.ContentText)
	}
	if step.ContentText == "" {
		return nil
	}
	return c.Send(step.ContentText)
}

func sendMedia(c tele.Context, fileID, fileType, caption string) error {
	file := tele.File{FileID: fileID}
	switch fileType {
	case "photo":
		return c.Send(&tele.Photo{File: file, Caption: caption})
	case "video":
		return c.Send(&tele.Video{File: file, Caption: caption})
	case "document":
		return c.Send(&tele.Document{File: file, Caption: caption})
	case "audio":
		return c.Send(&tele.Audio{File: file, Caption: caption})
	case "voice":
		return c.Send(&tele.Voice{File: file, Caption: caption})
	case "video_note":
		if caption != "" {
			if err := c.Send(caption); err != nil {
				return err
			}
		}
		return c.Send(&tele.VideoNote{File: file})
	default:
		return fmt.Errorf("неизвестный тип файла: %q", fileType)
	}
}

// ==========================================
// МЕДИА-МАРШРУТИЗАТОР
// ==========================================

func handleMedia(c tele.Context) error {
	userID := c.Sender().ID
	mu := lockSession(userID)
	defer mu.Unlock()

	s := getSession(userID)

	if stageRequiresAdmin(s.Stage) && !isAdmin(userID) {
		resetSession(userID)
		return nil
	}

	fileID, fileType, caption, ok := mediaFromMessage(c.Message())
	if !ok {
		return nil
	}

	switch s.Stage {
	case StageStepContent, StageFinalize:
		return wizardStepMedia(c, s, fileID, fileType)
	case StageInsertContent:
		return insertStepMedia(c, s, fileID, fileType)
	case StageEditStepContent:
		return editStepMedia(c, s, fileID, fileType, caption)
	case StageFeedback:
		return relayFeedback(c)
	default:
		return nil
	}
}

func mediaFromMessage(m *tele.Message) (fileID, fileType, caption string, ok bool) {
	if m == nil {
		return "", "", "", false
	}
	switch {
	case m.Photo != nil:
		return m.Photo.FileID, "photo", m.Caption, true
	case m.Video != nil:
		return m.Video.FileID, "video", m.Caption, true
	case m.Document != nil:
		return m.Document.FileID, "document", m.Caption, true
	case m.Audio != nil:
		return m.Audio.FileID, "audio", m.Caption, true
	case m.Voice != nil:
		return m.Voice.FileID, "voice", m.Caption, true
	case m.VideoNote != nil:
		return m.VideoNote.FileID, "video_note", "", true
	}
	return "", "", "", false
}

// ==========================================
// УДАЛЕНИЕ КНОПОК И ШАГОВ
// ==========================================

func askDeleteButton(c tele.Context, id uint) error {
	btn, err := menuManager.ButtonByID(id)
	if err != nil {
		return respondNotFound(c, err)
	}
	_ = c.Respond()
	markup := column(
		dataButton("🗑️ Да, удалить", fmt.Sprintf("%s:%d", cbDeleteOK, id)),
		dataButton("❌ Отмена", idCallback(id)),
	)
	return c.Send(
		fmt.Sprintf("Удалить кнопку <b>%s</b>?\nВсе вложенные кнопки и шаги тоже будут удалены.", btn.Text),
		markup, tele.ModeHTML,
	)
}

func doDeleteButton(c tele.Context, id uint) error {
	btn, err := menuManager.ButtonByID(id)
	if err != nil {
		return respondNotFound(c, err)
	}
	parentID := btn.ParentID
	if err := menuManager.DeleteButton(id); err != nil {
		log.Printf("❌ Ошибка удаления кнопки %d: %v", id, err)
		return c.Respond(&tele.CallbackResponse{Text: "Не удалось удалить", ShowAlert: true})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "Кнопка удалена", ShowAlert: true})
	if err := c.Send(fmt.Sprintf("✅ Кнопка <b>%s</b> удалена.", btn.Text), tele.ModeHTML); err != nil {
		return err
	}
	if parentID != nil {
		if parent, err := menuManager.ButtonByID(*parentID); err == nil {
			return showNode(c, parent)
		}
	}
	return showRoot(c)
}

func showStepsMenu(c tele.Context, buttonID uint) error {
	btn, err := menuManager.ButtonByID(buttonID)
	if err != nil {
		return respondNotFound(c, err)
	}
	steps, err := menuManager.Steps(buttonID)
	if err != nil {
		return sendStorageError(c, err)
	}

	var text string
	if len(steps) == 0 {
		text = fmt.Sprintf("У кнопки <b>%s</b> пока нет шагов.", btn.Text)
	} else {
		text = fmt.Sprintf("Шаги кнопки <b>%s</b>:\n", btn.Text)
		for _, s := range steps {
			preview := s.ContentText
			if s.ContentType == contentTypeFile {
				preview = fmt.Sprintf("[%s] %s", s.FileType, s.ContentText)
			}
			text += fmt.Sprintf("%d. %s", s.StepNumber, shorten(preview, 50))
			if s.Delay > 0 {
				text += fmt.Sprintf(" (пауза %d сек)", s.Delay)
			}
			text += "\n"
		}
	}
	return c.Send(text, buildStepsKeyboard(btn, steps), tele.ModeHTML)
}

func doDeleteStep(c tele.Context, buttonID uint, stepNumber int) error {
	if err := menuManager.DeleteStepAt(buttonID, stepNumber); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Шаг не найден", ShowAlert: true})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "Шаг удален"})
	return showStepsMenu(c, buttonID)
}

// cancelScenario прерывает любой сценарий и возвращает к виду кнопки,
// над которой шла работа (или в корень).
func cancelScenario(c tele.Context, s *Session) error {
	target := s.TargetButton
	var parentID *uint
	if s.Draft != nil {
		parentID = s.Draft.ParentID
	}
	resetSession(c.Sender().ID)
	_ = c.Respond(&tele.CallbackResponse{Text: "Отменено"})

	if target != 0 {
		if btn, err := menuManager.ButtonByID(target); err == nil {
			return showNode(c, btn)
		}
	}
	if parentID != nil {
		if btn, err := menuManager.ButtonByID(*parentID); err == nil {
			return showNode(c, btn)
		}
	}
	return showRoot(c)
}
