package app

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// ==========================================
// МАСТЕР СОЗДАНИЯ КНОПКИ
// ==========================================
//
// Сценарий: название -> один или несколько шагов (текст или файл с
// необязательной подписью) -> меню завершения. Из меню завершения можно
// добавить еще шаг, назначить паузу перед следующим шагом, откатиться
// на шаг назад или зафиксировать результат. В БД черновик попадает только
// при явном завершении, одной транзакцией.

func startCreateWizard(c tele.Context, parentID *uint) error {
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageLabel
	s.Draft = &ButtonDraft{ParentID: parentID}
	saveSession(userID, s)

	return c.Send(
		fmt.Sprintf("Отправь название кнопки (до %d символов):", maxLabelLen),
		buildCancelKeyboard(),
	)
}

func wizardLabelInput(c tele.Context, s *Session, text string) error {
	if err := validateLabel(text); err != nil {
		// Стадия не меняется, админ просто пробует снова
		return c.Send(fmt.Sprintf("❌ %v. Отправь название еще раз:", err), buildCancelKeyboard())
	}
	s.Draft.Label = strings.TrimSpace(text)
	s.Stage = StageStepContent
	saveSession(c.Sender().ID, s)

	return c.Send(
		fmt.Sprintf("Название: <b>%s</b>\n\nТеперь отправь контент первого шага — текст или файл (фото, видео, документ, аудио, голосовое, кружок):", s.Draft.Label),
		buildCancelKeyboard(), tele.ModeHTML,
	)
}

// nextStepDelay забирает накопленную паузу. Первый шаг всегда без паузы,
// что бы админ ни успел назначить.
func (d *ButtonDraft) nextStepDelay() int {
	if len(d.Steps) == 0 {
		return 0
	}
	delay := d.PendingDelay
	d.PendingDelay = 0
	return delay
}

func wizardStepText(c tele.Context, s *Session, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Send("Текст шага пустой. Отправь непустой текст или файл:", buildCancelKeyboard())
	}
	s.Draft.Steps = append(s.Draft.Steps, ButtonStep{
		ContentType: contentTypeText,
		ContentText: text,
		Delay:       s.Draft.nextStepDelay(),
	})
	return wizardShowFinalize(c, s)
}

func wizardStepMedia(c tele.Context, s *Session, fileID, fileType string) error {
	s.Draft.PendingFile = &ButtonStep{
		ContentType: contentTypeFile,
		FileID:      fileID,
		FileType:    fileType,
	}
	s.Stage = StageFileCaption
	saveSession(c.Sender().ID, s)
	return c.Send("Файл принят. Отправь подпись к нему или нажми «Без подписи»:", buildCaptionKeyboard())
}

func wizardCaptionInput(c tele.Context, s *Session, caption string) error {
	if s.Draft.PendingFile == nil {
		return wizardShowFinalize(c, s)
	}
	s.Draft.PendingFile.ContentText = strings.TrimSpace(caption)
	return wizardAttachPendingFile(c, s)
}

func wizardAttachPendingFile(c tele.Context, s *Session) error {
	step := s.Draft.PendingFile
	s.Draft.PendingFile = nil
	step.Delay = s.Draft.nextStepDelay()
	s.Draft.Steps = append(s.Draft.Steps, *step)
	return wizardShowFinalize(c, s)
}

func wizardShowFinalize(c tele.Context, s *Session) error {
	s.Stage = StageFinalize
	saveSession(c.Sender().ID, s)

	var summary strings.Builder
	fmt.Fprintf(&summary, "Кнопка <b>%s</b>, шагов: <b>%d</b>\n", s.Draft.Label, len(s.Draft.Steps))
	for i, step := range s.Draft.Steps {
		if step.ContentType == contentTypeFile {
			fmt.Fprintf(&summary, "%d. [%s] %s", i+1, step.FileType, shorten(step.ContentText, 40))
		} else {
			fmt.Fprintf(&summary, "%d. %s", i+1, shorten(step.ContentText, 40))
		}
		if step.Delay > 0 {
			fmt.Fprintf(&summary, " (пауза %d сек)", step.Delay)
		}
		summary.WriteByte('\n')
	}
	if s.Draft.PendingDelay > 0 {
		fmt.Fprintf(&summary, "\n⏱ Перед следующим шагом будет пауза %d сек.", s.Draft.PendingDelay)
	}

	return c.Send(summary.String(), buildWizardFinalizeKeyboard(), tele.ModeHTML)
}

func wizardAddAnotherStep(c tele.Context, s *Session) error {
	s.Stage = StageStepContent
	saveSession(c.Sender().ID, s)
	return c.Send("Отправь контент следующего шага — текст или файл:", buildCancelKeyboard())
}

func wizardAskDelay(c tele.Context, s *Session) error {
	s.Stage = StageDelayValue
	saveSession(c.Sender().ID, s)
	return c.Send(
		fmt.Sprintf("Отправь паузу в секундах перед СЛЕДУЮЩИМ шагом (%d..%d):", minStepDelay, maxStepDelay),
		buildCancelKeyboard(),
	)
}

func wizardDelayInput(c tele.Context, s *Session, text string) error {
	delay, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || validateDelay(delay) != nil {
		return c.Send(
			fmt.Sprintf("❌ Нужно целое число от %d до %d. Попробуй еще раз:", minStepDelay, maxStepDelay),
			buildCancelKeyboard(),
		)
	}
	s.Draft.PendingDelay = delay
	return wizardShowFinalize(c, s)
}

// wizardStepBack откатывает мастер на одну стадию: убирает последний
// накопленный шаг, а если шагов нет — возвращает к вводу названия.
func wizardStepBack(c tele.Context, s *Session) error {
	if len(s.Draft.Steps) > 0 {
		s.Draft.Steps = s.Draft.Steps[:len(s.Draft.Steps)-1]
	}
	if len(s.Draft.Steps) > 0 {
		return wizardShowFinalize(c, s)
	}
	s.Stage = StageLabel
	saveSession(c.Sender().ID, s)
	return c.Send("Шаги убраны. Отправь название кнопки заново или отмени:", buildCancelKeyboard())
}

func wizardFinish(c tele.Context, s *Session) error {
	if s.Draft == nil || len(s.Draft.Steps) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "Нужен хотя бы один шаг", ShowAlert: true})
	}

	draft := s.Draft
	id, err := menuManager.CreateButtonWithSteps(draft.Label, draft.ParentID, draft.Steps)
	if err != nil {
		log.Printf("❌ Ошибка сохранения кнопки «%s»: %v", draft.Label, err)
		resetSession(c.Sender().ID)
		return c.Send("❌ Не удалось сохранить кнопку. Попробуй еще раз позже.")
	}

	parentID := draft.ParentID
	resetSession(c.Sender().ID)
	_ = c.Respond(&tele.CallbackResponse{Text: "Сохранено"})

	if parentID != nil {
		parent, err := menuManager.ButtonByID(*parentID)
		if err == nil {
			if err := c.Send(fmt.Sprintf("✅ Кнопка <b>%s</b> добавлена внутрь <b>%s</b> (ID: %d).", draft.Label, parent.Text, id), tele.ModeHTML); err != nil {
				return err
			}
			return showNode(c, parent)
		}
	}
	if err := c.Send(fmt.Sprintf("✅ Кнопка <b>%s</b> добавлена (ID: %d).", draft.Label, id), tele.ModeHTML); err != nil {
		return err
	}
	return showRoot(c)
}

// ==========================================
// ВСТАВКА ШАГА В СУЩЕСТВУЮЩУЮ КНОПКУ
// ==========================================
//
// Двухфазная: сначала контент и позиция, затем явное подтверждение —
// сдвиг существующих шагов не должен случаться по ошибочному тапу.

func startInsertStep(c tele.Context, buttonID uint) error {
	if _, err := menuManager.ButtonByID(buttonID); err != nil {
		return respondNotFound(c, err)
	}
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageInsertContent
	s.TargetButton = buttonID
	saveSession(userID, s)
	return c.Send("Отправь контент нового шага — текст или файл:", buildCancelKeyboard())
}

func insertStepText(c tele.Context, s *Session, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Send("Текст шага пустой. Отправь непустой текст или файл:", buildCancelKeyboard())
	}
	s.Pending = &ButtonStep{ContentType: contentTypeText, ContentText: text}
	return insertAskPosition(c, s)
}

func insertStepMedia(c tele.Context, s *Session, fileID, fileType string) error {
	s.Pending = &ButtonStep{ContentType: contentTypeFile, FileID: fileID, FileType: fileType}
	s.Stage = StageInsertCaption
	saveSession(c.Sender().ID, s)
	return c.Send("Файл принят. Отправь подпись или нажми «Без подписи»:", buildCaptionKeyboard())
}

func insertCaptionInput(c tele.Context, s *Session, caption string) error {
	if s.Pending == nil {
		return insertAskPosition(c, s)
	}
	s.Pending.ContentText = strings.TrimSpace(caption)
	return insertAskPosition(c, s)
}

func insertAskPosition(c tele.Context, s *Session) error {
	count, err := menuManager.CountSteps(s.TargetButton)
	if err != nil {
		return sendStorageError(c, err)
	}
	s.Stage = StageInsertPosition
	saveSession(c.Sender().ID, s)
	return c.Send(
		fmt.Sprintf("На какую позицию вставить шаг? Отправь число от 1 до %d:", count+1),
		buildCancelKeyboard(),
	)
}

func insertPositionInput(c tele.Context, s *Session, text string) error {
	count, err := menuManager.CountSteps(s.TargetButton)
	if err != nil {
		return sendStorageError(c, err)
	}
	pos, convErr := strconv.Atoi(strings.TrimSpace(text))
	if convErr != nil || pos < 1 || pos > count+1 {
		return c.Send(
			fmt.Sprintf("❌ Нужно число от 1 до %d. Попробуй еще раз:", count+1),
			buildCancelKeyboard(),
		)
	}

	s.InsertPos = pos
	s.Stage = StageInsertConfirm
	saveSession(c.Sender().ID, s)

	text = fmt.Sprintf("Вставить шаг на позицию <b>%d</b>?", pos)
	if pos <= count {
		text += fmt.Sprintf("\nШаги %d..%d сдвинутся на одну позицию вниз.", pos, count)
	}
	return c.Send(text, buildConfirmInsertKeyboard(), tele.ModeHTML)
}

func insertConfirm(c tele.Context, s *Session) error {
	if s.Pending == nil || s.InsertPos == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "Нечего вставлять", ShowAlert: true})
	}
	buttonID := s.TargetButton
	if _, err := menuManager.InsertStepAt(buttonID, s.InsertPos, *s.Pending); err != nil {
		log.Printf("❌ Ошибка вставки шага в кнопку %d: %v", buttonID, err)
		resetSession(c.Sender().ID)
		return c.Send("❌ Не удалось вставить шаг.")
	}
	resetSession(c.Sender().ID)
	_ = c.Respond(&tele.CallbackResponse{Text: "Шаг вставлен"})
	return showStepsMenu(c, buttonID)
}

func insertAbort(c tele.Context, s *Session) error {
	buttonID := s.TargetButton
	resetSession(c.Sender().ID)
	_ = c.Respond(&tele.CallbackResponse{Text: "Отменено"})
	return showStepsMenu(c, buttonID)
}

// ==========================================
// РЕДАКТИРОВАНИЕ ШАГОВ И КНОПОК
// ==========================================

func startEditStep(c tele.Context, buttonID uint, stepNumber int) error {
	step, err := menuManager.Step(buttonID, stepNumber)
	if err != nil {
		return respondNotFound(c, err)
	}
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageEditStepContent
	s.TargetButton = buttonID
	s.TargetStep = stepNumber
	saveSession(userID, s)

	current := step.ContentText
	if step.ContentType == contentTypeFile {
		current = fmt.Sprintf("[%s] %s", step.FileType, step.ContentText)
	}
	return c.Send(
		fmt.Sprintf("Текущий контент шага %d: <b>%s</b>\n\nОтправь новый текст или файл (подпись берется из подписи к файлу):", stepNumber, shorten(current, 200)),
		buildCancelKeyboard(), tele.ModeHTML,
	)
}

func editStepText(c tele.Context, s *Session, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Send("Текст пустой. Отправь непустой текст или файл:", buildCancelKeyboard())
	}
	return editStepApply(c, s, text, "", "")
}

func editStepMedia(c tele.Context, s *Session, fileID, fileType, caption string) error {
	return editStepApply(c, s, strings.TrimSpace(caption), fileID, fileType)
}

func editStepApply(c tele.Context, s *Session, text, fileID, fileType string) error {
	buttonID, stepNumber := s.TargetButton, s.TargetStep
	if err := menuManager.UpdateStepContent(buttonID, stepNumber, text, fileID, fileType); err != nil {
		if errors.Is(err, ErrNotFound) {
			return respondNotFound(c, err)
		}
		return sendStorageError(c, err)
	}
	resetSession(c.Sender().ID)
	if err := c.Send(fmt.Sprintf("✅ Шаг %d обновлён.", stepNumber)); err != nil {
		return err
	}
	return showStepsMenu(c, buttonID)
}

func startEditStepDelay(c tele.Context, buttonID uint, stepNumber int) error {
	step, err := menuManager.Step(buttonID, stepNumber)
	if err != nil {
		return respondNotFound(c, err)
	}
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageStepDelay
	s.TargetButton = buttonID
	s.TargetStep = stepNumber
	saveSession(userID, s)
	return c.Send(
		fmt.Sprintf("Текущая пауза перед шагом %d: <b>%d сек</b>.\nОтправь новое значение (%d..%d):",
			stepNumber, step.Delay, minStepDelay, maxStepDelay),
		buildCancelKeyboard(), tele.ModeHTML,
	)
}

func editStepDelayInput(c tele.Context, s *Session, text string) error {
	delay, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || validateDelay(delay) != nil {
		return c.Send(
			fmt.Sprintf("❌ Нужно целое число от %d до %d. Попробуй еще раз:", minStepDelay, maxStepDelay),
			buildCancelKeyboard(),
		)
	}
	buttonID, stepNumber := s.TargetButton, s.TargetStep
	if err := menuManager.UpdateStepDelay(buttonID, stepNumber, delay); err != nil {
		if errors.Is(err, ErrNotFound) {
			return respondNotFound(c, err)
		}
		return sendStorageError(c, err)
	}
	resetSession(c.Sender().ID)
	if err := c.Send(fmt.Sprintf("✅ Пауза шага %d теперь %d сек.", stepNumber, delay)); err != nil {
		return err
	}
	return showStepsMenu(c, buttonID)
}

func startRename(c tele.Context, buttonID uint) error {
	btn, err := menuManager.ButtonByID(buttonID)
	if err != nil {
		return respondNotFound(c, err)
	}
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageRename
	s.TargetButton = buttonID
	saveSession(userID, s)
	return c.Send(
		fmt.Sprintf("Текущее название: <b>%s</b>\nОтправь новое название (до %d символов):", btn.Text, maxLabelLen),
		buildCancelKeyboard(), tele.ModeHTML,
	)
}

func renameInput(c tele.Context, s *Session, text string) error {
	if err := menuManager.UpdateButtonText(s.TargetButton, text); err != nil {
		if errors.Is(err, ErrNotFound) {
			return respondNotFound(c, err)
		}
		if errors.Is(err, ErrLabelTooLong) || errors.Is(err, ErrEmptyLabel) {
			return c.Send(fmt.Sprintf("❌ %v. Попробуй еще раз:", err), buildCancelKeyboard())
		}
		return sendStorageError(c, err)
	}
	buttonID := s.TargetButton
	resetSession(c.Sender().ID)
	if err := c.Send(fmt.Sprintf("✅ Название изменено на: <b>%s</b>", strings.TrimSpace(text)), tele.ModeHTML); err != nil {
		return err
	}
	btn, err := menuManager.ButtonByID(buttonID)
	if err != nil {
		return showRoot(c)
	}
	return showNode(c, btn)
}

func startEditBody(c tele.Context, buttonID uint) error {
	btn, err := menuManager.ButtonByID(buttonID)
	if err != nil {
		return respondNotFound(c, err)
	}
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageEditBody
	s.TargetButton = buttonID
	saveSession(userID, s)

	current := btn.MessageText
	if current == "" {
		current = "не задан"
	}
	return c.Send(
		fmt.Sprintf("Текущий текст сообщения: <b>%s</b>\nОтправь новый текст:", shorten(current, 300)),
		buildCancelKeyboard(), tele.ModeHTML,
	)
}

func editBodyInput(c tele.Context, s *Session, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Send("Текст пустой. Отправь непустой текст:", buildCancelKeyboard())
	}
	if err := menuManager.UpdateButtonMessageText(s.TargetButton, text); err != nil {
		if errors.Is(err, ErrNotFound) {
			return respondNotFound(c, err)
		}
		return sendStorageError(c, err)
	}
	buttonID := s.TargetButton
	resetSession(c.Sender().ID)
	if err := c.Send("✅ Текст сообщения изменён."); err != nil {
		return err
	}
	btn, err := menuManager.ButtonByID(buttonID)
	if err != nil {
		return showRoot(c)
	}
	return showNode(c, btn)
}

func startEditWelcome(c tele.Context) error {
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageWelcome
	saveSession(userID, s)
	return c.Send(
		fmt.Sprintf("Текущее приветствие:\n\n<b>%s</b>\n\nОтправь новый текст:", menuManager.GetStartMessage()),
		buildCancelKeyboard(), tele.ModeHTML,
	)
}

func editWelcomeInput(c tele.Context, s *Session, text string) error {
	if err := menuManager.UpdateStartMessage(text); err != nil {
		return c.Send(fmt.Sprintf("❌ %v. Попробуй еще раз:", err), buildCancelKeyboard())
	}
	resetSession(c.Sender().ID)
	if err := c.Send("✅ Приветствие обновлено."); err != nil {
		return err
	}
	return showRoot(c)
}

// ==========================================
// ОБЩИЕ ОТВЕТЫ ОБ ОШИБКАХ
// ==========================================

func respondNotFound(c tele.Context, err error) error {
	resetSession(c.Sender().ID)
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Не найдено", ShowAlert: true})
	}
	return c.Send("❌ Кнопка или шаг не найдены. Возможно, их уже удалили.")
}

func sendStorageError(c tele.Context, err error) error {
	log.Printf("❌ Ошибка БД: %v", err)
	resetSession(c.Sender().ID)
	return c.Send("❌ Что-то пошло не так с хранилищем. Попробуй еще раз позже.")
}
