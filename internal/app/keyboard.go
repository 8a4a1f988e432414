package app

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// ==========================================
// CALLBACK-ТОКЕНЫ
// ==========================================

// Закрытый набор команд callback-токенов. Токен — это "тег" или
// "тег:аргумент[:аргумент]", разбор отделен от укорачивания.
const (
	cbOpen      = "id"      // открыть кнопку: id:<N>
	cbHash      = "h"       // хеш-токен для унаследованных длинных callback
	cbRoot      = "root"    // вернуться в главное меню
	cbSearch    = "search"  // начать поиск
	cbFeedback  = "fb"      // обратная связь
	cbNoop      = "noop"    // пустышка (заглушка для неактивных кнопок)
	cbStats     = "stats"   // статистика (админ)
	cbWelcome   = "welcome" // изменить приветствие (админ)
	cbModeUser  = "umode"   // предпросмотр глазами пользователя
	cbModeAdmin = "amode"   // вернуть админские кнопки

	cbAdd       = "add"    // добавить кнопку: add:<parentID|0>
	cbRename    = "rn"     // изменить название: rn:<N>
	cbEditBody  = "msg"    // изменить текст сообщения: msg:<N>
	cbDelete    = "del"    // удалить кнопку (запрос): del:<N>
	cbDeleteOK  = "delok"  // удалить кнопку (подтверждение): delok:<N>
	cbSteps     = "steps"  // управление шагами: steps:<N>
	cbStepIns   = "sins"   // вставить шаг по позиции: sins:<N>
	cbStepEdit  = "sedit"  // изменить шаг: sedit:<N>:<pos>
	cbStepDel   = "sdel"   // удалить шаг: sdel:<N>:<pos>
	cbStepDelay = "sdelay" // изменить задержку шага: sdelay:<N>:<pos>

	cbCancel     = "cancel" // отменить текущий сценарий
	cbWizAdd     = "wadd"   // мастер: еще один шаг
	cbWizDelay   = "wdelay" // мастер: пауза перед следующим шагом
	cbWizBack    = "wback"  // мастер: шаг назад
	cbWizDone    = "wdone"  // мастер: завершить и сохранить
	cbWizSkipCap = "wskip"  // мастер: файл без подписи
	cbInsertOK   = "insok"  // подтвердить вставку по позиции
	cbInsertNo   = "insno"  // отменить вставку по позиции
)

func idCallback(id uint) string {
	return fmt.Sprintf("%s:%d", cbOpen, id)
}

func parseIDCallback(data string) (uint, bool) {
	if !strings.HasPrefix(data, cbOpen+":") {
		return 0, false
	}
	id, err := strconv.ParseUint(data[len(cbOpen)+1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// parseCallback разбивает токен на команду и аргументы.
func parseCallback(data string) (tag string, args []string) {
	data = strings.TrimPrefix(data, "\f")
	data = strings.TrimSpace(data)
	parts := strings.Split(data, ":")
	return parts[0], parts[1:]
}

// ensureShortCallback гарантирует, что токен не длиннее 64 байт.
// Для кнопок с известным ID всегда предпочитается форма id:N — она
// короткая и бесколлизионная. Хеш остается запасным вариантом для
// токенов без ID.
func ensureShortCallback(data string, id uint) string {
	if id != 0 {
		if strings.HasPrefix(data, cbOpen+":") && len(data) <= maxCallbackBytes {
			return data
		}
		return idCallback(id)
	}
	if data == "" {
		return cbNoop
	}
	if len(data) <= maxCallbackBytes {
		return data
	}
	return hashCallback(data)
}

func hashCallback(data string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(data))
	return fmt.Sprintf("%s:%x", cbHash, h.Sum64())
}

// ==========================================
// КЛАВИАТУРЫ
// ==========================================

func dataButton(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

func column(buttons ...tele.Btn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, markup.Row(b))
	}
	markup.Inline(rows...)
	return markup
}

// buildRootKeyboard — главное меню: кнопки корневого уровня столбиком,
// затем поиск и обратная связь, затем админские действия (если не включен
// режим предпросмотра).
func buildRootKeyboard(mm *MenuManager, admin, userMode bool) (*tele.ReplyMarkup, error) {
	buttons, err := mm.ButtonsByParent(nil)
	if err != nil {
		return nil, err
	}

	var btns []tele.Btn
	for _, b := range buttons {
		btns = append(btns, dataButton(b.Text, b.Callback))
	}
	btns = append(btns, dataButton("🔍 Поиск", cbSearch))
	btns = append(btns, dataButton("✍️ Обратная связь", cbFeedback))

	if admin && !userMode {
		btns = append(btns,
			dataButton("➕ Добавить кнопку", cbAdd+":0"),
			dataButton("✏️ Изменить приветствие", cbWelcome),
			dataButton("📊 Статистика", cbStats),
			dataButton("👤 Режим пользователя", cbModeUser),
		)
	}
	if admin && userMode {
		btns = append(btns, dataButton("🛠 Вернуть режим админа", cbModeAdmin))
	}
	return column(btns...), nil
}

// buildNodeKeyboard — меню кнопки: дочерние кнопки, админские действия
// над этой кнопкой и "Назад" к родителю или в корень.
func buildNodeKeyboard(mm *MenuManager, btn *MenuButton, admin, userMode bool) (*tele.ReplyMarkup, error) {
	children, err := mm.ButtonsByParent(&btn.ID)
	if err != nil {
		return nil, err
	}

	var btns []tele.Btn
	for _, child := range children {
		btns = append(btns, dataButton(child.Text, child.Callback))
	}

	if admin && !userMode {
		btns = append(btns,
			dataButton("➕ Добавить кнопку", fmt.Sprintf("%s:%d", cbAdd, btn.ID)),
			dataButton("✏️ Изменить название", fmt.Sprintf("%s:%d", cbRename, btn.ID)),
			dataButton("✏️ Изменить текст", fmt.Sprintf("%s:%d", cbEditBody, btn.ID)),
			dataButton("📋 Шаги", fmt.Sprintf("%s:%d", cbSteps, btn.ID)),
			dataButton("🗑️ Удалить кнопку", fmt.Sprintf("%s:%d", cbDelete, btn.ID)),
		)
	}

	if btn.ParentID != nil {
		btns = append(btns, dataButton("◀️ Назад", idCallback(*btn.ParentID)))
	} else {
		btns = append(btns, dataButton("◀️ Назад", cbRoot))
	}
	return column(btns...), nil
}

// buildStepsKeyboard — управление шагами кнопки: на каждый шаг строка
// действий, плюс вставка нового шага и возврат к кнопке.
func buildStepsKeyboard(btn *MenuButton, steps []ButtonStep) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, s := range steps {
		label := fmt.Sprintf("Шаг %d", s.StepNumber)
		rows = append(rows, markup.Row(
			dataButton(label+" ✏️", fmt.Sprintf("%s:%d:%d", cbStepEdit, btn.ID, s.StepNumber)),
			dataButton("⏱", fmt.Sprintf("%s:%d:%d", cbStepDelay, btn.ID, s.StepNumber)),
			dataButton("🗑️", fmt.Sprintf("%s:%d:%d", cbStepDel, btn.ID, s.StepNumber)),
		))
	}
	rows = append(rows,
		markup.Row(dataButton("➕ Вставить шаг", fmt.Sprintf("%s:%d", cbStepIns, btn.ID))),
		markup.Row(dataButton("◀️ Назад", idCallback(btn.ID))),
	)
	markup.Inline(rows...)
	return markup
}

// buildWizardFinalizeKeyboard — меню мастера после добавления шага.
func buildWizardFinalizeKeyboard() *tele.ReplyMarkup {
	return column(
		dataButton("➕ Еще шаг", cbWizAdd),
		dataButton("⏱ Пауза перед следующим шагом", cbWizDelay),
		dataButton("↩️ Назад", cbWizBack),
		dataButton("✅ Завершить", cbWizDone),
		dataButton("❌ Отмена", cbCancel),
	)
}

func buildCancelKeyboard() *tele.ReplyMarkup {
	return column(dataButton("❌ Отмена", cbCancel))
}

func buildCaptionKeyboard() *tele.ReplyMarkup {
	return column(
		dataButton("Без подписи", cbWizSkipCap),
		dataButton("❌ Отмена", cbCancel),
	)
}

func buildConfirmInsertKeyboard() *tele.ReplyMarkup {
	return column(
		dataButton("✅ Подтвердить", cbInsertOK),
		dataButton("❌ Отмена", cbInsertNo),
	)
}

func buildBackToRootKeyboard() *tele.ReplyMarkup {
	return column(dataButton("◀️ Назад", cbRoot))
}
