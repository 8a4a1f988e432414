package app

import (
	"fmt"
	"log"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// ==========================================
// ПОИСК (пользовательский сценарий)
// ==========================================

func startSearch(c tele.Context) error {
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageSearchQuery
	saveSession(userID, s)
	return c.Send("🔍 Введи текст для поиска:")
}

func runSearch(c tele.Context, s *Session, query string) error {
	query = strings.TrimSpace(query)

	if _, err := validateQuery(query); err != nil {
		// Стадия сохраняется, запрос можно прислать заново
		return c.Send(fmt.Sprintf("%v. Введи текст для поиска:", err))
	}

	progress, progressErr := c.Bot().Send(c.Chat(), "🔍 Поиск начат, это может занять некоторое время...")

	userMsg, results, err := searchManager.SearchButtons(menuManager, query)

	if progressErr == nil {
		_ = c.Bot().Delete(progress)
	}

	if err != nil {
		// Модель недоступна: откатываемся на поиск по подстроке
		fallback, fbErr := menuManager.SearchButtonsByText(query)
		if fbErr != nil || len(fallback) == 0 {
			resetSession(c.Sender().ID)
			return c.Send("❌ Ошибка при поиске. Попробуй позже.")
		}
		log.Printf("⚠️ Умный поиск недоступен (%v), отдаю поиск по подстроке", err)
		results = dedupeByLabel(fallback)
	}

	if userMsg != "" {
		// Ответ модели "не понял" или пасхалка: стадию не сбрасываем,
		// запрос можно перефразировать
		return c.Send(userMsg, buildBackToRootKeyboard())
	}

	resetSession(c.Sender().ID)

	if len(results) == 0 {
		return c.Send(
			fmt.Sprintf("❌ По запросу <b>«%s»</b> ничего не найдено.\nПопробуй другой запрос или более общие слова.", query),
			buildBackToRootKeyboard(), tele.ModeHTML,
		)
	}

	shown := results
	if len(shown) > 10 {
		shown = shown[:10]
	}

	text := fmt.Sprintf("🔍 Найдено кнопок: <b>%d</b>\n\n", len(results))
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, btn := range shown {
		parentInfo := ""
		if btn.ParentID != nil {
			if parent, err := menuManager.ButtonByID(*btn.ParentID); err == nil {
				parentInfo = fmt.Sprintf(" (внутри «%s»)", parent.Text)
			}
		}
		text += fmt.Sprintf("• <b>%s</b>%s\n", btn.Text, parentInfo)
		rows = append(rows, markup.Row(
			dataButton("📌 "+btn.Text, ensureShortCallback(btn.Callback, btn.ID)),
		))
	}
	if len(results) > 10 {
		text += fmt.Sprintf("\n... и ещё %d кнопок", len(results)-10)
	}
	rows = append(rows, markup.Row(dataButton("◀️ Назад", cbRoot)))
	markup.Inline(rows...)

	return c.Send(text, markup, tele.ModeHTML)
}

// ==========================================
// ОБРАТНАЯ СВЯЗЬ
// ==========================================

func startFeedback(c tele.Context) error {
	userID := c.Sender().ID
	s := resetSession(userID)
	s.Stage = StageFeedback
	saveSession(userID, s)
	return c.Send("✍️ Сообщи, если что-то не нашел или что-то работает не так.\n\n" +
		"Можешь отправить текст, голос, фото или документ.")
}

// relayFeedback пересылает сообщение пользователя в чат операторов.
// Любая ошибка доставки логируется и глотается: пользователь в ответ
// всегда получает благодарность.
func relayFeedback(c tele.Context) error {
	user := c.Sender()
	chat := c.Chat()

	resetSession(user.ID)

	if config.FeedbackChatID == 0 {
		log.Println("⚠️ FEEDBACK_CHAT_ID не задан, обратная связь потеряна")
		_ = c.Send("⚠️ Обратная связь временно недоступна для администраторов.")
	} else {
		username := "—"
		if user.Username != "" {
			username = "@" + user.Username
		}
		header := fmt.Sprintf(
			"📩 Новая обратная связь от пользователя:\n"+
				"👤 User ID: <code>%d</code>\n"+
				"🔗 Username: %s\n"+
				"👤 Имя: %s %s\n"+
				"💬 Chat ID: <code>%d</code>",
			user.ID, username, user.FirstName, user.LastName, chat.ID,
		)

		target := &tele.Chat{ID: config.FeedbackChatID}
		err := sendWithRetry(3, 500*time.Millisecond, func() error {
			if _, err := c.Bot().Send(target, header, tele.ModeHTML); err != nil {
				return err
			}
			_, err := c.Bot().Forward(target, c.Message())
			return err
		})
		if err != nil {
			log.Printf("⚠️ Не удалось переслать обратную связь в чат %d: %v", config.FeedbackChatID, err)
			_ = c.Send("⚠️ Не удалось отправить обратную связь администратору, но твоё сообщение получено.")
		}
	}

	if err := c.Send("Молодец, ты сделал полезное дело!"); err != nil {
		return err
	}
	return showRoot(c)
}
