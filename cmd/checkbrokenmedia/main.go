package main

import "github.com/v01cee/search-fresh-admin-info-neiro-bot/internal/app"

// Проверяет все file_id из базы через Telegram API и печатает битые ссылки.
// Требует BOT_TOKEN. Выходит с кодом 1, если найдены проблемы.
func main() {
	app.RunBrokenMediaAudit()
}
