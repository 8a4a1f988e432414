package main

import "github.com/v01cee/search-fresh-admin-info-neiro-bot/internal/app"

// Офлайн-аудит базы: файловые шаги без file_id и пустые кнопки.
// Выходит с кодом 1, если найдены проблемы.
func main() {
	app.RunMissingMediaAudit()
}
