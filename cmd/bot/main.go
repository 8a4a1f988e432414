package main

import "github.com/v01cee/search-fresh-admin-info-neiro-bot/internal/app"

func main() {
	app.Run()
}
