package app

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type healthInfo struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	Buttons    int64  `json:"buttons"`
	Database   string `json:"database"`
	Time       string `json:"time"`
}

func startHealthServer(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		gor, alloc, _, sys := runtimeStats()

		dbStatus := "ok"
		var buttons int64
		if err := menuManager.DB.Model(&MenuButton{}).Count(&buttons).Error; err != nil {
			dbStatus = "error: " + err.Error()
		}

		info := healthInfo{
			Status:     "ok",
			Uptime:     formatDuration(time.Since(appStartedAt)),
			Goroutines: gor,
			Alloc:      formatBytes(alloc),
			Sys:        formatBytes(sys),
			Buttons:    buttons,
			Database:   dbStatus,
			Time:       time.Now().Format(time.RFC3339),
		}
		if dbStatus != "ok" {
			info.Status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})
	log.Printf("✅ Health endpoint: %s/health", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("⚠️ Health server остановлен: %v", err)
	}
}
