package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v3"
)

// ==========================================
// КОНФИГУРАЦИЯ
// ==========================================

type Config struct {
	Token          string  `json:"token"`
	AdminIDs       []int64 `json:"admin_ids"`
	FeedbackChatID int64   `json:"feedback_chat_id"`
	BotAPIUrl      string  `json:"bot_api_url"`

	// Postgres; если DBHost пустой, используется локальный SQLite
	DBHost     string `json:"db_host"`
	DBPort     int    `json:"db_port"`
	DBName     string `json:"db_name"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`

	DeepSeekAPIKey string `json:"deepseek_api_key"`
	AIServiceURL   string `json:"ai_service_url"`
}

// ==========================================
// ГЛОБАЛЬНЫЕ ПЕРЕМЕННЫЕ (Общие для всех файлов)
// ==========================================

var (
	config        Config
	menuManager   *MenuManager
	searchManager *SearchManager
)

func isAdmin(id int64) bool {
	for _, adminID := range config.AdminIDs {
		if adminID == id {
			return true
		}
	}
	return false
}

// ==========================================
// MAIN
// ==========================================

func Run() {
	initAppLayout()
	InitLogger()
	defer CloseLogger()
	markStart()

	// 1. Загрузка конфигурации
	if err := loadJSON(configFilePath, &config); err != nil {
		log.Printf("⚠️ Файл %s не найден, используем только переменные окружения: %v", configFilePath, err)
	}
	applyEnvOverrides(&config)

	if config.Token == "" {
		log.Fatalf("❌ Критическая ошибка: BOT_TOKEN не задан (config.json или переменная окружения)")
	}
	if len(config.AdminIDs) == 0 {
		log.Fatalf("❌ Критическая ошибка: ADMIN_IDS не задан, бот без админов бесполезен")
	}
	if config.AIServiceURL == "" {
		config.AIServiceURL = defaultAIServiceURL
	}

	// 2. Подключение БД (Postgres при заданном DB_HOST, иначе SQLite)
	var err error
	menuManager, err = NewMenuManager(&config)
	if err != nil {
		log.Fatalf("❌ Критическая ошибка БД: %v", err)
	}
	if config.DBHost != "" {
		log.Printf("✅ БД подключена (Postgres %s:%d/%s).", config.DBHost, config.DBPort, config.DBName)
	} else {
		log.Println("✅ БД подключена (SQLite, WAL).")
	}

	// 3. Поисковый клиент (DeepSeek-совместимое API)
	searchManager = NewSearchManager(config.DeepSeekAPIKey, config.AIServiceURL)
	if config.DeepSeekAPIKey == "" {
		log.Println("⚠️ DEEPSEEK_API_KEY не задан. Умный поиск будет отвечать ошибкой.")
	} else {
		log.Println("✅ Поисковый клиент настроен.")
	}

	// 4. Настройки бота
	log.Println("🔄 Попытка подключения к Telegram API...")

	pref := tele.Settings{
		Token: config.Token,
		URL:   config.BotAPIUrl,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
		OnError: func(err error, c tele.Context) {
			log.Printf("❌ Ошибка в Bot Poller: %v", err)
			if c != nil && c.Chat() != nil {
				log.Printf("   -> В чате: %v", c.Chat().ID)
			}
		},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("❌ КРИТИЧЕСКАЯ ОШИБКА при создании бота (проверьте токен или доступ к API): %v", err)
	}

	// 5. Регистрация всех хендлеров (из handlers.go)
	RegisterHandlers(b)

	// 6. Фоновые задачи
	safeGo("housekeeping", startHousekeeping)
	if addr := os.Getenv("FRESHBOT_HEALTH_ADDR"); addr != "" {
		safeGo("health-server", func() { startHealthServer(addr) })
	}

	// Сброс вебхука и зависших апдейтов (важно при переезде сервера)
	log.Println("🧹 Сброс вебхука и удаление старых зависших сообщений...")
	if err := b.RemoveWebhook(true); err != nil {
		log.Printf("⚠️ Предупреждение: Не удалось сбросить вебхук (возможно, ошибка сети): %v", err)
	} else {
		log.Println("✅ Вебхук удален, очередь очищена. Бот готов к работе.")
	}

	fmt.Printf("🚀 Бот запущен. Admins: %d. Feedback chat: %d\n", len(config.AdminIDs), config.FeedbackChatID)

	safeGo("bot", func() { b.Start() })

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("⏹ Завершение работы...")
	b.Stop()
	if err := menuManager.CloseDB(); err != nil {
		log.Printf("⚠️ Ошибка закрытия БД: %v", err)
	}
}

func loadJSON(filename string, target interface{}) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(file, target)
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("ADMIN_IDS"); v != "" {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if id, err := strconv.ParseInt(part, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			cfg.AdminIDs = ids
		}
	}
	if v := os.Getenv("FEEDBACK_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.FeedbackChatID = id
		}
	}
	if v := os.Getenv("FRESHBOT_BOT_API_URL"); v != "" {
		cfg.BotAPIUrl = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DBHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DBPort = port
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DBUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DBPassword = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		cfg.DeepSeekAPIKey = v
	}
	if v := os.Getenv("AI_SERVICE_URL"); v != "" {
		cfg.AIServiceURL = v
	}
}

// startHousekeeping раз в час проверяет, не пора ли ротировать логи.
func startHousekeeping() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		RotateLogsIfNeeded()
	}
}
