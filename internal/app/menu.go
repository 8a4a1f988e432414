package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ==========================================
// СТРУКТУРЫ ДАННЫХ
// ==========================================

const (
	maxLabelLen      = 35 // максимум символов в названии кнопки
	maxCallbackBytes = 64 // лимит Telegram на callback_data

	contentTypeText = "text"
	contentTypeFile = "file"
)

var (
	ErrLabelTooLong = fmt.Errorf("название кнопки длиннее %d символов", maxLabelLen)
	ErrEmptyLabel   = errors.New("название кнопки пустое")
	ErrNotFound     = errors.New("кнопка не найдена")
)

// MenuButton — пункт меню. ParentID == nil означает корневой уровень.
type MenuButton struct {
	ID          uint   `gorm:"primaryKey"`
	Text        string `gorm:"not null"`
	Callback    string `gorm:"uniqueIndex;not null"`
	MessageText string
	ParentID    *uint `gorm:"index"`
	FileID      string
	FileType    string
	Delay       int `gorm:"default:0"` // устаревшее поле, задержка теперь на шагах
	CreatedAt   time.Time
}

// ButtonStep — один шаг контента кнопки. Номера шагов плотные: 1..N.
type ButtonStep struct {
	ID          uint   `gorm:"primaryKey"`
	ButtonID    uint   `gorm:"index;not null"`
	StepNumber  int    `gorm:"not null"`
	ContentType string `gorm:"not null"`
	ContentText string
	FileID      string
	FileType    string
	Delay       int `gorm:"default:0"` // секунды паузы перед отправкой шага, 0..10
	CreatedAt   time.Time
}

// StartMessage — единственная строка (id=1) с приветствием корневого меню.
type StartMessage struct {
	ID        uint   `gorm:"primaryKey"`
	Text      string `gorm:"not null"`
	UpdatedAt time.Time
}

// ButtonView — факт открытия кнопки пользователем, для статистики.
type ButtonView struct {
	ID        uint `gorm:"primaryKey"`
	ButtonID  uint `gorm:"index"`
	UserID    int64
	CreatedAt time.Time `gorm:"index"`
}

type MenuManager struct {
	DB *gorm.DB
}

const defaultStartMessage = "Руководитель отдела оценки и Руководитель отдела продаж\n" +
	"компании FRESH  это лидеры команды профессионалов!\n\n" +
	"✊Играющий тренер\n" +
	"✊Лучший специалист\n" +
	"✊Эксперт по продукту\n" +
	"✊Наставник\n" +
	"✊Искатель кадров\n" +
	"✊Психолог и мотиватор\n\n" +
	"Но даже сильному лидеру и профессионалу, порой\n" +
	"нужна поддержка!\n" +
	"Поэтому мы создали этого FRESHBOTа, который\n" +
	"поможет тебе в повседневной работе с командой,\n" +
	"целями и процессами! 😉"

// ==========================================
// ИНИЦИАЛИЗАЦИЯ
// ==========================================

func NewMenuManager(cfg *Config) (*MenuManager, error) {
	var dialector gorm.Dialector
	if cfg != nil && cfg.DBHost != "" {
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPassword)
		dialector = postgres.Open(dsn)
	} else {
		if err := os.MkdirAll(filepath.Dir(dbFilePath), 0755); err != nil {
			return nil, fmt.Errorf("создание директории БД: %w", err)
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", dbFilePath)
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("подключение к БД: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(2 * time.Hour)
	}

	mm := &MenuManager{DB: db}
	if err := mm.migrate(); err != nil {
		return nil, err
	}
	return mm, nil
}

// NewMenuManagerInMemory — БД в памяти для тестов.
func NewMenuManagerInMemory() (*MenuManager, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	mm := &MenuManager{DB: db}
	if err := mm.migrate(); err != nil {
		return nil, err
	}
	return mm, nil
}

// migrate — аддитивные миграции: AutoMigrate добавляет недостающие таблицы
// и колонки, существующие данные не трогает.
func (mm *MenuManager) migrate() error {
	if err := mm.DB.AutoMigrate(&MenuButton{}, &ButtonStep{}, &StartMessage{}, &ButtonView{}); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}

	var start StartMessage
	if result := mm.DB.First(&start, 1); result.Error != nil {
		mm.DB.Create(&StartMessage{ID: 1, Text: defaultStartMessage})
	}
	return nil
}

func (mm *MenuManager) CloseDB() error {
	if mm == nil || mm.DB == nil {
		return nil
	}
	sqlDB, err := mm.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ==========================================
// ПРИВЕТСТВИЕ
// ==========================================

func (mm *MenuManager) GetStartMessage() string {
	var start StartMessage
	if err := mm.DB.First(&start, 1).Error; err != nil {
		return defaultStartMessage
	}
	return start.Text
}

func (mm *MenuManager) UpdateStartMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("текст приветствия пустой")
	}
	return mm.DB.Model(&StartMessage{}).Where("id = ?", 1).
		Updates(map[string]interface{}{"text": text, "updated_at": time.Now()}).Error
}

// ==========================================
// CRUD КНОПОК
// ==========================================

func validateLabel(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyLabel
	}
	if len([]rune(text)) > maxLabelLen {
		return ErrLabelTooLong
	}
	return nil
}

// AddButton создает кнопку и присваивает ей callback вида id:N.
// Если кнопка с таким же названием уже есть на этом уровне, возвращает её ID.
func (mm *MenuManager) AddButton(text, messageText string, parentID *uint) (uint, error) {
	if err := validateLabel(text); err != nil {
		return 0, err
	}
	text = strings.TrimSpace(text)

	var id uint
	err := mm.DB.Transaction(func(tx *gorm.DB) error {
		var existing MenuButton
		q := tx.Where("text = ?", text)
		if parentID != nil {
			q = q.Where("parent_id = ?", *parentID)
		} else {
			q = q.Where("parent_id IS NULL")
		}
		if err := q.First(&existing).Error; err == nil {
			id = existing.ID
			return nil
		}

		btn := MenuButton{
			Text:        text,
			Callback:    fmt.Sprintf("tmp:%d", time.Now().UnixNano()),
			MessageText: messageText,
			ParentID:    parentID,
		}
		if err := tx.Create(&btn).Error; err != nil {
			return err
		}
		// Короткий callback на основе ID: всегда уникален и влезает в 64 байта
		if err := tx.Model(&MenuButton{}).Where("id = ?", btn.ID).
			Update("callback", idCallback(btn.ID)).Error; err != nil {
			return err
		}
		id = btn.ID
		return nil
	})
	return id, err
}

// CreateButtonWithSteps — коммит мастера создания: кнопка и все накопленные
// шаги пишутся одной транзакцией, частичное состояние невозможно.
func (mm *MenuManager) CreateButtonWithSteps(text string, parentID *uint, steps []ButtonStep) (uint, error) {
	if err := validateLabel(text); err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, errors.New("нужен хотя бы один шаг")
	}
	text = strings.TrimSpace(text)

	var id uint
	err := mm.DB.Transaction(func(tx *gorm.DB) error {
		btn := MenuButton{
			Text:     text,
			Callback: fmt.Sprintf("tmp:%d", time.Now().UnixNano()),
			ParentID: parentID,
		}
		if err := tx.Create(&btn).Error; err != nil {
			return err
		}
		if err := tx.Model(&MenuButton{}).Where("id = ?", btn.ID).
			Update("callback", idCallback(btn.ID)).Error; err != nil {
			return err
		}
		for i := range steps {
			step := steps[i]
			step.ID = 0
			step.ButtonID = btn.ID
			step.StepNumber = i + 1
			if i == 0 {
				step.Delay = 0 // первый шаг всегда без паузы
			}
			if err := tx.Create(&step).Error; err != nil {
				return err
			}
		}
		id = btn.ID
		return nil
	})
	return id, err
}

// ButtonsByParent возвращает кнопки уровня в порядке создания.
// parentID == nil — корневой уровень.
func (mm *MenuManager) ButtonsByParent(parentID *uint) ([]MenuButton, error) {
	var buttons []MenuButton
	q := mm.DB.Order("id")
	if parentID != nil {
		q = q.Where("parent_id = ?", *parentID)
	} else {
		q = q.Where("parent_id IS NULL")
	}
	if err := q.Find(&buttons).Error; err != nil {
		return nil, err
	}
	for i := range buttons {
		mm.healCallback(&buttons[i])
	}
	return buttons, nil
}

func (mm *MenuManager) ButtonByID(id uint) (*MenuButton, error) {
	var btn MenuButton
	if err := mm.DB.First(&btn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	mm.healCallback(&btn)
	return &btn, nil
}

// ButtonByCallback находит кнопку по callback-токену. Токены вида id:N
// резолвятся напрямую по ID, остальное ищется по полю callback
// (наследие старых записей).
func (mm *MenuManager) ButtonByCallback(callback string) (*MenuButton, error) {
	if id, ok := parseIDCallback(callback); ok {
		return mm.ButtonByID(id)
	}
	var btn MenuButton
	if err := mm.DB.Where("callback = ?", callback).First(&btn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	mm.healCallback(&btn)
	return &btn, nil
}

// healCallback переписывает унаследованные длинные callback-токены на id:N.
func (mm *MenuManager) healCallback(btn *MenuButton) {
	short := ensureShortCallback(btn.Callback, btn.ID)
	if short != btn.Callback {
		if err := mm.DB.Model(&MenuButton{}).Where("id = ?", btn.ID).
			Update("callback", short).Error; err != nil {
			log.Printf("⚠️ Не удалось обновить callback кнопки %d: %v", btn.ID, err)
			return
		}
		btn.Callback = short
	}
}

func (mm *MenuManager) UpdateButtonText(id uint, text string) error {
	if err := validateLabel(text); err != nil {
		return err
	}
	return mm.mustUpdate(id, map[string]interface{}{"text": strings.TrimSpace(text)})
}

func (mm *MenuManager) UpdateButtonMessageText(id uint, messageText string) error {
	return mm.mustUpdate(id, map[string]interface{}{"message_text": messageText})
}

func (mm *MenuManager) UpdateButtonFile(id uint, fileID, fileType string) error {
	return mm.mustUpdate(id, map[string]interface{}{"file_id": fileID, "file_type": fileType})
}

func (mm *MenuManager) RemoveButtonFile(id uint) error {
	return mm.mustUpdate(id, map[string]interface{}{"file_id": "", "file_type": ""})
}

func (mm *MenuManager) mustUpdate(id uint, fields map[string]interface{}) error {
	result := mm.DB.Model(&MenuButton{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteButton удаляет кнопку, всё её поддерево и шаги поддерева.
// Каскад выполняется одной транзакцией.
func (mm *MenuManager) DeleteButton(id uint) error {
	return mm.DB.Transaction(func(tx *gorm.DB) error {
		ids, err := subtreeIDs(tx, id)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNotFound
		}
		if err := tx.Where("button_id IN ?", ids).Delete(&ButtonStep{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&MenuButton{}).Error
	})
}

// subtreeIDs собирает ID кнопки и всех её потомков (BFS).
// Родитель назначается только при создании и только на уже существующую
// кнопку, поэтому циклов в дереве быть не может.
func subtreeIDs(tx *gorm.DB, root uint) ([]uint, error) {
	var exists int64
	if err := tx.Model(&MenuButton{}).Where("id = ?", root).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}

	ids := []uint{root}
	frontier := []uint{root}
	for len(frontier) > 0 {
		var children []uint
		if err := tx.Model(&MenuButton{}).Where("parent_id IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		ids = append(ids, children...)
		frontier = children
	}
	return ids, nil
}

// SearchButtonsByText — простой поиск по подстроке (без учета регистра).
// Регистр сворачивается на стороне Go: SQLite LOWER() не трогает кириллицу.
func (mm *MenuManager) SearchButtonsByText(query string) ([]MenuButton, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	var all []MenuButton
	if err := mm.DB.Order("id").Find(&all).Error; err != nil {
		return nil, err
	}
	var buttons []MenuButton
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Text), needle) ||
			strings.Contains(strings.ToLower(b.MessageText), needle) {
			buttons = append(buttons, b)
		}
	}
	return buttons, nil
}
