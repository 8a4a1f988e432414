package app

import (
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ==========================================
// СОСТОЯНИЕ ДИАЛОГА
// ==========================================

// Stage — явное перечисление стадий диалога. Каждый входящий текст или
// файл маршрутизируется строго по текущей стадии сессии.
type Stage int

const (
	StageIdle Stage = iota

	// Мастер создания кнопки
	StageLabel       // ждем название новой кнопки
	StageStepContent // ждем контент очередного шага (текст или файл)
	StageFileCaption // ждем подпись к файлу шага
	StageFinalize    // показано меню мастера, ждем нажатия
	StageDelayValue  // ждем число секунд паузы перед следующим шагом

	// Редактирование существующей кнопки
	StageRename   // ждем новое название
	StageEditBody // ждем новый текст сообщения
	StageWelcome  // ждем новый текст приветствия

	// Вставка шага по позиции (двухфазная: предложение -> подтверждение)
	StageInsertContent  // ждем контент вставляемого шага
	StageInsertCaption  // ждем подпись к файлу вставляемого шага
	StageInsertPosition // ждем номер позиции 1..N+1
	StageInsertConfirm  // ждем подтверждения вставки

	// Редактирование шага
	StageEditStepContent // ждем новый контент шага
	StageStepDelay       // ждем новое значение задержки шага

	// Пользовательские сценарии
	StageSearchQuery // ждем поисковый запрос
	StageFeedback    // ждем сообщение обратной связи
)

// ButtonDraft — черновик мастера создания кнопки. Живет только в сессии,
// в БД попадает целиком одной транзакцией при завершении мастера.
type ButtonDraft struct {
	Label        string
	ParentID     *uint
	Steps        []ButtonStep
	PendingDelay int         // применится к следующему добавленному шагу
	PendingFile  *ButtonStep // файл, ожидающий подписи
}

// Session — состояние диалога одного пользователя. Хранится в кэше с TTL,
// чтобы брошенные на полпути сценарии не копились в памяти вечно.
type Session struct {
	Stage    Stage
	UserMode bool // админ временно смотрит меню глазами пользователя

	Draft *ButtonDraft

	TargetButton uint        // кнопка, над которой идет редактирование
	TargetStep   int         // номер редактируемого шага
	Pending      *ButtonStep // шаг, предложенный к вставке
	InsertPos    int         // подтверждаемая позиция вставки
}

const (
	sessionTTL   = 30 * time.Minute
	sessionSweep = 10 * time.Minute
)

var sessions = gocache.New(sessionTTL, sessionSweep)

// Бот обрабатывает каждый апдейт в отдельной горутине, поэтому
// read-modify-write сессии сериализуется per-user замком. Кэш защищает
// только свою map, не сами структуры сессий.
var (
	sessionLocksMu sync.Mutex
	sessionLocks   = make(map[int64]*sync.Mutex)
)

// lockSession берет замок пользователя и возвращает его для Unlock.
// Берется в начале хендлера, до первого getSession.
func lockSession(userID int64) *sync.Mutex {
	sessionLocksMu.Lock()
	mu, ok := sessionLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		sessionLocks[userID] = mu
	}
	sessionLocksMu.Unlock()
	mu.Lock()
	return mu
}

func sessionKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// getSession возвращает сессию пользователя, создавая пустую при отсутствии.
// Каждое обращение продлевает TTL.
func getSession(userID int64) *Session {
	key := sessionKey(userID)
	if v, ok := sessions.Get(key); ok {
		s := v.(*Session)
		sessions.Set(key, s, gocache.DefaultExpiration)
		return s
	}
	s := &Session{}
	sessions.Set(key, s, gocache.DefaultExpiration)
	return s
}

func saveSession(userID int64, s *Session) {
	sessions.Set(sessionKey(userID), s, gocache.DefaultExpiration)
}

// resetSession сбрасывает сценарий, сохраняя режим предпросмотра —
// отмена мастера не должна выкидывать админа из пользовательского режима.
func resetSession(userID int64) *Session {
	old := getSession(userID)
	s := &Session{UserMode: old.UserMode}
	saveSession(userID, s)
	return s
}
