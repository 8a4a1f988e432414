package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ==========================================
// УМНЫЙ ПОИСК (DeepSeek-совместимое API)
// ==========================================

const (
	defaultAIServiceURL = "https://api.deepseek.com/v1"
	searchModel         = "deepseek-chat"
	searchTimeout       = 15 * time.Second
	minQueryLen         = 2

	// Сентинели, которые модель обязана вернуть вместо номеров
	replyUnclear   = "НЕПОНЯТНО"
	replyNoResults = "НЕТ_РЕЗУЛЬТАТОВ"

	// Пасхалка: на этот запрос отвечаем сами, без модели
	easterEggQuery  = "кто лучший"
	easterEggAnswer = "Конечно, команда FRESH! 😉"
)

var numberRegex = regexp.MustCompile(`\d+`)

type SearchManager struct {
	APIKey     string
	BaseURL    string
	HttpClient *http.Client
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMsg `json:"message"`
	} `json:"choices"`
}

func NewSearchManager(apiKey, baseURL string) *SearchManager {
	if baseURL == "" {
		baseURL = defaultAIServiceURL
	}
	return &SearchManager{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HttpClient: &http.Client{Timeout: searchTimeout},
	}
}

// validateQuery отсекает пустые и односимвольные запросы до любого
// обращения к внешнему API.
func validateQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("поисковый запрос пустой")
	}
	if len([]rune(query)) < minQueryLen {
		return "", fmt.Errorf("поисковый запрос слишком короткий, нужно минимум %d символа", minQueryLen)
	}
	return query, nil
}

// searchEntry — одна строка пронумерованного списка, уходящего модели.
type searchEntry struct {
	ButtonID uint
	Line     string
}

func buildSearchListing(all []MenuButton, paths map[uint]string) []searchEntry {
	entries := make([]searchEntry, 0, len(all))
	for i, b := range all {
		line := b.Text
		if path := paths[b.ID]; path != "" {
			line += fmt.Sprintf(" (внутри: %s)", path)
		}
		if b.MessageText != "" {
			line += " - " + shorten(b.MessageText, 100)
		}
		entries = append(entries, searchEntry{
			ButtonID: b.ID,
			Line:     fmt.Sprintf("%d. %s", i+1, line),
		})
	}
	return entries
}

func buildSearchPrompt(query string, entries []searchEntry) string {
	var listing strings.Builder
	for i, e := range entries {
		if i > 0 {
			listing.WriteByte('\n')
		}
		listing.WriteString(e.Line)
	}

	return fmt.Sprintf(`Ты умный помощник для поиска кнопок в боте. Пользователь ищет: "%s"

Вот полный список всех доступных кнопок в боте:
%s

Твоя задача:
1. Если запрос пользователя бессмысленный, непонятный или не имеет отношения к кнопкам (например, случайный набор символов) - ответь: "%s"
2. Если запрос понятный, но ничего не подходит - ответь: "%s"
3. Если нашёл релевантные кнопки - верни ТОЛЬКО номера самых подходящих кнопок через запятую, например: 1, 3, 5

КРИТИЧЕСКИ ВАЖНО:
- Выбирай ТОЛЬКО самые релевантные кнопки, которые точно соответствуют запросу
- НЕ возвращай все кнопки подряд, даже если они частично совпадают
- Учитывай контекст и семантику запроса
- Если есть точное совпадение по названию - верни только его`,
		query, listing.String(), replyUnclear, replyNoResults)
}

// parseSearchReply разбирает ответ модели.
// unclear=true означает "запрос бессмысленный"; индексы нулевые,
// номера вне диапазона 1..count молча отбрасываются.
func parseSearchReply(reply string, count int) (unclear bool, indices []int) {
	reply = strings.ToUpper(strings.TrimSpace(reply))
	if reply == "" {
		return false, nil
	}
	if strings.Contains(reply, replyUnclear) || strings.Contains(reply, "НЕ ПОНЯЛ") {
		return true, nil
	}
	if strings.Contains(reply, replyNoResults) || strings.Contains(reply, "НЕТ РЕЗУЛЬТАТОВ") {
		return false, nil
	}
	for _, raw := range numberRegex.FindAllString(reply, -1) {
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if n < 1 || n > count {
			continue
		}
		indices = append(indices, n-1)
	}
	return false, indices
}

// dedupeByLabel убирает кнопки с одинаковым (без учета регистра) названием.
func dedupeByLabel(buttons []MenuButton) []MenuButton {
	seen := make(map[string]bool, len(buttons))
	out := buttons[:0]
	for _, b := range buttons {
		key := strings.ToLower(strings.TrimSpace(b.Text))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}

// SearchButtons выполняет семантический поиск по всему дереву меню.
// Возвращает (userError, results, err): userError — текст для пользователя,
// после которого можно повторить запрос; err — настоящая ошибка вызова.
func (sm *SearchManager) SearchButtons(mm *MenuManager, query string) (string, []MenuButton, error) {
	query, err := validateQuery(query)
	if err != nil {
		return err.Error(), nil, nil
	}

	if strings.EqualFold(query, easterEggQuery) {
		return easterEggAnswer, nil, nil
	}

	all, err := mm.AllButtonsRecursive(nil)
	if err != nil {
		return "", nil, err
	}
	if len(all) == 0 {
		return "", nil, nil
	}

	entries := buildSearchListing(all, ParentPaths(all))
	prompt := buildSearchPrompt(query, entries)

	reply, err := sm.complete(prompt)
	if err != nil {
		log.Printf("⚠️ Ошибка запроса к поисковому API: %v", err)
		return "", nil, err
	}

	unclear, indices := parseSearchReply(reply, len(entries))
	if unclear {
		return "Я Вас не понял, можете перефразировать", nil, nil
	}

	var results []MenuButton
	for _, i := range indices {
		btn, err := mm.ButtonByID(entries[i].ButtonID)
		if err != nil {
			continue // кнопка могла быть удалена между чтением дерева и ответом
		}
		results = append(results, *btn)
	}
	return "", dedupeByLabel(results), nil
}

func (sm *SearchManager) complete(prompt string) (string, error) {
	if sm.APIKey == "" {
		return "", fmt.Errorf("API-ключ поиска не задан")
	}

	payload := chatRequest{
		Model: searchModel,
		Messages: []chatMsg{
			{
				Role: "system",
				Content: "Ты помощник для поиска кнопок. Если запрос непонятный - отвечай '" + replyUnclear +
					"'. Если ничего не найдено - отвечай '" + replyNoResults +
					"'. Если нашёл кнопки - отвечай только номерами через запятую.",
			},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   200,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", sm.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sm.APIKey)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := sm.HttpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, shorten(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("пустой ответ модели")
	}
	return parsed.Choices[0].Message.Content, nil
}
