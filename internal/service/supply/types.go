package supply

import (
	"time"

	"github.com/yourusername/trivia-supply/internal/domain/repository"
)

// Пороги по умолчанию
const (
	DefaultHighWaterMark   = 8
	DefaultLowWaterMark    = 5
	DefaultPruneKeepUnused = 5
)

// Config содержит настройки подсистемы снабжения вопросами
type Config struct {
	// Пороги гистерезиса (количество неиспользованных вопросов в локальном кеше)
	HighWaterMark int // == порог: инкрементальное пополнение текущей партии
	LowWaterMark  int // <= порог: полный цикл со сменой партии

	// Сколько неиспользованных вопросов оставлять при зачистке кеша
	// перед вставкой новой партии
	PruneKeepUnused int

	// Время жизни распределенного замка цикла пополнения.
	// Страхует от вечного замка, если инстанс умер посреди цикла.
	RefillLockTTL time.Duration

	// Время жизни кеша перемешанного порядка партии
	OrderCacheTTL time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		HighWaterMark:   DefaultHighWaterMark,
		LowWaterMark:    DefaultLowWaterMark,
		PruneKeepUnused: DefaultPruneKeepUnused,
		RefillLockTTL:   2 * time.Minute,
		OrderCacheTTL:   time.Hour,
	}
}

// Notifier определяет минимальный интерфейс для доставки игроку событий
// о готовности вопросов. Реализуется websocket-хабом; доставка сериализована
// одной горутиной, поэтому события приходят в порядке публикации.
type Notifier interface {
	PublishToPlayer(playerID string, eventType string, data map[string]interface{})
}

// Dependencies содержит зависимости компонентов подсистемы снабжения
type Dependencies struct {
	LocalStore repository.LocalQuestionStore
	BankRepo   repository.QuestionBankRepository
	CacheRepo  repository.CacheRepository
	Notifier   Notifier
}

// RefillState - состояние цикла пополнения для игрока.
// Переходы: Idle → FetchingOrder → FetchingDocuments → Reconciling → Idle.
// Возврат в Idle в конце Reconciling безусловен; только полный провал
// загрузки прерывает цикл (тоже возвращая Idle).
type RefillState int

const (
	StateIdle RefillState = iota
	StateFetchingOrder
	StateFetchingDocuments
	StateReconciling
)

// String возвращает строковое представление состояния
func (s RefillState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingOrder:
		return "fetching_order"
	case StateFetchingDocuments:
		return "fetching_documents"
	case StateReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}
