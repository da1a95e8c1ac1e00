package supply

import (
	"context"
	"errors"
	"log"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-supply/internal/pkg/errors"
)

// ResultStatus - исход запроса следующего вопроса
type ResultStatus string

const (
	// StatusReady - вопрос готов к показу
	StatusReady ResultStatus = "ready"
	// StatusPending - вопроса нет, но пополнение уже идет; стоит повторить чуть позже
	StatusPending ResultStatus = "pending"
	// StatusUnavailable - вопроса нет и взять его пока неоткуда.
	// Отдельное видимое игроку состояние, а не сбой.
	StatusUnavailable ResultStatus = "unavailable"
)

// NextQuestionResult - результат запроса следующего вопроса
type NextQuestionResult struct {
	Status     ResultStatus
	Question   *entity.Question
	UnusedLeft int64
}

// SessionQuestionSelector решает при каждом запросе нового вопроса,
// отдать его сразу из локального кеша или сначала запустить пополнение.
// Пороги образуют полосу гистерезиса: сетевые вызовы происходят заранее,
// до исчерпания кеша, и никогда не блокируют выдачу вопроса.
type SessionQuestionSelector struct {
	config      *Config
	deps        *Dependencies
	coordinator *BatchCoordinator

	// Контекст приложения: фоновые пополнения живут дольше HTTP-запроса,
	// который их запустил. Явной отмены начатого цикла нет - поздние
	// повторные вставки безвредно отбрасываются как дубликаты.
	appCtx context.Context
}

// NewSessionQuestionSelector создает новый селектор вопросов сессии
func NewSessionQuestionSelector(appCtx context.Context, config *Config, deps *Dependencies, coordinator *BatchCoordinator) *SessionQuestionSelector {
	return &SessionQuestionSelector{
		config:      config,
		deps:        deps,
		coordinator: coordinator,
		appCtx:      appCtx,
	}
}

// RequestNextQuestion применяет пороговую политику и возвращает следующий
// вопрос, либо pending/unavailable. Никогда не возвращает ошибку игроку:
// все сбои деградируют до "вопрос сейчас недоступен".
func (s *SessionQuestionSelector) RequestNextQuestion(ctx context.Context, playerID string) *NextQuestionResult {
	unused, err := s.deps.LocalStore.CountUnused()
	if err != nil {
		log.Printf("[Selector] WARNING: Не удалось посчитать неиспользованные вопросы для %s: %v", playerID, err)
		unused = 0
	}

	// Триггер выбирается ДО выдачи, чтобы пополнение стартовало даже если
	// выдача ниже провалится
	switch {
	case unused > int64(s.config.HighWaterMark):
		// Запаса достаточно - пополнение не требуется

	case unused == int64(s.config.HighWaterMark):
		log.Printf("[Selector] Игрок %s достиг верхнего порога (%d) - инкрементальное пополнение", playerID, unused)
		go s.runRefill(playerID, false)

	case unused <= int64(s.config.LowWaterMark):
		log.Printf("[Selector] Игрок %s на нижнем пороге (%d) - полный цикл смены партии", playerID, unused)
		go s.runRefill(playerID, true)

	default:
		// Внутри полосы гистерезиса: пополнение уже запущено ранее
	}

	question, err := s.deps.LocalStore.FetchRandomUnused()
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[Selector] WARNING: Ошибка выборки вопроса для %s: %v", playerID, err)
		}
		// Кеш пуст: если цикл пополнения в полете - это pending, иначе
		// честное "недоступно" (повтор на следующем запросе)
		if s.coordinator.RefillState(playerID) != StateIdle {
			return &NextQuestionResult{Status: StatusPending, UnusedLeft: unused}
		}
		return &NextQuestionResult{Status: StatusUnavailable, UnusedLeft: unused}
	}

	return &NextQuestionResult{Status: StatusReady, Question: question, UnusedLeft: unused}
}

// runRefill запускает цикл пополнения в фоне. Повторный триггер при цикле
// в полете не ошибка - просто игнорируется.
func (s *SessionQuestionSelector) runRefill(playerID string, full bool) {
	var err error
	if full {
		err = s.coordinator.TriggerFullRefill(s.appCtx, playerID)
	} else {
		err = s.coordinator.TriggerIncrementalRefill(s.appCtx, playerID)
	}
	if err != nil && !errors.Is(err, repository.ErrRefillInProgress) {
		// Провал цикла не фатален: повтор на следующем триггере селектора
		log.Printf("[Selector] Фоновое пополнение для %s не удалось: %v", playerID, err)
	}
}

// ReportQuestionConsumed помечает вопрос использованным после показа.
// Переход used только false → true; неизвестный номер - предупреждение,
// не ошибка игрока.
func (s *SessionQuestionSelector) ReportQuestionConsumed(number string) error {
	if err := s.deps.LocalStore.MarkUsed(number); err != nil {
		log.Printf("[Selector] WARNING: Не удалось пометить вопрос %s использованным: %v", number, err)
		return err
	}
	return nil
}
