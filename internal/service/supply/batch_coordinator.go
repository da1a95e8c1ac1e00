package supply

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-supply/internal/pkg/errors"
)

// BatchCoordinator оркестрирует пополнение локального кеша из удаленного
// банка: "текущая партия исчерпана" → "кеш пополнен следующей партией",
// ровно один переход за раз, без дублирующих вставок.
type BatchCoordinator struct {
	config *Config
	deps   *Dependencies

	// Состояние цикла пополнения по игрокам. Повторный триггер для игрока
	// с состоянием != Idle игнорируется: два параллельных цикла могли бы
	// дважды продвинуть указатель партии или дважды вставить вопросы.
	mu     sync.Mutex
	states map[string]RefillState
}

// NewBatchCoordinator создает новый координатор партий
func NewBatchCoordinator(config *Config, deps *Dependencies) *BatchCoordinator {
	return &BatchCoordinator{
		config: config,
		deps:   deps,
		states: make(map[string]RefillState),
	}
}

// RefillState возвращает текущее состояние цикла пополнения игрока
func (bc *BatchCoordinator) RefillState(playerID string) RefillState {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.states[playerID]
}

// begin переводит игрока из Idle в FetchingOrder.
// Возвращает ErrRefillInProgress, если цикл уже идет.
func (bc *BatchCoordinator) begin(playerID string) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.states[playerID] != StateIdle {
		return fmt.Errorf("%w: player %s is %s", repository.ErrRefillInProgress, playerID, bc.states[playerID])
	}
	bc.states[playerID] = StateFetchingOrder
	return nil
}

// setState фиксирует переход состояния
func (bc *BatchCoordinator) setState(playerID string, state RefillState) {
	bc.mu.Lock()
	bc.states[playerID] = state
	bc.mu.Unlock()
}

// finish безусловно возвращает игрока в Idle
func (bc *BatchCoordinator) finish(playerID string) {
	bc.setState(playerID, StateIdle)
}

// refillLockKey - ключ распределенного замка цикла пополнения.
// Внутрипроцессный guard закрывает гонку в рамках инстанса; замок в Redis
// закрывает гонку двух устройств/инстансов одного игрока.
func refillLockKey(playerID string) string {
	return fmt.Sprintf("supply:refill:%s", playerID)
}

// orderCacheKey - ключ кеша перемешанного порядка партии
func orderCacheKey(batch int) string {
	return fmt.Sprintf("supply:order:batch:%d", batch)
}

// TriggerFullRefill выполняет полный цикл пополнения: продвижение указателя
// партии (compare-and-set), загрузка перемешанного порядка новой партии,
// загрузка документов и сверка с локальным кешем.
func (bc *BatchCoordinator) TriggerFullRefill(ctx context.Context, playerID string) error {
	return bc.runRefill(ctx, playerID, true)
}

// TriggerIncrementalRefill выполняет облегченный цикл в рамках текущей
// партии: повторная загрузка/проверка порядка и довставка недостающих
// документов, без продвижения указателя.
func (bc *BatchCoordinator) TriggerIncrementalRefill(ctx context.Context, playerID string) error {
	return bc.runRefill(ctx, playerID, false)
}

// runRefill - общее тело цикла пополнения
func (bc *BatchCoordinator) runRefill(ctx context.Context, playerID string, advance bool) error {
	if err := bc.begin(playerID); err != nil {
		log.Printf("[BatchCoordinator] Пополнение для игрока %s уже идет - триггер игнорируется", playerID)
		return err
	}
	defer bc.finish(playerID)

	// Распределенный замок: второй инстанс/устройство того же игрока
	// не должен запустить параллельный цикл
	locked, err := bc.deps.CacheRepo.SetNX(refillLockKey(playerID), "1", bc.config.RefillLockTTL)
	if err != nil {
		// Redis недоступен - работаем под защитой только внутрипроцессного guard
		log.Printf("[BatchCoordinator] WARNING: Не удалось взять замок пополнения для %s: %v", playerID, err)
	} else if !locked {
		log.Printf("[BatchCoordinator] Замок пополнения для %s занят другим инстансом - триггер игнорируется", playerID)
		return repository.ErrRefillInProgress
	}
	if err == nil && locked {
		defer func() {
			if delErr := bc.deps.CacheRepo.Delete(refillLockKey(playerID)); delErr != nil {
				log.Printf("[BatchCoordinator] WARNING: Не удалось снять замок пополнения для %s: %v (истечет по TTL)", playerID, delErr)
			}
		}()
	}

	// Определяем партию
	batch, err := bc.deps.BankRepo.CurrentBatch(ctx, playerID)
	if err != nil {
		return fmt.Errorf("refill aborted: %w", err)
	}

	if advance {
		newBatch, advErr := bc.deps.BankRepo.AdvanceBatch(ctx, playerID, batch)
		if advErr != nil {
			if errors.Is(advErr, apperrors.ErrConflict) {
				// Указатель продвинуло другое устройство - не катастрофа,
				// повторим на следующем триггере
				log.Printf("[BatchCoordinator] Проигран compare-and-set партии для игрока %s (batch=%d) - повтор на следующем триггере", playerID, batch)
				return advErr
			}
			return fmt.Errorf("refill aborted: %w", advErr)
		}
		log.Printf("[BatchCoordinator] Игрок %s переведен на партию %d", playerID, newBatch)
		batch = newBatch
	}

	// --- FetchingOrder ---
	order, err := bc.fetchOrder(ctx, batch)
	if err != nil {
		// Ничего частично не записано - честный возврат в Idle
		log.Printf("[BatchCoordinator] Не удалось получить порядок партии %d для игрока %s: %v", batch, playerID, err)
		return fmt.Errorf("refill aborted at order fetch: %w", err)
	}

	// --- FetchingDocuments ---
	bc.setState(playerID, StateFetchingDocuments)
	questions, err := bc.deps.BankRepo.FetchDocuments(ctx, order)
	if err != nil {
		log.Printf("[BatchCoordinator] Не удалось загрузить документы партии %d для игрока %s: %v", batch, playerID, err)
		return fmt.Errorf("refill aborted at document fetch: %w", err)
	}
	if len(questions) == 0 {
		// Ноль документов - "нечего добавлять", сверка все равно выполняется
		log.Printf("[BatchCoordinator] Партия %d не дала новых документов для игрока %s", batch, playerID)
	}

	// --- Reconciling ---
	bc.setState(playerID, StateReconciling)
	inserted := bc.reconcile(questions)

	log.Printf("[BatchCoordinator] Пополнение для игрока %s завершено: партия %d, получено %d, вставлено %d",
		playerID, batch, len(questions), inserted)

	if bc.deps.Notifier != nil {
		bc.deps.Notifier.PublishToPlayer(playerID, "supply:refill_complete", map[string]interface{}{
			"batch":    batch,
			"fetched":  len(questions),
			"inserted": inserted,
		})
	}

	return nil
}

// fetchOrder получает перемешанный порядок партии: сначала из кеша,
// затем из банка (с записью в кеш). Порядок персистирован на стороне банка,
// поэтому кеш не влияет на стабильность, только на число удаленных чтений.
func (bc *BatchCoordinator) fetchOrder(ctx context.Context, batch int) ([]string, error) {
	var cached []string
	if err := bc.deps.CacheRepo.GetJSON(orderCacheKey(batch), &cached); err == nil && len(cached) > 0 {
		return cached, nil
	} else if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[BatchCoordinator] WARNING: Ошибка чтения кеша порядка партии %d: %v", batch, err)
	}

	order, err := bc.deps.BankRepo.FetchShuffledOrder(ctx, batch)
	if err != nil {
		return nil, err
	}

	if err := bc.deps.CacheRepo.SetJSON(orderCacheKey(batch), order, bc.config.OrderCacheTTL); err != nil {
		log.Printf("[BatchCoordinator] WARNING: Не удалось закешировать порядок партии %d: %v", batch, err)
	}
	return order, nil
}

// reconcile сверяет загруженные документы с локальным кешем:
// зачистка до PruneKeepUnused последних неиспользованных, затем вставка.
// Ошибки отдельных вставок (включая дубликаты) проглатываются - цикл
// завершается в Idle в любом случае.
func (bc *BatchCoordinator) reconcile(questions []entity.Question) int {
	if err := bc.deps.LocalStore.PruneKeepingLastNUnused(bc.config.PruneKeepUnused); err != nil {
		log.Printf("[BatchCoordinator] WARNING: Не удалось зачистить локальный кеш: %v", err)
	}

	inserted := 0
	for i := range questions {
		err := bc.deps.LocalStore.Insert(&questions[i])
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateQuestion) {
				// Вопрос уже в кеше - пропускаем
				continue
			}
			log.Printf("[BatchCoordinator] WARNING: Не удалось вставить вопрос %s: %v", questions[i].Number, err)
			continue
		}
		inserted++
	}
	return inserted
}
