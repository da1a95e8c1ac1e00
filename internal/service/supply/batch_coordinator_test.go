package supply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-supply/internal/pkg/errors"
)

// ==================================================================
// Мок-объекты для интерфейсов подсистемы снабжения
// ==================================================================

// Мок локального хранилища вопросов
type MockLocalStore struct {
	mock.Mock
}

func (m *MockLocalStore) Insert(question *entity.Question) error {
	args := m.Called(question)
	return args.Error(0)
}

func (m *MockLocalStore) CountUnused() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLocalStore) FetchRandomUnused() (*entity.Question, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Question), args.Error(1)
}

func (m *MockLocalStore) MarkUsed(number string) error {
	args := m.Called(number)
	return args.Error(0)
}

func (m *MockLocalStore) PruneKeepingLastNUnused(n int) error {
	args := m.Called(n)
	return args.Error(0)
}

func (m *MockLocalStore) ResetAll() error {
	args := m.Called()
	return args.Error(0)
}

// Мок удаленного банка вопросов
type MockBankRepo struct {
	mock.Mock
}

func (m *MockBankRepo) CurrentBatch(ctx context.Context, playerID string) (int, error) {
	args := m.Called(ctx, playerID)
	return args.Int(0), args.Error(1)
}

func (m *MockBankRepo) AdvanceBatch(ctx context.Context, playerID string, fromBatch int) (int, error) {
	args := m.Called(ctx, playerID, fromBatch)
	return args.Int(0), args.Error(1)
}

func (m *MockBankRepo) FetchShuffledOrder(ctx context.Context, batch int) ([]string, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBankRepo) FetchDocuments(ctx context.Context, refs []string) ([]entity.Question, error) {
	args := m.Called(ctx, refs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Question), args.Error(1)
}

func (m *MockBankRepo) InsertQuestions(ctx context.Context, questions []entity.Question) (int64, error) {
	args := m.Called(ctx, questions)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBankRepo) BankStats(ctx context.Context) (int64, int, map[int]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Int(1), args.Get(2).(map[int]int64), args.Error(3)
}

// Мок кеша (Redis)
type MockCacheRepo struct {
	mock.Mock
}

func (m *MockCacheRepo) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockCacheRepo) SetJSON(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepo) GetJSON(key string, dest interface{}) error {
	args := m.Called(key, dest)
	return args.Error(0)
}

func (m *MockCacheRepo) SetNX(key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(key, value, expiration)
	return args.Bool(0), args.Error(1)
}

// Мок нотификатора с каналом завершения, чтобы тесты могли дождаться
// окончания фонового цикла без sleep
type MockNotifier struct {
	mock.Mock
	published chan string
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{published: make(chan string, 16)}
}

func (m *MockNotifier) PublishToPlayer(playerID string, eventType string, data map[string]interface{}) {
	m.Called(playerID, eventType, data)
	select {
	case m.published <- eventType:
	default:
	}
}

// waitPublished ждет публикации события или падает по таймауту
func (m *MockNotifier) waitPublished(t *testing.T) string {
	t.Helper()
	select {
	case eventType := <-m.published:
		return eventType
	case <-time.After(2 * time.Second):
		t.Fatal("Не дождались публикации события нотификатора")
		return ""
	}
}

// newTestDeps собирает координатор с моками и укороченными TTL
func newTestDeps() (*BatchCoordinator, *MockLocalStore, *MockBankRepo, *MockCacheRepo, *MockNotifier) {
	localStore := new(MockLocalStore)
	bankRepo := new(MockBankRepo)
	cacheRepo := new(MockCacheRepo)
	notifier := NewMockNotifier()

	config := DefaultConfig()
	config.RefillLockTTL = 5 * time.Second

	deps := &Dependencies{
		LocalStore: localStore,
		BankRepo:   bankRepo,
		CacheRepo:  cacheRepo,
		Notifier:   notifier,
	}
	return NewBatchCoordinator(config, deps), localStore, bankRepo, cacheRepo, notifier
}

// ==================================================================
// Тесты полного цикла пополнения
// ==================================================================

func TestBatchCoordinator_FullRefillCycle(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-1"
	ctx := context.Background()

	order := []string{"q10", "q11", "q12"}
	docs := []entity.Question{
		{Number: "q10", Batch: 3, QuestionText: "Вопрос 10", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "a"},
		{Number: "q11", Batch: 3, QuestionText: "Вопрос 11", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "b"},
		{Number: "q12", Batch: 3, QuestionText: "Вопрос 12", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "c"},
	}

	cacheRepo.On("SetNX", refillLockKey(playerID), mock.Anything, mock.Anything).Return(true, nil).Once()
	cacheRepo.On("Delete", refillLockKey(playerID)).Return(nil).Once()
	bankRepo.On("CurrentBatch", ctx, playerID).Return(2, nil).Once()
	bankRepo.On("AdvanceBatch", ctx, playerID, 2).Return(3, nil).Once()
	cacheRepo.On("GetJSON", orderCacheKey(3), mock.Anything).Return(apperrors.ErrNotFound).Once()
	bankRepo.On("FetchShuffledOrder", ctx, 3).Return(order, nil).Once()
	cacheRepo.On("SetJSON", orderCacheKey(3), order, mock.Anything).Return(nil).Once()
	bankRepo.On("FetchDocuments", ctx, order).Return(docs, nil).Once()
	localStore.On("PruneKeepingLastNUnused", DefaultPruneKeepUnused).Return(nil).Once()
	localStore.On("Insert", mock.AnythingOfType("*entity.Question")).Return(nil).Times(3)
	notifier.On("PublishToPlayer", playerID, "supply:refill_complete", mock.MatchedBy(func(data map[string]interface{}) bool {
		return data["batch"] == 3 && data["fetched"] == 3 && data["inserted"] == 3
	})).Once()

	err := coordinator.TriggerFullRefill(ctx, playerID)

	require.NoError(t, err, "Полный цикл пополнения должен завершиться без ошибок")
	assert.Equal(t, StateIdle, coordinator.RefillState(playerID), "После цикла состояние должно вернуться в Idle")
	localStore.AssertExpectations(t)
	bankRepo.AssertExpectations(t)
	cacheRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestBatchCoordinator_IncrementalRefillDoesNotAdvance(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-2"
	ctx := context.Background()

	order := []string{"q1"}
	docs := []entity.Question{
		{Number: "q1", Batch: 1, QuestionText: "Вопрос 1", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "a"},
	}

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", mock.Anything).Return(nil)
	bankRepo.On("CurrentBatch", ctx, playerID).Return(1, nil).Once()
	cacheRepo.On("GetJSON", orderCacheKey(1), mock.Anything).Return(apperrors.ErrNotFound).Once()
	bankRepo.On("FetchShuffledOrder", ctx, 1).Return(order, nil).Once()
	cacheRepo.On("SetJSON", orderCacheKey(1), order, mock.Anything).Return(nil).Once()
	bankRepo.On("FetchDocuments", ctx, order).Return(docs, nil).Once()
	localStore.On("PruneKeepingLastNUnused", mock.Anything).Return(nil).Once()
	localStore.On("Insert", mock.Anything).Return(nil).Once()
	notifier.On("PublishToPlayer", playerID, "supply:refill_complete", mock.Anything).Once()

	err := coordinator.TriggerIncrementalRefill(ctx, playerID)

	require.NoError(t, err)
	// Инкрементальный цикл остается в текущей партии
	bankRepo.AssertNotCalled(t, "AdvanceBatch", mock.Anything, mock.Anything, mock.Anything)
	bankRepo.AssertExpectations(t)
}

func TestBatchCoordinator_LostCASRaceIsTolerated(t *testing.T) {
	coordinator, _, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-3"
	ctx := context.Background()

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", mock.Anything).Return(nil)
	bankRepo.On("CurrentBatch", ctx, playerID).Return(4, nil).Once()
	// Другое устройство уже продвинуло указатель партии
	bankRepo.On("AdvanceBatch", ctx, playerID, 4).Return(0, apperrors.ErrConflict).Once()

	err := coordinator.TriggerFullRefill(ctx, playerID)

	assert.ErrorIs(t, err, apperrors.ErrConflict, "Проигранный compare-and-set должен возвращать ErrConflict")
	assert.Equal(t, StateIdle, coordinator.RefillState(playerID), "После проигранной гонки состояние возвращается в Idle")
	// Дальше CAS цикл не идет: порядок и документы не запрашиваются
	bankRepo.AssertNotCalled(t, "FetchShuffledOrder", mock.Anything, mock.Anything)
	bankRepo.AssertNotCalled(t, "FetchDocuments", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "PublishToPlayer", mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchCoordinator_OrderFetchFailureAbortsCleanly(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, _ := newTestDeps()
	playerID := "player-4"
	ctx := context.Background()

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", mock.Anything).Return(nil)
	bankRepo.On("CurrentBatch", ctx, playerID).Return(1, nil).Once()
	cacheRepo.On("GetJSON", mock.Anything, mock.Anything).Return(apperrors.ErrNotFound).Once()
	bankRepo.On("FetchShuffledOrder", ctx, 1).Return(nil, errors.New("bank unreachable")).Once()

	err := coordinator.TriggerIncrementalRefill(ctx, playerID)

	assert.Error(t, err, "Полный провал загрузки порядка должен прерывать цикл")
	assert.Equal(t, StateIdle, coordinator.RefillState(playerID), "Прерванный цикл должен вернуть Idle")
	// Ничего частично не записано
	bankRepo.AssertNotCalled(t, "FetchDocuments", mock.Anything, mock.Anything)
	localStore.AssertNotCalled(t, "PruneKeepingLastNUnused", mock.Anything)
	localStore.AssertNotCalled(t, "Insert", mock.Anything)
}

func TestBatchCoordinator_ZeroDocumentsIsNotAnError(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-5"
	ctx := context.Background()

	order := []string{"gone-1", "gone-2"}

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", mock.Anything).Return(nil)
	bankRepo.On("CurrentBatch", ctx, playerID).Return(1, nil).Once()
	cacheRepo.On("GetJSON", mock.Anything, mock.Anything).Return(apperrors.ErrNotFound).Once()
	bankRepo.On("FetchShuffledOrder", ctx, 1).Return(order, nil).Once()
	cacheRepo.On("SetJSON", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	// Все документы партии оказались невалидными/удаленными
	bankRepo.On("FetchDocuments", ctx, order).Return([]entity.Question{}, nil).Once()
	localStore.On("PruneKeepingLastNUnused", mock.Anything).Return(nil).Once()
	notifier.On("PublishToPlayer", playerID, "supply:refill_complete", mock.MatchedBy(func(data map[string]interface{}) bool {
		return data["fetched"] == 0 && data["inserted"] == 0
	})).Once()

	err := coordinator.TriggerIncrementalRefill(ctx, playerID)

	require.NoError(t, err, "Ноль документов - это 'нечего добавлять', а не сбой")
	// Сверка выполняется даже на пустой партии
	localStore.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestBatchCoordinator_DuplicateInsertsAreSkipped(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-6"
	ctx := context.Background()

	order := []string{"q1", "q2"}
	docs := []entity.Question{
		{Number: "q1", QuestionText: "Вопрос 1", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "a"},
		{Number: "q2", QuestionText: "Вопрос 2", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "b"},
	}

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", mock.Anything).Return(nil)
	bankRepo.On("CurrentBatch", ctx, playerID).Return(1, nil).Once()
	cacheRepo.On("GetJSON", mock.Anything, mock.Anything).Return(apperrors.ErrNotFound).Once()
	bankRepo.On("FetchShuffledOrder", ctx, 1).Return(order, nil).Once()
	cacheRepo.On("SetJSON", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	bankRepo.On("FetchDocuments", ctx, order).Return(docs, nil).Once()
	localStore.On("PruneKeepingLastNUnused", mock.Anything).Return(nil).Once()
	// q1 уже лежит в локальном кеше
	localStore.On("Insert", mock.MatchedBy(func(q *entity.Question) bool { return q.Number == "q1" })).
		Return(repository.ErrDuplicateQuestion).Once()
	localStore.On("Insert", mock.MatchedBy(func(q *entity.Question) bool { return q.Number == "q2" })).
		Return(nil).Once()
	notifier.On("PublishToPlayer", playerID, "supply:refill_complete", mock.MatchedBy(func(data map[string]interface{}) bool {
		return data["fetched"] == 2 && data["inserted"] == 1
	})).Once()

	err := coordinator.TriggerIncrementalRefill(ctx, playerID)

	require.NoError(t, err, "Дубликаты не должны прерывать сверку")
	localStore.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestBatchCoordinator_OrderCacheHitSkipsBankRead(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-7"
	ctx := context.Background()

	cachedOrder := []string{"q5", "q6"}
	docs := []entity.Question{
		{Number: "q5", QuestionText: "Вопрос 5", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "a"},
		{Number: "q6", QuestionText: "Вопрос 6", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "b"},
	}

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", mock.Anything).Return(nil)
	bankRepo.On("CurrentBatch", ctx, playerID).Return(2, nil).Once()
	cacheRepo.On("GetJSON", orderCacheKey(2), mock.Anything).
		Run(func(args mock.Arguments) {
			dest := args.Get(1).(*[]string)
			*dest = cachedOrder
		}).Return(nil).Once()
	bankRepo.On("FetchDocuments", ctx, cachedOrder).Return(docs, nil).Once()
	localStore.On("PruneKeepingLastNUnused", mock.Anything).Return(nil).Once()
	localStore.On("Insert", mock.Anything).Return(nil).Times(2)
	notifier.On("PublishToPlayer", playerID, "supply:refill_complete", mock.Anything).Once()

	err := coordinator.TriggerIncrementalRefill(ctx, playerID)

	require.NoError(t, err)
	// Порядок взят из кеша - удаленного чтения не было
	bankRepo.AssertNotCalled(t, "FetchShuffledOrder", mock.Anything, mock.Anything)
	cacheRepo.AssertNotCalled(t, "SetJSON", mock.Anything, mock.Anything, mock.Anything)
}

// ==================================================================
// Тесты одновременных триггеров
// ==================================================================

func TestBatchCoordinator_SecondTriggerWhileInFlightIsIgnored(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-8"
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).Return(true, nil).Once()
	cacheRepo.On("Delete", mock.Anything).Return(nil)
	bankRepo.On("CurrentBatch", ctx, playerID).Return(1, nil).Once()
	cacheRepo.On("GetJSON", mock.Anything, mock.Anything).Return(apperrors.ErrNotFound).Once()
	bankRepo.On("FetchShuffledOrder", ctx, 1).Return([]string{}, nil).Once()
	cacheRepo.On("SetJSON", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	bankRepo.On("FetchDocuments", ctx, []string{}).Return([]entity.Question{}, nil).Once()
	localStore.On("PruneKeepingLastNUnused", mock.Anything).Return(nil).Once()
	notifier.On("PublishToPlayer", playerID, "supply:refill_complete", mock.Anything).Once()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- coordinator.TriggerIncrementalRefill(ctx, playerID)
	}()

	// Ждем, пока первый цикл войдет в фазу взятия замка
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Первый цикл не стартовал")
	}

	assert.NotEqual(t, StateIdle, coordinator.RefillState(playerID), "Во время цикла состояние не Idle")

	// Повторный триггер того же игрока отбрасывается немедленно
	err := coordinator.TriggerIncrementalRefill(ctx, playerID)
	assert.ErrorIs(t, err, repository.ErrRefillInProgress, "Повторный триггер должен вернуть ErrRefillInProgress")

	close(release)
	require.NoError(t, <-firstDone, "Первый цикл должен завершиться успешно")
	assert.Equal(t, StateIdle, coordinator.RefillState(playerID))
}

func TestBatchCoordinator_DistributedLockBusy(t *testing.T) {
	coordinator, _, bankRepo, cacheRepo, _ := newTestDeps()
	playerID := "player-9"
	ctx := context.Background()

	// Замок держит другой инстанс того же игрока
	cacheRepo.On("SetNX", refillLockKey(playerID), mock.Anything, mock.Anything).Return(false, nil).Once()

	err := coordinator.TriggerFullRefill(ctx, playerID)

	assert.ErrorIs(t, err, repository.ErrRefillInProgress)
	assert.Equal(t, StateIdle, coordinator.RefillState(playerID))
	bankRepo.AssertNotCalled(t, "CurrentBatch", mock.Anything, mock.Anything)
	// Чужой замок снимать нельзя
	cacheRepo.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestBatchCoordinator_RedisDownDegradesToLocalGuard(t *testing.T) {
	coordinator, localStore, bankRepo, cacheRepo, notifier := newTestDeps()
	playerID := "player-10"
	ctx := context.Background()

	// Redis недоступен: цикл идет под защитой внутрипроцессного guard
	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down")).Once()
	bankRepo.On("CurrentBatch", ctx, playerID).Return(1, nil).Once()
	cacheRepo.On("GetJSON", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	bankRepo.On("FetchShuffledOrder", ctx, 1).Return([]string{"q1"}, nil).Once()
	cacheRepo.On("SetJSON", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	bankRepo.On("FetchDocuments", ctx, []string{"q1"}).Return([]entity.Question{
		{Number: "q1", QuestionText: "Вопрос 1", OptionA: "a", OptionB: "b", OptionC: "c", Answer: "a"},
	}, nil).Once()
	localStore.On("PruneKeepingLastNUnused", mock.Anything).Return(nil).Once()
	localStore.On("Insert", mock.Anything).Return(nil).Once()
	notifier.On("PublishToPlayer", playerID, "supply:refill_complete", mock.Anything).Once()

	err := coordinator.TriggerIncrementalRefill(ctx, playerID)

	require.NoError(t, err, "Недоступность Redis не должна блокировать пополнение")
	cacheRepo.AssertNotCalled(t, "Delete", mock.Anything)
}

// ==================================================================
// Тесты переходов состояний
// ==================================================================

func TestRefillState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "fetching_order", StateFetchingOrder.String())
	assert.Equal(t, "fetching_documents", StateFetchingDocuments.String())
	assert.Equal(t, "reconciling", StateReconciling.String())
	assert.Equal(t, "unknown", RefillState(99).String())
}

func TestBatchCoordinator_StatesAreIsolatedPerPlayer(t *testing.T) {
	coordinator, _, _, cacheRepo, _ := newTestDeps()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	cacheRepo.On("SetNX", refillLockKey("busy-player"), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).Return(false, nil).Once()

	done := make(chan struct{})
	go func() {
		_ = coordinator.TriggerFullRefill(ctx, "busy-player")
		close(done)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Цикл не стартовал")
	}

	// Цикл одного игрока не влияет на состояние другого
	assert.NotEqual(t, StateIdle, coordinator.RefillState("busy-player"))
	assert.Equal(t, StateIdle, coordinator.RefillState("other-player"))

	close(release)
	<-done
}
