package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/domain/repository"
)

// RoundQuestion - вопрос раунда с вариантами в порядке показа.
// Канонический вопрос не мутируется: перемешан только порядок показа.
type RoundQuestion struct {
	ID          string              `json:"id"`
	Category    string              `json:"category"`
	Question    string              `json:"question"`
	Options     []entity.QuizOption `json:"options"`
	Answer      string              `json:"answer"`
	Explanation string              `json:"explanation"`
}

// Round - раунд одиночного режима
type Round struct {
	ID        string          `json:"id"`
	Questions []RoundQuestion `json:"questions"`
	Remaining int             `json:"remaining"` // Осталось непоказанных после этого раунда
}

// FreePlayService управляет одиночным (free) режимом: небольшой статический
// набор вопросов из бандла фильтруется через персистентный журнал показанных,
// чтобы вопросы не повторялись между сессиями до явного сброса.
type FreePlayService struct {
	questions map[string]entity.QuizQuestion
	ids       []string // Отсортированные ключи для детерминированной итерации
	ledger    repository.ShownLedgerRepository

	// Генератор перемешиваний; math/rand не потокобезопасен
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewFreePlayService загружает статический набор вопросов из JSON-файла
// (объект, ключ - идентификатор вопроса) и создает сервис одиночного режима
func NewFreePlayService(questionsPath string, ledger repository.ShownLedgerRepository) (*FreePlayService, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ShownLedgerRepository is required for FreePlayService")
	}

	data, err := os.ReadFile(questionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundled question set %s: %w", questionsPath, err)
	}

	var raw map[string]entity.QuizQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bundled question set %s: %w", questionsPath, err)
	}

	questions := make(map[string]entity.QuizQuestion, len(raw))
	for id, q := range raw {
		q.ID = id // Ключ документа авторитетен
		if !q.Valid() {
			log.Printf("[FreePlay] WARNING: Вопрос %s из бандла не прошел валидацию - пропускаем", id)
			continue
		}
		questions[id] = q
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("bundled question set %s contains no valid questions", questionsPath)
	}

	ids := make([]string, 0, len(questions))
	for id := range questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	log.Printf("[FreePlay] Загружено %d вопросов одиночного режима из %s", len(questions), questionsPath)

	return &FreePlayService{
		questions: questions,
		ids:       ids,
		ledger:    ledger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// TotalQuestions возвращает размер статического набора
func (s *FreePlayService) TotalQuestions() int {
	return len(s.ids)
}

// AvailableQuestions возвращает вопросы, еще не показанные игроку
// (полный набор минус журнал)
func (s *FreePlayService) AvailableQuestions(ctx context.Context, playerID string) ([]entity.QuizQuestion, error) {
	shown, err := s.ledger.ShownIDs(ctx, playerID)
	if err != nil {
		return nil, err
	}

	available := make([]entity.QuizQuestion, 0, len(s.ids))
	for _, id := range s.ids {
		if !shown[id] {
			available = append(available, s.questions[id])
		}
	}
	return available, nil
}

// DrawRound равномерно выбирает count разных вопросов без возвращения из
// доступных. Жесткое предусловие: вопрос из журнала в раунд не попадает -
// кандидаты строятся из свежего чтения журнала. Если доступных меньше
// count, возвращается ErrSetExhausted: ожидаемое терминальное состояние,
// игроку предлагается сброс.
func (s *FreePlayService) DrawRound(ctx context.Context, playerID string, count int) (*Round, error) {
	if count <= 0 {
		return nil, fmt.Errorf("round size must be positive, got %d", count)
	}

	available, err := s.AvailableQuestions(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to build available set for player %s: %w", playerID, err)
	}
	if len(available) < count {
		return nil, fmt.Errorf("%w: %d available, %d requested", repository.ErrSetExhausted, len(available), count)
	}

	s.rngMu.Lock()
	perm := s.rng.Perm(len(available))
	roundQuestions := make([]RoundQuestion, count)
	for i := 0; i < count; i++ {
		q := available[perm[i]]
		roundQuestions[i] = RoundQuestion{
			ID:          q.ID,
			Category:    q.Category,
			Question:    q.Question,
			Options:     q.ShuffledOptions(s.rng),
			Answer:      q.Answer,
			Explanation: q.Explanation,
		}
	}
	s.rngMu.Unlock()

	round := &Round{
		ID:        uuid.New().String(),
		Questions: roundQuestions,
		Remaining: len(available) - count,
	}

	log.Printf("[FreePlay] Раунд %s для игрока %s: %d вопросов, останется %d",
		round.ID, playerID, count, round.Remaining)
	return round, nil
}

// FinishRound вливает идентификаторы раунда в журнал показанных
// (объединение множеств, идемпотентно)
func (s *FreePlayService) FinishRound(ctx context.Context, playerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ledger.MarkShown(ctx, playerID, ids); err != nil {
		return fmt.Errorf("failed to record %d shown questions for player %s: %w", len(ids), playerID, err)
	}
	return nil
}

// ResetProgress полностью очищает журнал показанных вопросов игрока.
// Только по явному действию игрока.
func (s *FreePlayService) ResetProgress(ctx context.Context, playerID string) error {
	if err := s.ledger.Reset(ctx, playerID); err != nil {
		return fmt.Errorf("failed to reset progress for player %s: %w", playerID, err)
	}
	log.Printf("[FreePlay] Журнал показанных вопросов игрока %s очищен", playerID)
	return nil
}
