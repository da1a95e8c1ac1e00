package sqlite

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-supply/internal/pkg/errors"
)

// QuestionStore реализует repository.LocalQuestionStore поверх встроенной
// базы sqlite. Это одноразовый кеш: содержимое полностью восстановимо из
// удаленного банка, поэтому любая ошибка ввода-вывода здесь не фатальна
// для игрового цикла.
type QuestionStore struct {
	db *gorm.DB
}

// NewQuestionStore создает новое локальное хранилище вопросов
func NewQuestionStore(db *gorm.DB) (*QuestionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite db cannot be nil for QuestionStore")
	}
	// Схема локального кеша управляется AutoMigrate: в отличие от банка,
	// здесь нет миграционной истории, кеш можно пересоздать с нуля
	if err := db.AutoMigrate(&entity.Question{}); err != nil {
		return nil, fmt.Errorf("failed to migrate local question store: %w", err)
	}
	return &QuestionStore{db: db}, nil
}

// Insert вставляет вопрос с ключом Number.
// Повторная вставка того же номера возвращает ErrDuplicateQuestion.
func (s *QuestionStore) Insert(question *entity.Question) error {
	err := s.db.Create(question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: number=%s", repository.ErrDuplicateQuestion, question.Number)
		}
		return err
	}
	return nil
}

// CountUnused возвращает количество неиспользованных вопросов
func (s *QuestionStore) CountUnused() (int64, error) {
	var count int64
	err := s.db.Model(&entity.Question{}).
		Where("used = ?", false).
		Count(&count).Error
	return count, err
}

// FetchRandomUnused равномерно выбирает один неиспользованный вопрос.
// Вопрос НЕ помечается использованным - это делает вызывающий после показа.
func (s *QuestionStore) FetchRandomUnused() (*entity.Question, error) {
	var question entity.Question
	err := s.db.Where("used = ?", false).
		Order("RANDOM()").
		Take(&question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &question, nil
}

// MarkUsed помечает вопрос использованным. Переход только false → true;
// отсутствие ключа - восстановимая рассинхронизация, а не ошибка.
func (s *QuestionStore) MarkUsed(number string) error {
	result := s.db.Model(&entity.Question{}).
		Where("number = ?", number).
		Update("used", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("[QuestionStore] WARNING: MarkUsed для неизвестного номера %s - пропускаем", number)
	}
	return nil
}

// PruneKeepingLastNUnused удаляет все записи, кроме n последних по вставке
// неиспользованных. Использованные записи удаляются вместе со старым
// неиспользованным остатком: после показа вопрос ценности не имеет
// (политика из DESIGN.md). Порядок вставки определяется по rowid sqlite.
func (s *QuestionStore) PruneKeepingLastNUnused(n int) error {
	if n < 0 {
		n = 0
	}
	return s.db.Exec(`
		DELETE FROM questions
		WHERE number NOT IN (
			SELECT number FROM questions
			WHERE used = ?
			ORDER BY rowid DESC
			LIMIT ?
		)
	`, false, n).Error
}

// ResetAll удаляет все записи локального кеша
func (s *QuestionStore) ResetAll() error {
	return s.db.Exec(`DELETE FROM questions`).Error
}
