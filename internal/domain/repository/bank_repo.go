package repository

import (
	"context"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
)

// QuestionBankRepository абстрагирует удаленный банк вопросов
// в операции, ориентированные на партии (batch)
type QuestionBankRepository interface {
	// CurrentBatch читает указатель текущей партии игрока.
	// Для нового игрока запись создается лениво со значением 1.
	CurrentBatch(ctx context.Context, playerID string) (int, error)

	// AdvanceBatch атомарно продвигает указатель партии с fromBatch на
	// fromBatch+1 (compare-and-set). Если указатель уже не равен fromBatch
	// (гонка двух устройств одного игрока), возвращает ErrConflict -
	// вызывающий повторит попытку на следующем триггере, а не упадет.
	AdvanceBatch(ctx context.Context, playerID string, fromBatch int) (int, error)

	// FetchShuffledOrder возвращает перемешанный порядок ссылок на документы
	// партии. Перестановка генерируется однократно и персистится: повторные
	// вызовы для той же партии возвращают идентичный порядок.
	FetchShuffledOrder(ctx context.Context, batch int) ([]string, error)

	// FetchDocuments разрешает ссылки в документы, сохраняя заданный порядок.
	// Документы, не прошедшие валидацию, пропускаются с предупреждением;
	// частичный результат - не ошибка партии.
	FetchDocuments(ctx context.Context, refs []string) ([]entity.Question, error)

	// InsertQuestions массово добавляет вопросы в банк (админский импорт и
	// первоначальное наполнение). Дубликаты номеров молча пропускаются.
	InsertQuestions(ctx context.Context, questions []entity.Question) (int64, error)

	// BankStats возвращает статистику банка: всего вопросов, количество партий
	// и распределение вопросов по партиям
	BankStats(ctx context.Context) (total int64, batches int, byBatch map[int]int64, err error)
}
