package repository

import (
	"github.com/yourusername/trivia-supply/internal/domain/entity"
)

// LocalQuestionStore определяет методы локального кеша вопросов устройства.
// Любое хранилище с keyed insert/update/delete и выборкой случайной строки
// по предикату может реализовать этот контракт (см. реализацию на sqlite).
type LocalQuestionStore interface {
	// Insert вставляет запись с ключом Number. Повторная вставка того же
	// ключа возвращает ErrDuplicateQuestion - вызывающий трактует это как
	// "уже есть, пропускаем".
	Insert(question *entity.Question) error

	// CountUnused возвращает количество записей с used = false
	CountUnused() (int64, error)

	// FetchRandomUnused равномерно выбирает одну неиспользованную запись.
	// Возвращает ErrNotFound, если неиспользованных записей нет.
	// Запись НЕ помечается использованной.
	FetchRandomUnused() (*entity.Question, error)

	// MarkUsed устанавливает used = true. Отсутствие ключа - не ошибка
	// (восстановимая рассинхронизация, логируется как предупреждение).
	MarkUsed(number string) error

	// PruneKeepingLastNUnused удаляет записи, оставляя n последних по
	// вставке неиспользованных. Использованные записи удаляются вместе со
	// старым неиспользованным остатком: локальный кеш одноразовый, после
	// показа вопрос ценности не имеет (политика зафиксирована в DESIGN.md).
	PruneKeepingLastNUnused(n int) error

	// ResetAll удаляет все записи (тестовые и reset-сценарии)
	ResetAll() error
}
