package repository

import "context"

// ShownLedgerRepository определяет методы персистентного журнала вопросов,
// уже показанных игроку в одиночном режиме. Журнал монотонно растет и
// очищается только явным действием игрока.
type ShownLedgerRepository interface {
	// ShownIDs возвращает все идентификаторы вопросов из журнала игрока
	ShownIDs(ctx context.Context, playerID string) (map[string]bool, error)

	// MarkShown добавляет идентификаторы в журнал (объединение множеств,
	// идемпотентно)
	MarkShown(ctx context.Context, playerID string, ids []string) error

	// Reset полностью очищает журнал игрока
	Reset(ctx context.Context, playerID string) error
}
