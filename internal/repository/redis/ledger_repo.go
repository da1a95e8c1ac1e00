package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ledgerKeyPrefix - префикс ключей журнала показанных вопросов
const ledgerKeyPrefix = "freeplay:shown:"

// LedgerRepo реализует repository.ShownLedgerRepository поверх Redis-множеств.
// Журнал монотонно растет (SADD идемпотентен) и очищается только явным
// действием игрока (DEL), без TTL.
type LedgerRepo struct {
	client redis.UniversalClient
}

// NewLedgerRepo создает новый репозиторий журнала показанных вопросов
func NewLedgerRepo(client redis.UniversalClient) (*LedgerRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for LedgerRepo")
	}
	return &LedgerRepo{client: client}, nil
}

func ledgerKey(playerID string) string {
	return ledgerKeyPrefix + playerID
}

// ShownIDs возвращает все идентификаторы из журнала игрока.
// Пустой журнал - не ошибка: SMEMBERS несуществующего ключа дает пустое множество.
func (r *LedgerRepo) ShownIDs(ctx context.Context, playerID string) (map[string]bool, error) {
	members, err := r.client.SMembers(ctx, ledgerKey(playerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read shown ledger for player %s: %w", playerID, err)
	}

	shown := make(map[string]bool, len(members))
	for _, id := range members {
		shown[id] = true
	}
	return shown, nil
}

// MarkShown добавляет идентификаторы в журнал (объединение множеств)
func (r *LedgerRepo) MarkShown(ctx context.Context, playerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	if err := r.client.SAdd(ctx, ledgerKey(playerID), members...).Err(); err != nil {
		return fmt.Errorf("failed to merge %d ids into shown ledger for player %s: %w", len(ids), playerID, err)
	}
	return nil
}

// Reset полностью очищает журнал игрока
func (r *LedgerRepo) Reset(ctx context.Context, playerID string) error {
	if err := r.client.Del(ctx, ledgerKey(playerID)).Err(); err != nil {
		return fmt.Errorf("failed to reset shown ledger for player %s: %w", playerID, err)
	}
	return nil
}
