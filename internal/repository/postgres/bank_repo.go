package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/domain/repository"
	apperrors "github.com/yourusername/trivia-supply/internal/pkg/errors"
)

// BankRepo реализует repository.QuestionBankRepository поверх PostgreSQL.
// Банк - единственный авторитетный источник содержимого вопросов; локальный
// кеш устройства лишь временно хранит его подмножество.
type BankRepo struct {
	db *gorm.DB
}

// NewBankRepo создает новый клиент банка вопросов
func NewBankRepo(db *gorm.DB) *BankRepo {
	return &BankRepo{db: db}
}

// CurrentBatch читает указатель текущей партии игрока.
// Для нового игрока строка создается лениво со значением 1.
func (r *BankRepo) CurrentBatch(ctx context.Context, playerID string) (int, error) {
	var pb playerBatch
	err := r.db.WithContext(ctx).
		Where(playerBatch{PlayerID: playerID}).
		Attrs(playerBatch{Batch: 1}).
		FirstOrCreate(&pb).Error
	if err != nil {
		// Гонка ленивого создания: строку успело вставить другое устройство
		// того же игрока - перечитываем вместо ошибки
		if isUniqueViolation(err) {
			if rerr := r.db.WithContext(ctx).First(&pb, "player_id = ?", playerID).Error; rerr == nil {
				return pb.Batch, nil
			}
		}
		return 0, fmt.Errorf("failed to read current batch for player %s: %w", playerID, err)
	}
	return pb.Batch, nil
}

// isUniqueViolation проверяет Postgres unique violation (23505) для pgx драйвера
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// AdvanceBatch атомарно продвигает указатель партии: compare-and-set
// "batch = fromBatch → fromBatch+1". Если указатель уже изменило другое
// устройство того же игрока, RowsAffected == 0 → ErrConflict, вызывающий
// повторит на следующем триггере пополнения.
func (r *BankRepo) AdvanceBatch(ctx context.Context, playerID string, fromBatch int) (int, error) {
	result := r.db.WithContext(ctx).
		Model(&playerBatch{}).
		Where("player_id = ? AND batch = ?", playerID, fromBatch).
		Update("batch", gorm.Expr("batch + 1"))

	if result.Error != nil {
		return 0, fmt.Errorf("advance batch for player %s failed: %w", playerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("%w: player %s batch pointer is no longer %d", apperrors.ErrConflict, playerID, fromBatch)
	}
	return fromBatch + 1, nil
}

// FetchShuffledOrder возвращает персистированную перестановку ссылок партии,
// генерируя ее при первом обращении. ON CONFLICT DO NOTHING гарантирует, что
// при гонке двух генераторов жива останется ровно одна перестановка, и обе
// стороны прочитают одинаковый порядок.
func (r *BankRepo) FetchShuffledOrder(ctx context.Context, batch int) ([]string, error) {
	var order batchOrder
	err := r.db.WithContext(ctx).First(&order, "batch = ?", batch).Error
	if err == nil {
		return order.Ordering, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read shuffled order for batch %d: %w", batch, err)
	}

	// Перестановки еще нет - генерируем на стороне базы
	var numbers entity.StringArray
	err = r.db.WithContext(ctx).
		Model(&bankQuestion{}).
		Where("batch = ?", batch).
		Order("RANDOM()").
		Pluck("number", &numbers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to generate shuffled order for batch %d: %w", batch, err)
	}
	if len(numbers) == 0 {
		// Пустая партия - банк исчерпан дальше текущей партии
		return nil, fmt.Errorf("%w: batch %d has no questions", apperrors.ErrNotFound, batch)
	}

	candidate := batchOrder{Batch: batch, Ordering: numbers}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return nil, fmt.Errorf("failed to persist shuffled order for batch %d: %w", batch, err)
	}

	// Перечитываем: при гонке могла сохраниться чужая перестановка
	if err := r.db.WithContext(ctx).First(&order, "batch = ?", batch).Error; err != nil {
		return nil, fmt.Errorf("failed to re-read shuffled order for batch %d: %w", batch, err)
	}
	return order.Ordering, nil
}

// FetchDocuments разрешает ссылки в документы, сохраняя заданный порядок.
// Отсутствующие или невалидные документы пропускаются с предупреждением:
// частичный результат допустим, провалом считается только ошибка запроса.
func (r *BankRepo) FetchDocuments(ctx context.Context, refs []string) ([]entity.Question, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	var rows []bankQuestion
	err := r.db.WithContext(ctx).
		Where("number IN ?", refs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %d documents: %w", len(refs), err)
	}

	byNumber := make(map[string]*bankQuestion, len(rows))
	for i := range rows {
		byNumber[rows[i].Number] = &rows[i]
	}

	questions := make([]entity.Question, 0, len(refs))
	for _, ref := range refs {
		row, ok := byNumber[ref]
		if !ok {
			log.Printf("[BankRepo] WARNING: документ %s отсутствует в банке - пропускаем", ref)
			continue
		}
		q := row.toEntity()
		if !q.Valid() {
			log.Printf("[BankRepo] WARNING: документ %s не прошел валидацию - пропускаем", ref)
			continue
		}
		questions = append(questions, q)
	}

	if len(questions) < len(refs) {
		log.Printf("[BankRepo] Разрешено %d документов из %d запрошенных", len(questions), len(refs))
	}
	return questions, nil
}

// InsertQuestions массово добавляет вопросы в банк. Дубликаты номеров
// молча пропускаются (ON CONFLICT DO NOTHING). Возвращает число вставленных.
func (r *BankRepo) InsertQuestions(ctx context.Context, questions []entity.Question) (int64, error) {
	if len(questions) == 0 {
		return 0, nil
	}

	rows := make([]bankQuestion, len(questions))
	for i := range questions {
		rows[i] = fromEntity(&questions[i])
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 500)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert %d bank questions: %w", len(rows), result.Error)
	}
	return result.RowsAffected, nil
}

// BankStats возвращает статистику банка вопросов
func (r *BankRepo) BankStats(ctx context.Context) (int64, int, map[int]int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&bankQuestion{}).Count(&total).Error; err != nil {
		return 0, 0, nil, err
	}

	type batchCount struct {
		Batch int
		Count int64
	}
	var counts []batchCount
	err := r.db.WithContext(ctx).
		Model(&bankQuestion{}).
		Select("batch, COUNT(*) AS count").
		Group("batch").
		Find(&counts).Error
	if err != nil {
		return 0, 0, nil, err
	}

	byBatch := make(map[int]int64, len(counts))
	for _, c := range counts {
		byBatch[c.Batch] = c.Count
	}
	return total, len(byBatch), byBatch, nil
}

// компиляционная проверка соответствия интерфейсу
var _ repository.QuestionBankRepository = (*BankRepo)(nil)
