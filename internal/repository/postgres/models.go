package postgres

import (
	"time"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
)

// bankQuestion - строка таблицы bank_questions. Отдельная модель, а не
// entity.Question: у банка нет локального флага used, содержимое неизменяемо.
type bankQuestion struct {
	Number       string    `gorm:"primaryKey;size:64"`
	Batch        int       `gorm:"not null;index"`
	Category     string    `gorm:"size:100"`
	Image        string    `gorm:"size:500"`
	OptionA      string    `gorm:"size:255;not null"`
	OptionB      string    `gorm:"size:255;not null"`
	OptionC      string    `gorm:"size:255;not null"`
	Answer       string    `gorm:"size:255;not null"`
	QuestionText string    `gorm:"size:500;not null"`
	CreatedAt    time.Time
}

func (bankQuestion) TableName() string {
	return "bank_questions"
}

// toEntity конвертирует строку банка в доменный вопрос (used = false)
func (b *bankQuestion) toEntity() entity.Question {
	return entity.Question{
		Number:       b.Number,
		Batch:        b.Batch,
		Category:     b.Category,
		Image:        b.Image,
		OptionA:      b.OptionA,
		OptionB:      b.OptionB,
		OptionC:      b.OptionC,
		Answer:       b.Answer,
		QuestionText: b.QuestionText,
	}
}

// fromEntity конвертирует доменный вопрос в строку банка
func fromEntity(q *entity.Question) bankQuestion {
	return bankQuestion{
		Number:       q.Number,
		Batch:        q.Batch,
		Category:     q.Category,
		Image:        q.Image,
		OptionA:      q.OptionA,
		OptionB:      q.OptionB,
		OptionC:      q.OptionC,
		Answer:       q.Answer,
		QuestionText: q.QuestionText,
	}
}

// playerBatch - указатель текущей партии игрока
type playerBatch struct {
	PlayerID  string    `gorm:"primaryKey;size:128"`
	Batch     int       `gorm:"not null;default:1"`
	UpdatedAt time.Time
}

func (playerBatch) TableName() string {
	return "player_batches"
}

// batchOrder - персистированная перестановка ссылок партии.
// Генерируется один раз на партию: перемешивание отвязано от устаревания,
// повторные чтения возвращают тот же порядок.
type batchOrder struct {
	Batch     int                `gorm:"primaryKey"`
	Ordering  entity.StringArray `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (batchOrder) TableName() string {
	return "batch_orders"
}
