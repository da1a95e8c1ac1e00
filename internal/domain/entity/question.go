package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
func (o *StringArray) Scan(value interface{}) error {
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil // Возвращаем пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// Question представляет вопрос соревновательного режима.
// Поля содержимого неизменяемы и приходят из удаленного банка вопросов;
// флаг Used существует только в локальном хранилище устройства.
type Question struct {
	Number       string    `gorm:"primaryKey;size:64" json:"number"`
	Batch        int       `gorm:"index" json:"batch"`
	Category     string    `gorm:"size:100" json:"category"`
	Image        string    `gorm:"size:500" json:"image"`
	OptionA      string    `gorm:"size:255;not null" json:"option_a"`
	OptionB      string    `gorm:"size:255;not null" json:"option_b"`
	OptionC      string    `gorm:"size:255;not null" json:"option_c"`
	Answer       string    `gorm:"size:255;not null" json:"-"` // Скрыто от клиента до раскрытия
	QuestionText string    `gorm:"size:500;not null" json:"question_text"`
	Used         bool      `gorm:"not null;default:false;index" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// Valid проверяет, что документ из банка распарсился в пригодный вопрос.
// Невалидные документы пропускаются при загрузке партии (с предупреждением в лог).
func (q *Question) Valid() bool {
	return q.Number != "" && q.QuestionText != "" && q.Answer != "" &&
		q.OptionA != "" && q.OptionB != "" && q.OptionC != ""
}
