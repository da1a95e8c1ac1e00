package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
	"strings"
)

// OptionMap - пользовательский тип для хранения вариантов ответа
// в виде отображения "короткий ключ -> отображаемый текст" (JSONB/JSON)
type OptionMap map[string]string

// Scan реализует интерфейс sql.Scanner для OptionMap
func (o *OptionMap) Scan(value interface{}) error {
	if value == nil {
		*o = OptionMap{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = OptionMap{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для OptionMap
func (o OptionMap) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("{}"), nil // Возвращаем пустой JSON объект вместо null
	}
	return json.Marshal(o)
}

// QuizQuestion представляет вопрос одиночного (free) режима.
// Неизменяем после загрузки из статического набора; никогда не мутируется,
// только фильтруется через журнал показанных вопросов.
type QuizQuestion struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Question    string    `json:"question"`
	Options     OptionMap `json:"options"`
	Answer      string    `json:"answer"`
	Explanation string    `json:"explanation"`
}

// QuizOption - один вариант ответа в порядке показа
type QuizOption struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Valid проверяет целостность вопроса: ответ обязан совпадать
// (без учета регистра) с текстом одного из вариантов.
func (q *QuizQuestion) Valid() bool {
	if q.ID == "" || q.Question == "" || len(q.Options) == 0 {
		return false
	}
	for _, text := range q.Options {
		if strings.EqualFold(text, q.Answer) {
			return true
		}
	}
	return false
}

// ShuffledOptions возвращает варианты ответа в случайном порядке показа.
// Каноническое хранилище (map) не мутируется: перемешивается только
// порядок итерации для конкретного показа.
func (q *QuizQuestion) ShuffledOptions(rng *rand.Rand) []QuizOption {
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	// Сортируем перед перемешиванием, чтобы результат зависел только от seed,
	// а не от порядка итерации map
	sort.Strings(keys)
	rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	options := make([]QuizOption, len(keys))
	for i, k := range keys {
		options[i] = QuizOption{Key: k, Text: q.Options[k]}
	}
	return options
}
