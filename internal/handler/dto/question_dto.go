package dto

import (
	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/service/supply"
)

// QuestionResponse представляет вопрос соревновательного режима для клиента.
// Правильный ответ скрыт: он раскрывается игровым циклом отдельно.
type QuestionResponse struct {
	Number       string `json:"number"`
	Category     string `json:"category"`
	Image        string `json:"image,omitempty"`
	OptionA      string `json:"option_a"`
	OptionB      string `json:"option_b"`
	OptionC      string `json:"option_c"`
	QuestionText string `json:"question_text"`
}

// NewQuestionResponse создает DTO вопроса из сущности
func NewQuestionResponse(q *entity.Question) *QuestionResponse {
	return &QuestionResponse{
		Number:       q.Number,
		Category:     q.Category,
		Image:        q.Image,
		OptionA:      q.OptionA,
		OptionB:      q.OptionB,
		OptionC:      q.OptionC,
		QuestionText: q.QuestionText,
	}
}

// NextQuestionResponse - результат запроса следующего вопроса
type NextQuestionResponse struct {
	Status     string            `json:"status"` // ready | pending | unavailable
	Question   *QuestionResponse `json:"question,omitempty"`
	UnusedLeft int64             `json:"unused_left"`
}

// NewNextQuestionResponse создает DTO из результата селектора
func NewNextQuestionResponse(result *supply.NextQuestionResult) *NextQuestionResponse {
	resp := &NextQuestionResponse{
		Status:     string(result.Status),
		UnusedLeft: result.UnusedLeft,
	}
	if result.Question != nil {
		resp.Question = NewQuestionResponse(result.Question)
	}
	return resp
}
