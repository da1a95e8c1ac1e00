package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/trivia-supply/internal/domain/repository"
	"github.com/yourusername/trivia-supply/internal/middleware"
	"github.com/yourusername/trivia-supply/internal/service"
)

// Размер раунда по умолчанию и его предел
const (
	defaultRoundSize = 10
	maxRoundSize     = 50
)

// FreePlayHandler обрабатывает запросы одиночного (free) режима
type FreePlayHandler struct {
	freePlay *service.FreePlayService
}

// NewFreePlayHandler создает новый обработчик одиночного режима
func NewFreePlayHandler(freePlay *service.FreePlayService) *FreePlayHandler {
	return &FreePlayHandler{freePlay: freePlay}
}

// GetRound выдает раунд из count непоказанных вопросов.
// Исчерпание набора - ожидаемое терминальное состояние (не ошибка):
// клиент показывает экран "все пройдено" и предлагает сброс.
func (h *FreePlayHandler) GetRound(c *gin.Context) {
	playerID := c.MustGet(middleware.ContextPlayerID).(string)

	count := defaultRoundSize
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxRoundSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid count"})
			return
		}
		count = parsed
	}

	round, err := h.freePlay.DrawRound(c.Request.Context(), playerID, count)
	if err != nil {
		if errors.Is(err, repository.ErrSetExhausted) {
			c.JSON(http.StatusOK, gin.H{
				"status": "exhausted",
				"total":  h.freePlay.TotalQuestions(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to draw round"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "round": round})
}

// FinishRoundRequest - идентификаторы вопросов завершенного раунда
type FinishRoundRequest struct {
	QuestionIDs []string `json:"question_ids" binding:"required"`
}

// FinishRound вливает вопросы раунда в журнал показанных
func (h *FreePlayHandler) FinishRound(c *gin.Context) {
	playerID := c.MustGet(middleware.ContextPlayerID).(string)

	var req FinishRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.freePlay.FinishRound(c.Request.Context(), playerID, req.QuestionIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record shown questions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ResetProgress очищает журнал показанных вопросов игрока.
// Только явное действие игрока - автоматических сбросов нет.
func (h *FreePlayHandler) ResetProgress(c *gin.Context) {
	playerID := c.MustGet(middleware.ContextPlayerID).(string)

	if err := h.freePlay.ResetProgress(c.Request.Context(), playerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "total": h.freePlay.TotalQuestions()})
}
