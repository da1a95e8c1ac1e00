package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yourusername/trivia-supply/internal/handler/dto"
	"github.com/yourusername/trivia-supply/internal/middleware"
	"github.com/yourusername/trivia-supply/internal/notifier"
	"github.com/yourusername/trivia-supply/internal/service/supply"
)

// SupplyHandler обрабатывает запросы соревновательного режима:
// выдача следующего вопроса, подтверждение показа, канал уведомлений
type SupplyHandler struct {
	selector *supply.SessionQuestionSelector
	hub      *notifier.Hub
	upgrader websocket.Upgrader
}

// NewSupplyHandler создает новый обработчик снабжения вопросами
func NewSupplyHandler(selector *supply.SessionQuestionSelector, hub *notifier.Hub) *SupplyHandler {
	return &SupplyHandler{
		selector: selector,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Источники фильтрует CORS-слой; рукопожатие доступно любому
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// NextQuestion возвращает следующий вопрос, либо pending/unavailable.
// Оба "пустых" исхода - нормальные состояния, не ошибки: клиент показывает
// "загрузка" или "вопрос недоступен" и повторяет запрос.
func (h *SupplyHandler) NextQuestion(c *gin.Context) {
	playerID := c.MustGet(middleware.ContextPlayerID).(string)

	result := h.selector.RequestNextQuestion(c.Request.Context(), playerID)
	c.JSON(http.StatusOK, dto.NewNextQuestionResponse(result))
}

// ConsumedRequest - подтверждение показа вопроса
type ConsumedRequest struct {
	Number string `json:"number" binding:"required"`
}

// QuestionConsumed помечает вопрос показанным (used = true)
func (h *SupplyHandler) QuestionConsumed(c *gin.Context) {
	var req ConsumedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Ошибка хранилища не фатальна для игрового цикла: логируем и отвечаем
	// принятием, рассинхронизация самоизлечится при следующей зачистке
	if err := h.selector.ReportQuestionConsumed(req.Number); err != nil {
		log.Printf("[SupplyHandler] WARNING: Подтверждение показа %s не записано: %v", req.Number, err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleWS подключает websocket-канал уведомлений игрока
func (h *SupplyHandler) HandleWS(c *gin.Context) {
	playerID := c.MustGet(middleware.ContextPlayerID).(string)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[SupplyHandler] Ошибка websocket-рукопожатия для %s: %v", playerID, err)
		return
	}

	h.hub.Register(playerID, conn)
}
