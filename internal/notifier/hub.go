package notifier

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Время на запись сообщения клиенту
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 30 * time.Second

	// Интервал отправки ping (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Размер буфера исходящих сообщений клиента
	clientSendBuffer = 32

	// Размер буфера очереди публикаций хаба
	publishBuffer = 256
)

// Event представляет структуру уведомления
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// playerEvent - событие, адресованное конкретному игроку
type playerEvent struct {
	playerID string
	payload  []byte
}

// Client - одно websocket-соединение игрока
type Client struct {
	playerID string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
}

// Hub доставляет игрокам события о готовности вопросов и завершении
// пополнений. Вся доставка проходит через одну горутину Run: события
// публикуются строго в порядке поступления, позднее завершившееся
// пополнение не может обогнать более раннее.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan playerEvent

	// Закрывается при выходе Run: после остановки хаба регистрации и
	// отписки не должны блокироваться навсегда
	done chan struct{}

	// Доступ только из горутины Run
	clients map[string]map[*Client]bool
}

// NewHub создает новый хаб уведомлений
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan playerEvent, publishBuffer),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
	}
}

// Run - единственная горутина, владеющая картой клиентов и порядком доставки
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	log.Printf("[Notifier] Хаб уведомлений запущен")
	for {
		select {
		case client := <-h.register:
			if h.clients[client.playerID] == nil {
				h.clients[client.playerID] = make(map[*Client]bool)
			}
			h.clients[client.playerID][client] = true
			log.Printf("[Notifier] Игрок %s подключился (%d соединений)", client.playerID, len(h.clients[client.playerID]))

		case client := <-h.unregister:
			if conns, ok := h.clients[client.playerID]; ok {
				if conns[client] {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.playerID)
					}
				}
			}

		case event := <-h.events:
			for client := range h.clients[event.playerID] {
				select {
				case client.send <- event.payload:
				default:
					// Медленный клиент: пропускаем событие, а не тормозим
					// доставку остальным
					log.Printf("[Notifier] WARNING: Буфер клиента %s переполнен - событие пропущено", event.playerID)
				}
			}

		case <-ctx.Done():
			log.Printf("[Notifier] Хаб уведомлений останавливается")
			for _, conns := range h.clients {
				for client := range conns {
					close(client.send)
				}
			}
			return
		}
	}
}

// PublishToPlayer ставит событие в очередь доставки игроку.
// Порядок публикаций сохраняется; при переполненной очереди событие
// отбрасывается с предупреждением (доставка best-effort, состояние
// игрока восстановимо очередным запросом вопроса).
func (h *Hub) PublishToPlayer(playerID string, eventType string, data map[string]interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.Printf("[Notifier] WARNING: Не удалось сериализовать событие %s: %v", eventType, err)
		return
	}

	select {
	case h.events <- playerEvent{playerID: playerID, payload: payload}:
	default:
		log.Printf("[Notifier] WARNING: Очередь событий переполнена - событие %s для %s пропущено", eventType, playerID)
	}
}

// Register подключает новое соединение игрока и запускает его насосы.
// После остановки хаба соединение закрывается вместо вечной блокировки.
func (h *Hub) Register(playerID string, conn *websocket.Conn) {
	client := &Client{
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, clientSendBuffer),
		hub:      h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		log.Printf("[Notifier] Хаб остановлен - соединение игрока %s закрывается", playerID)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump вычитывает входящие кадры. Клиент ничего не присылает по делу -
// насос нужен для обработки pong и закрытия соединения.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			// Хаб уже остановлен и закрыл каналы клиентов сам
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Notifier] Соединение игрока %s закрыто с ошибкой: %v", c.playerID, err)
			}
			return
		}
		// Входящие сообщения игнорируются: канал односторонний
	}
}

// writePump пишет события и пинги в соединение
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
