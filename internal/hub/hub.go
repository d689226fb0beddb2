package hub

import (
	"encoding/json"
	"sync"
	"time"

	"microsight/dashboard-service/internal/apperr"
	"microsight/dashboard-service/internal/nav"
	"microsight/dashboard-service/internal/sensors"

	"go.uber.org/zap"
)

const (
	TopicSensors = "sensors"

	TypeNotice     = "notice"
	TypeNavigation = "navigation"
	TypeSensors    = "sensors"
)

type Client struct {
	ID       string
	ClientID string
	Send     chan []byte
	Topics   map[string]bool
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.Topics == nil {
		client.Topics = make(map[string]bool)
	}
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topic string, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Topics[topic] = on
}

// Notify sends a transient notice to every connection of one dashboard client.
func (h *Hub) Notify(clientID string, notice apperr.Notice) {
	if notice.IsZero() {
		return
	}
	h.sendTo(clientID, TypeNotice, notice)
}

func (h *Hub) Navigate(clientID string, n nav.Navigation) {
	if n.IsZero() {
		return
	}
	h.sendTo(clientID, TypeNavigation, n)
}

func (h *Hub) PublishSnapshot(s sensors.Snapshot) {
	payload, err := encode(TypeSensors, s)
	if err != nil {
		h.logger.Error("encode sensor snapshot", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.Topics[TopicSensors] {
			continue
		}
		h.deliver(client, payload)
	}
}

func (h *Hub) Connections(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, client := range h.clients {
		if client.ClientID == clientID {
			count++
		}
	}
	return count
}

func (h *Hub) sendTo(clientID, kind string, value interface{}) {
	payload, err := encode(kind, value)
	if err != nil {
		h.logger.Error("encode message", zap.String("type", kind), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.ClientID != clientID {
			continue
		}
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		h.logger.Warn("drop message for slow connection", zap.String("connection", client.ID))
	}
}

func encode(kind string, value interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, Payload: value, CreatedAt: time.Now().UTC()})
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	if msg.Topic == "" {
		msg.Topic = TopicSensors
	}
	return msg, true
}
