package httpapi

import (
	"net/http"
	"strings"

	"microsight/dashboard-service/internal/hub"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.uber.org/zap"
)

// RealtimeHandler serves the sockjs channel under prefix. Browsers cannot
// set headers on sockjs transports, so the client id comes from the cookie
// or the client_id query parameter.
func RealtimeHandler(prefix string, h *hub.Hub, cookie string, logger *zap.Logger) http.Handler {
	if cookie == "" {
		cookie = DefaultClientCookie
	}
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		clientID := realtimeClientID(session.Request(), cookie)
		if clientID == "" {
			_ = session.Close(4001, "missing client id")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), ClientID: clientID, Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)
		logger.Debug("realtime connected", zap.String("client_id", clientID), zap.String("connection", client.ID))

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			h.Subscribe(client, parsed.Topic, parsed.Action == "subscribe")
		}
	})
}

func realtimeClientID(r *http.Request, cookie string) string {
	if r == nil {
		return ""
	}
	if id := strings.TrimSpace(r.URL.Query().Get("client_id")); isValidUUID(id) {
		return id
	}
	if c, err := r.Cookie(cookie); err == nil && isValidUUID(c.Value) {
		return c.Value
	}
	return ""
}
