package hub

import (
	"encoding/json"
	"testing"

	"microsight/dashboard-service/internal/apperr"
	"microsight/dashboard-service/internal/nav"
	"microsight/dashboard-service/internal/sensors"
)

func TestNotifyTargetsOneClient(t *testing.T) {
	h := New(nil)
	a := &Client{ID: "conn-a", ClientID: "client-a", Send: make(chan []byte, 4)}
	b := &Client{ID: "conn-b", ClientID: "client-b", Send: make(chan []byte, 4)}
	h.Register(a)
	h.Register(b)

	h.Notify("client-a", apperr.Success("Logged out successfully"))
	h.Navigate("client-a", nav.Replace(nav.LoginPath))

	if len(a.Send) != 2 {
		t.Fatalf("expected 2 messages for client-a, got %d", len(a.Send))
	}
	if len(b.Send) != 0 {
		t.Fatalf("expected no messages for client-b, got %d", len(b.Send))
	}

	var env struct {
		Type    string        `json:"type"`
		Payload apperr.Notice `json:"payload"`
	}
	if err := json.Unmarshal(<-a.Send, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeNotice || env.Payload.Message != "Logged out successfully" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestEmptyNoticeIsNotSent(t *testing.T) {
	h := New(nil)
	c := &Client{ID: "conn", ClientID: "client", Send: make(chan []byte, 1)}
	h.Register(c)
	h.Notify("client", apperr.Notice{})
	h.Navigate("client", nav.Navigation{})
	if len(c.Send) != 0 {
		t.Fatalf("expected nothing to be sent")
	}
}

func TestSnapshotOnlyReachesSubscribers(t *testing.T) {
	h := New(nil)
	subscribed := &Client{ID: "s", ClientID: "x", Send: make(chan []byte, 1)}
	idle := &Client{ID: "i", ClientID: "y", Send: make(chan []byte, 1)}
	h.Register(subscribed)
	h.Register(idle)
	h.Subscribe(subscribed, TopicSensors, true)

	h.PublishSnapshot(sensors.Snapshot{Temperature: 21})
	h.PublishSnapshot(sensors.Snapshot{Temperature: 22})

	if len(subscribed.Send) != 1 {
		t.Fatalf("expected the full buffer to drop the second snapshot, got %d", len(subscribed.Send))
	}
	if len(idle.Send) != 0 {
		t.Fatalf("unsubscribed client received a snapshot")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := New(nil)
	c := &Client{ID: "conn", ClientID: "client", Send: make(chan []byte, 1)}
	h.Register(c)
	if h.Connections("client") != 1 {
		t.Fatalf("expected one connection")
	}
	h.Unregister(c)
	h.Unregister(c)
	if h.Connections("client") != 0 {
		t.Fatalf("expected no connections")
	}
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe"}`))
	if !ok || msg.Topic != TopicSensors {
		t.Fatalf("unexpected parse result: %+v %v", msg, ok)
	}
	if _, ok := ParseSubscribe([]byte(`{"action":"shout"}`)); ok {
		t.Fatalf("expected unknown action to be rejected")
	}
	if _, ok := ParseSubscribe([]byte(`not json`)); ok {
		t.Fatalf("expected invalid json to be rejected")
	}
}
