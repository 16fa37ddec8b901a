package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roadscout/internal/model"
	"roadscout/internal/session"
)

// WebSocket stream of session events, graphql-transport-ws flavored:
// connection_init/ack handshake, subscribe/next/complete framing, with an
// optional per-subscription event type filter.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Events []string `json:"events"` // empty means all
}

func (s *Server) SessionWSHandler(w http.ResponseWriter, r *http.Request, ses *session.Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	subs := map[string]chan model.Event{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	// One writer at a time; the ping and fanout goroutines share the conn.
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for range ticker.C {
					if err := write(wsMessage{Type: "ping"}); err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			ch := s.Broker.Subscribe(ses.ID)
			subs[msg.ID] = ch
			go func(id string, ch chan model.Event, want []string) {
				for evt := range ch {
					if !wantedEvent(want, evt.Type) {
						continue
					}
					payload, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, pl.Events)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(ses.ID, ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}

	for id, ch := range subs {
		s.Broker.Unsubscribe(ses.ID, ch)
		delete(subs, id)
	}
}

func wantedEvent(want []string, typ string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if w == typ {
			return true
		}
	}
	return false
}
