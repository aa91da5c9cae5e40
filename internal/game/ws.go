package game

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // behind a trusted proxy
}

// ClientConn is one attached websocket. Writes go through a buffered send
// channel; a slow reader drops messages rather than blocking the engine.
//
// The send channel is never closed: a replaced connection's read loop may
// still be mid-message and about to ack, so Send must stay safe after Close.
// The writer is stopped through done instead.
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *ClientConn) Send(env Envelope) {
	b, _ := json.Marshal(env)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *ClientConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// roomIDFromWSPath extracts the room id from /ws/{roomId}. Lowercase
// alphanumeric only, single segment.
func roomIDFromWSPath(path string) (string, bool) {
	const prefix = "/ws/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	id := path[len(prefix):]
	if !validRoomID(id) {
		return "", false
	}
	return id, true
}

// handleWS is the transport shell entry: GET /ws/{roomId} with a JWT either
// in the Authorization header or as a first {"type":"auth"} message.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFromWSPath(r.URL.Path)
	if !ok {
		http.Error(w, "bad ws path", http.StatusBadRequest)
		return
	}

	var token string
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	var userID, displayName string
	if token != "" {
		claims, err := s.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID, displayName = claims.UserID, claims.DisplayName
	}

	room, found, err := s.registry.GetOrLoad(r.Context(), roomID)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	cc := newClientConn(ws)

	// writer loop
	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-cc.done:
				return
			case msg := <-cc.send:
				_ = ws.WriteMessage(websocket.TextMessage, msg)
			case <-ticker.C:
				_ = ws.WriteMessage(websocket.PingMessage, []byte{})
			}
		}
	}()

	// No header token: the first message must authenticate.
	if userID == "" {
		uid, name, ok := s.awaitAuth(ws, cc)
		if !ok {
			cc.Close()
			return
		}
		userID, displayName = uid, name
	}

	room.Attach(userID, cc)
	cc.Send(Envelope{Type: "state", Payload: mustJSON(room.State(userID))})

	s.log.Debug("ws attached", "roomId", roomID, "userId", userID)

	s.readLoop(room, cc, userID, displayName)

	room.Detach(userID, cc)
	cc.Close()
}

func (s *Server) awaitAuth(ws *websocket.Conn, cc *ClientConn) (userID, name string, ok bool) {
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return "", "", false
		}
		var env Envelope
		if json.Unmarshal(data, &env) != nil || env.Type != "auth" {
			cc.Send(errEnvelope("unauthorized", "expected auth message"))
			return "", "", false
		}
		var p AuthPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			cc.Send(errEnvelope("bad_input", "invalid auth payload"))
			return "", "", false
		}
		claims, err := s.verifier.Verify(p.Token)
		if err != nil {
			cc.Send(errEnvelope("unauthorized", "invalid token"))
			return "", "", false
		}
		return claims.UserID, claims.DisplayName, true
	}
}

func (s *Server) readLoop(room *Room, cc *ClientConn, userID, displayName string) {
	for {
		_, data, err := cc.ws.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			cc.Send(errEnvelope("bad_json", "invalid json"))
			continue
		}

		switch env.Type {
		case "join":
			var p JoinPayload
			if json.Unmarshal(env.Payload, &p) != nil {
				cc.Send(errEnvelope("bad_input", "invalid payload"))
				continue
			}
			name := p.Name
			if name == "" {
				name = displayName
			}
			playerID, err := room.Join(userID, name, p.Spot, false)
			if err != nil {
				cc.Send(errEnvelope(errCode(err), err.Error()))
				continue
			}
			cc.Send(Envelope{Type: "joined", Payload: mustJSON(JoinedPayload{
				PlayerID: playerID,
				Spot:     p.Spot,
			})})

		case "add_bot":
			var p AddBotPayload
			if json.Unmarshal(env.Payload, &p) != nil {
				cc.Send(errEnvelope("bad_input", "invalid payload"))
				continue
			}
			if _, err := room.AddBot(p.Spot); err != nil {
				cc.Send(errEnvelope(errCode(err), err.Error()))
			}

		case "leave":
			var p LeavePayload
			if json.Unmarshal(env.Payload, &p) != nil {
				cc.Send(errEnvelope("bad_input", "invalid payload"))
				continue
			}
			if err := room.Leave(p.PlayerID, p.Spot); err != nil {
				cc.Send(errEnvelope(errCode(err), err.Error()))
				continue
			}
			cc.Send(Envelope{Type: "left", Payload: mustJSON(map[string]bool{"success": true})})

		case "start_game":
			if _, err := room.StartGame(); err != nil {
				cc.Send(errEnvelope(errCode(err), err.Error()))
			}

		case "submit_number":
			var p SubmitNumberPayload
			if json.Unmarshal(env.Payload, &p) != nil {
				cc.Send(errEnvelope("bad_input", "invalid payload"))
				continue
			}
			playerID := p.PlayerID
			if playerID == "" {
				playerID = room.PlayerIDForUser(userID)
			}
			ack, err := room.SubmitNumber(p.GameID, playerID, p.Number)
			if err != nil {
				cc.Send(errEnvelope(errCode(err), err.Error()))
				continue
			}
			cc.Send(Envelope{Type: "submit_ack", Payload: mustJSON(ack)})

		case "state":
			cc.Send(Envelope{Type: "state", Payload: mustJSON(room.State(userID))})

		default:
			cc.Send(errEnvelope("unknown_type", "unknown message type"))
		}
	}
}

func errEnvelope(code, message string) Envelope {
	return Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: code, Message: message})}
}
