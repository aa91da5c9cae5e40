package game

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/deathgame/internal/auth"
)

func TestRoomIDFromWSPath(t *testing.T) {
	tests := []struct {
		path string
		id   string
		ok   bool
	}{
		{"/ws/abc123", "abc123", true},
		{"/ws/" + strings.Repeat("a", 64), strings.Repeat("a", 64), true},
		{"/ws/", "", false},
		{"/ws/ABC", "", false},
		{"/ws/abc/extra", "", false},
		{"/ws/" + strings.Repeat("a", 65), "", false},
		{"/wsx/abc", "", false},
		{"/api/rooms", "", false},
	}
	for _, tt := range tests {
		id, ok := roomIDFromWSPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.id, id, tt.path)
	}
}

func TestClientConn_SendAfterCloseIsSafe(t *testing.T) {
	cc := newClientConn(nil)
	cc.Send(Envelope{Type: "state"})
	cc.Close()
	cc.Close()

	require.NotPanics(t, func() { cc.Send(Envelope{Type: "state"}) })

	select {
	case <-cc.done:
	default:
		t.Fatal("done not signalled after close")
	}
}

func TestRoom_ReplacedConnStaysSendSafe(t *testing.T) {
	r := NewRoom("lobby", Config{}, nil)
	old := newClientConn(nil)
	r.Attach("u1", old)

	// reconnect: the old conn is closed while its read loop may still ack
	r.Attach("u1", newClientConn(nil))
	require.NotPanics(t, func() { old.Send(errEnvelope("game_over", "x")) })
}

// testVerifier accepts tokens of the form "tok:<uid>:<name>".
type testVerifier struct{}

func (testVerifier) Verify(token string) (*auth.Claims, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[0] != "tok" {
		return nil, fmt.Errorf("bad token")
	}
	return &auth.Claims{UserID: parts[1], DisplayName: parts[2]}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	reg := NewRegistry(Config{}, newMemPersist(), nil, nil)
	srv := NewServer(reg, testVerifier{}, nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, reg
}

func TestServer_CreateAndListRooms(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/rooms", "application/json", strings.NewReader(`{"roomId":"alpha"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "alpha", created["roomId"])

	resp, err = http.Post(ts.URL+"/api/rooms", "application/json", strings.NewReader(`{"roomId":"alpha"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/rooms", "application/json", strings.NewReader(`{"roomId":"NOT OK"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// empty body gets a generated id
	resp, err = http.Post(ts.URL+"/api/rooms", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.True(t, validRoomID(created["roomId"]))

	resp, err = http.Get(ts.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var listing struct {
		Rooms []RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	assert.Len(t, listing.Rooms, 2)
}

func wsURL(ts *httptest.Server, roomID string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + roomID
}

func dialRoom(t *testing.T, ts *httptest.Server, roomID, token string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, roomID), h)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := readEnvelope(t, conn)
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("no %q message received", typ)
	return Envelope{}
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Envelope{Type: typ, Payload: mustJSON(payload)}))
}

func TestWS_HeaderAuthAndJoin(t *testing.T) {
	ts, reg := newTestServer(t)
	_, err := reg.Create(context.Background(), "alpha")
	require.NoError(t, err)

	conn := dialRoom(t, ts, "alpha", "tok:u1:Alice")

	env := readEnvelope(t, conn)
	require.Equal(t, "state", env.Type)
	var st StatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &st))
	assert.Equal(t, "alpha", st.RoomID)
	assert.Empty(t, st.You)

	// no explicit name: the token display name is used
	sendEnvelope(t, conn, "join", JoinPayload{Spot: 0})
	env = readUntil(t, conn, "waiting_room_update")
	var wr WaitingRoomPayload
	require.NoError(t, json.Unmarshal(env.Payload, &wr))
	require.Len(t, wr.Players, 1)
	assert.Equal(t, "Alice", wr.Players[0].Name)

	env = readUntil(t, conn, "joined")
	var joined JoinedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &joined))
	assert.NotEmpty(t, joined.PlayerID)
}

func TestWS_MessageAuth(t *testing.T) {
	ts, reg := newTestServer(t)
	_, err := reg.Create(context.Background(), "alpha")
	require.NoError(t, err)

	conn := dialRoom(t, ts, "alpha", "")
	sendEnvelope(t, conn, "auth", AuthPayload{Token: "tok:u1:Alice"})

	env := readUntil(t, conn, "state")
	var st StatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &st))
	assert.Equal(t, "alpha", st.RoomID)
}

func TestWS_RejectsBadCredentials(t *testing.T) {
	ts, reg := newTestServer(t)
	_, err := reg.Create(context.Background(), "alpha")
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "alpha"), http.Header{
		"Authorization": []string{"Bearer garbage"},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn := dialRoom(t, ts, "alpha", "")
	sendEnvelope(t, conn, "auth", AuthPayload{Token: "garbage"})
	env := readEnvelope(t, conn)
	require.Equal(t, "error", env.Type)
	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ep))
	assert.Equal(t, "unauthorized", ep.Code)
}

func TestWS_UnknownRoomIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "nosuchroom"), http.Header{
		"Authorization": []string{"Bearer tok:u1:Alice"},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWS_FullGameHeadToHead(t *testing.T) {
	ts, reg := newTestServer(t)
	_, err := reg.Create(context.Background(), "alpha")
	require.NoError(t, err)

	alice := dialRoom(t, ts, "alpha", "tok:u1:Alice")
	bob := dialRoom(t, ts, "alpha", "tok:u2:Bob")
	readUntil(t, alice, "state")
	readUntil(t, bob, "state")

	sendEnvelope(t, alice, "join", JoinPayload{Spot: 0})
	readUntil(t, alice, "joined")
	sendEnvelope(t, bob, "join", JoinPayload{Spot: 1})
	readUntil(t, bob, "joined")

	sendEnvelope(t, alice, "start_game", struct{}{})
	env := readUntil(t, alice, "game_start")
	var start GameStartPayload
	require.NoError(t, json.Unmarshal(env.Payload, &start))
	require.Len(t, start.Players, 2)
	readUntil(t, alice, "round_started")
	readUntil(t, bob, "game_start")

	// 0 vs 100 head to head: 100 wins the round
	sendEnvelope(t, alice, "submit_number", SubmitNumberPayload{Number: 0})
	env = readUntil(t, alice, "submit_ack")
	var ack SubmitAckPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ack))
	assert.True(t, ack.Success)

	sendEnvelope(t, bob, "submit_number", SubmitNumberPayload{Number: 100})

	env = readUntil(t, alice, "round_result")
	var rr RoundResultPayload
	require.NoError(t, json.Unmarshal(env.Payload, &rr))
	require.Len(t, rr.Results, 2)
	for _, pr := range rr.Results {
		if pr.Number == 100 {
			assert.True(t, pr.IsWinner)
			assert.Equal(t, 0, pr.Points)
		} else {
			assert.False(t, pr.IsWinner)
			assert.Equal(t, -1, pr.Points)
		}
	}
}
