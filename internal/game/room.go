package game

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Room is the pre-game lobby for up to five players. Once the roster hits
// capacity (or an explicit start with at least two players) it snapshots the
// roster into a Session and stops accepting lobby actions.
//
// Lock order: r.mu may be taken before s.mu, never the reverse; connsMu is a
// leaf lock. The session's emit/persist hooks therefore only touch conns or
// run lock-free.
type Room struct {
	id string
	mu sync.Mutex

	cfg Config
	log *slog.Logger
	rng *rand.Rand

	roster  []*Player
	session *Session

	connsMu sync.Mutex
	conns   map[string]*ClientConn // keyed by auth user id

	onPersist  func(RoomSnapshot)
	onEmpty    func(roomID string)
	onGameOver func([]PlayerGameResult)
}

func NewRoom(id string, cfg Config, log *slog.Logger) *Room {
	if log == nil {
		log = slog.Default()
	}
	return &Room{
		id:    id,
		cfg:   cfg,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		conns: make(map[string]*ClientConn),
	}
}

func (r *Room) ID() string {
	return r.id
}

// Join adds a player to the waiting roster. A user already in the roster gets
// their existing player id back (lobby reconnect). Reaching capacity starts
// the game immediately.
func (r *Room) Join(userID, name string, spot int, isBot bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return "", ErrGameAlreadyStarted
	}
	if spot < 0 || spot >= RoomCapacity {
		return "", ErrOutOfRange
	}
	if userID != "" {
		for _, p := range r.roster {
			if p.UserID == userID {
				return p.ID, nil
			}
		}
	}
	for _, p := range r.roster {
		if p.Spot == spot {
			return "", ErrSpotTaken
		}
	}

	p := &Player{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Spot:   spot,
		IsBot:  isBot,
		Alive:  true,
	}
	r.roster = append(r.roster, p)

	r.log.Info("player joined",
		"roomId", r.id, "player", name, "spot", spot, "bot", isBot, "roster", len(r.roster))

	r.broadcast(Envelope{Type: "waiting_room_update", Payload: mustJSON(r.waitingRoomLocked())})

	if len(r.roster) == RoomCapacity {
		r.startGameLocked()
	}
	r.persistLocked()
	return p.ID, nil
}

// AddBot fills a spot with an engine-controlled player.
func (r *Room) AddBot(spot int) (string, error) {
	return r.Join("", fmt.Sprintf("Bot %d", spot+1), spot, true)
}

// Leave removes a waiting player. Leaving is a lobby action only; once the
// game starts a missing player is handled by the round deadline instead.
func (r *Room) Leave(playerID string, spot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return ErrGameAlreadyStarted
	}
	idx := -1
	for i, p := range r.roster {
		if p.ID == playerID && p.Spot == spot {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrPlayerNotFound
	}
	r.roster = append(r.roster[:idx], r.roster[idx+1:]...)

	r.log.Info("player left", "roomId", r.id, "playerId", playerID, "roster", len(r.roster))

	r.broadcast(Envelope{Type: "waiting_room_update", Payload: mustJSON(r.waitingRoomLocked())})
	r.persistLocked()

	if len(r.roster) == 0 {
		r.signalEmptyLocked()
	}
	return nil
}

// StartGame is the explicit start path for under-capacity rooms.
func (r *Room) StartGame() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return "", ErrGameAlreadyStarted
	}
	if len(r.roster) < MinPlayersToStart {
		return "", ErrNotEnoughPlayers
	}
	r.startGameLocked()
	r.persistLocked()
	return r.session.ID(), nil
}

func (r *Room) startGameLocked() {
	players := r.roster
	r.roster = nil

	s := NewSession(uuid.NewString(), players, r.cfg, r.rng, r.log)
	s.emit = r.broadcast
	// The roster is empty for the rest of the room's life, so the session
	// snapshot alone is the room snapshot. Runs under s.mu only.
	s.onPersist = func() {
		if r.onPersist != nil {
			snap := s.snapshotLocked()
			r.onPersist(RoomSnapshot{RoomID: r.id, Session: &snap})
		}
	}
	s.onFinish = r.onGameOver
	r.session = s

	infos := make([]PlayerInfo, 0, len(players))
	for _, p := range players {
		infos = append(infos, p.info())
	}
	r.log.Info("game starting", "roomId", r.id, "gameId", s.ID(), "players", len(infos))
	r.broadcast(Envelope{Type: "game_start", Payload: mustJSON(GameStartPayload{
		GameID:  s.ID(),
		Players: infos,
	})})

	s.Start()
}

// SubmitNumber forwards to the active session.
func (r *Room) SubmitNumber(gameID, playerID string, number int) (SubmitAckPayload, error) {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()

	if s == nil || (gameID != "" && s.ID() != gameID) {
		return SubmitAckPayload{}, ErrGameNotFound
	}
	return s.SubmitNumber(playerID, number)
}

// Attach registers a connection for broadcasts. A second attach for the same
// user replaces the old connection (reconnect).
func (r *Room) Attach(userID string, cc *ClientConn) {
	r.connsMu.Lock()
	old := r.conns[userID]
	r.conns[userID] = cc
	r.connsMu.Unlock()
	if old != nil && old != cc {
		old.Close()
	}
}

// Detach drops a connection. The room reports itself empty once nobody is
// connected and there is nothing left to play.
func (r *Room) Detach(userID string, cc *ClientConn) {
	r.connsMu.Lock()
	if r.conns[userID] == cc {
		delete(r.conns, userID)
	}
	n := len(r.conns)
	r.connsMu.Unlock()

	if n > 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.roster) == 0 && (r.session == nil || r.session.Over()) {
		r.signalEmptyLocked()
	}
}

// State builds the personalized full-state snapshot for one user.
func (r *Room) State(userID string) StatePayload {
	r.mu.Lock()
	st := StatePayload{RoomID: r.id}
	for _, p := range r.roster {
		st.Players = append(st.Players, p.info())
		if userID != "" && p.UserID == userID {
			st.You = p.ID
		}
	}
	s := r.session
	r.mu.Unlock()

	if s != nil {
		s.fillState(&st, userID)
	}
	return st
}

// PlayerIDForUser maps an auth identity to its player id, in the lobby or in
// the running game. Empty string when the user has not joined.
func (r *Room) PlayerIDForUser(userID string) string {
	if userID == "" {
		return ""
	}
	r.mu.Lock()
	for _, p := range r.roster {
		if p.UserID == userID {
			r.mu.Unlock()
			return p.ID
		}
	}
	s := r.session
	r.mu.Unlock()

	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.UserID == userID {
			return p.ID
		}
	}
	return ""
}

// Occupancy reports roster size and whether a game is running, for listings.
// The session's player set is fixed at creation, so reading its length is
// safe without the session lock.
func (r *Room) Occupancy() (players int, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return len(r.session.players), true
	}
	return len(r.roster), false
}

func (r *Room) waitingRoomLocked() WaitingRoomPayload {
	out := WaitingRoomPayload{RoomID: r.id}
	for _, p := range r.roster {
		out.Players = append(out.Players, p.info())
	}
	return out
}

func (r *Room) broadcast(env Envelope) {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	for _, cc := range r.conns {
		cc.Send(env)
	}
}

// SendTo delivers an envelope to a single connected user.
func (r *Room) SendTo(userID string, env Envelope) {
	r.connsMu.Lock()
	cc := r.conns[userID]
	r.connsMu.Unlock()
	if cc != nil {
		cc.Send(env)
	}
}

// signalEmptyLocked tears the room down only once nobody is connected; an
// emptied lobby with sockets still attached waits for the last Detach, which
// runs the same check. Removing earlier would leave attached users driving an
// unregistered room while a new instance restores under the same id.
func (r *Room) signalEmptyLocked() {
	r.connsMu.Lock()
	n := len(r.conns)
	r.connsMu.Unlock()
	if n > 0 {
		return
	}

	if r.session != nil {
		r.session.stop()
	}
	if r.onEmpty != nil {
		go r.onEmpty(r.id)
	}
}

func (r *Room) persistLocked() {
	if r.onPersist == nil {
		return
	}
	r.onPersist(r.snapshotLocked())
}
