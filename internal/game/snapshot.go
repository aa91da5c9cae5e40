package game

import "time"

// RoomSnapshot is the serializable room state saved on every mutation. It is
// best effort: a restored room re-arms its timers, a lost one is just an
// empty lobby again.
type RoomSnapshot struct {
	RoomID  string           `json:"roomId"`
	Roster  []PlayerSnapshot `json:"roster,omitempty"`
	Session *SessionSnapshot `json:"session,omitempty"`
}

type PlayerSnapshot struct {
	ID     string `json:"id"`
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
	Spot   int    `json:"spot"`
	IsBot  bool   `json:"isBot"`
	Points int    `json:"points"`
	Alive  bool   `json:"isAlive"`
}

type SessionSnapshot struct {
	GameID         string               `json:"gameId"`
	State          string               `json:"state"`
	Round          int                  `json:"round"`
	RoundActive    bool                 `json:"roundActive"`
	Players        []PlayerSnapshot     `json:"players"`
	Submissions    map[string]int       `json:"submissions,omitempty"`
	DeadlineMs     int64                `json:"deadlineMs"`
	PrevAlive      int                  `json:"prevAlive"`
	PrevAverage    float64              `json:"prevAverage"`
	HasPrevAverage bool                 `json:"hasPrevAverage"`
	WinnerID       string               `json:"winnerId,omitempty"`
	Draw           bool                 `json:"draw,omitempty"`
	History        []RoundResultPayload `json:"history,omitempty"`
}

func snapPlayer(p *Player) PlayerSnapshot {
	return PlayerSnapshot{
		ID:     p.ID,
		UserID: p.UserID,
		Name:   p.Name,
		Spot:   p.Spot,
		IsBot:  p.IsBot,
		Points: p.Points,
		Alive:  p.Alive,
	}
}

func restorePlayer(ps PlayerSnapshot) *Player {
	return &Player{
		ID:     ps.ID,
		UserID: ps.UserID,
		Name:   ps.Name,
		Spot:   ps.Spot,
		IsBot:  ps.IsBot,
		Points: ps.Points,
		Alive:  ps.Alive,
	}
}

// snapshotLocked builds the room snapshot. Caller holds r.mu; the session
// snapshot takes s.mu (r.mu before s.mu is the allowed order).
func (r *Room) snapshotLocked() RoomSnapshot {
	snap := RoomSnapshot{RoomID: r.id}
	for _, p := range r.roster {
		snap.Roster = append(snap.Roster, snapPlayer(p))
	}
	if r.session != nil {
		ss := r.session.snapshot()
		snap.Session = &ss
	}
	return snap
}

func (s *Session) snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		GameID:         s.id,
		State:          s.state,
		Round:          s.round,
		RoundActive:    s.roundActive,
		DeadlineMs:     toMs(s.deadline),
		PrevAlive:      s.prevAlive,
		PrevAverage:    s.prevAverage,
		HasPrevAverage: s.hasPrevAverage,
		WinnerID:       s.winnerID,
		Draw:           s.draw,
		History:        append([]RoundResultPayload(nil), s.history...),
	}
	for _, p := range s.players {
		snap.Players = append(snap.Players, snapPlayer(p))
	}
	if len(s.submissions) > 0 {
		snap.Submissions = make(map[string]int, len(s.submissions))
		for id, n := range s.submissions {
			snap.Submissions[id] = n
		}
	}
	return snap
}

// restore rebuilds a room from a snapshot. Used by the registry after a
// restart; in-flight deadline timers are re-armed for active sessions.
func (r *Room) restore(snap RoomSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roster = nil
	for _, ps := range snap.Roster {
		r.roster = append(r.roster, restorePlayer(ps))
	}

	if snap.Session == nil {
		r.session = nil
		return
	}

	players := make([]*Player, 0, len(snap.Session.Players))
	for _, ps := range snap.Session.Players {
		players = append(players, restorePlayer(ps))
	}
	s := NewSession(snap.Session.GameID, players, r.cfg, r.rng, r.log)
	s.emit = r.broadcast
	s.onPersist = func() {
		if r.onPersist != nil {
			ss := s.snapshotLocked()
			r.onPersist(RoomSnapshot{RoomID: r.id, Session: &ss})
		}
	}
	s.onFinish = r.onGameOver
	s.restoreSession(*snap.Session)
	r.session = s
}

func (s *Session) restoreSession(snap SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = snap.State
	s.round = snap.Round
	s.roundActive = snap.RoundActive
	s.prevAlive = snap.PrevAlive
	s.prevAverage = snap.PrevAverage
	s.hasPrevAverage = snap.HasPrevAverage
	s.winnerID = snap.WinnerID
	s.draw = snap.Draw
	s.history = append([]RoundResultPayload(nil), snap.History...)

	s.submissions = make(map[string]int, len(snap.Submissions))
	for id, n := range snap.Submissions {
		s.submissions[id] = n
	}

	if snap.DeadlineMs > 0 {
		s.deadline = time.UnixMilli(snap.DeadlineMs)
	} else {
		s.deadline = time.Time{}
	}

	if s.state == "active" && s.roundActive {
		s.rearmTimerLocked()
	}
}
