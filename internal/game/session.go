package game

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const (
	// RoomCapacity is the spot count; reaching it auto-starts the game.
	RoomCapacity = 5

	// MinPlayersToStart gates the explicit start path.
	MinPlayersToStart = 2

	// eliminationThreshold: a player whose points drop to it (or below) is out.
	eliminationThreshold = -10
)

// Player is one roster entry. points and alive are mutated only by the
// session at round resolution; eliminated players stay in the roster.
type Player struct {
	ID     string
	UserID string // auth identity, "" for bots
	Name   string
	Spot   int // 0..4, unique within a room
	IsBot  bool
	Points int
	Alive  bool
}

func (p *Player) info() PlayerInfo {
	return PlayerInfo{
		ID:     p.ID,
		Name:   p.Name,
		Spot:   p.Spot,
		IsBot:  p.IsBot,
		Points: p.Points,
		Alive:  p.Alive,
	}
}

// PlayerGameResult is handed to the stats recorder when a session ends.
type PlayerGameResult struct {
	UserID string
	IsBot  bool
	Won    bool
}

// Session drives one match from game start to a sole survivor. The player set
// is fixed at creation; rounds repeat until at most one player is alive.
//
// All state is guarded by mu. The deadline timer races the last submission for
// the right to resolve a round; roundActive plus roundToken make sure exactly
// one of them wins.
type Session struct {
	id string
	mu sync.Mutex

	cfg Config
	log *slog.Logger
	rng *rand.Rand

	state string // active|over

	round       int
	players     []*Player
	submissions map[string]int
	history     []RoundResultPayload

	deadline    time.Time
	roundActive bool
	roundTimer  *time.Timer
	roundToken  int64

	// previous round context for the bot heuristic and new-rule detection
	prevAlive      int
	prevAverage    float64
	hasPrevAverage bool

	winnerID string
	draw     bool

	emit      func(Envelope)
	onPersist func()
	onFinish  func([]PlayerGameResult)
}

func NewSession(id string, players []*Player, cfg Config, rng *rand.Rand, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Session{
		id:          id,
		cfg:         cfg,
		log:         log,
		rng:         rng,
		state:       "active",
		players:     players,
		submissions: make(map[string]int),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Start begins the first round.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round != 0 || s.state != "active" {
		return
	}
	s.startRoundLocked()
}

func (s *Session) Over() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == "over"
}

// SubmitNumber records one player's number for the current round. The first
// human submission pulls in every alive bot's number; when every alive player
// has an entry the round resolves immediately.
func (s *Session) SubmitNumber(playerID string, number int) (SubmitAckPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != "active" || !s.roundActive {
		return SubmitAckPayload{}, ErrGameOver
	}
	p := s.playerLocked(playerID)
	if p == nil {
		return SubmitAckPayload{}, ErrPlayerNotFound
	}
	if !p.Alive {
		return SubmitAckPayload{}, ErrPlayerEliminated
	}
	if number < 0 || number > 100 {
		return SubmitAckPayload{}, ErrOutOfRange
	}
	if _, ok := s.submissions[p.ID]; ok {
		// idempotent: the stored number stays as first submitted
		return SubmitAckPayload{Success: true, AlreadySubmitted: true}, nil
	}

	s.submissions[p.ID] = number

	// Bots react to the human move rather than running their own timers. They
	// must all be recorded before the completion check below.
	if !p.IsBot {
		s.fillBotsLocked()
	}

	all := s.allSubmittedLocked()
	if all {
		s.resolveRoundLocked()
	}
	s.persistLocked()
	return SubmitAckPayload{Success: true, AllSubmitted: all}, nil
}

func (s *Session) fillBotsLocked() {
	alive := s.aliveCountLocked()
	for _, p := range s.players {
		if !p.IsBot || !p.Alive {
			continue
		}
		if _, ok := s.submissions[p.ID]; ok {
			continue
		}
		taken := make([]int, 0, len(s.submissions))
		for _, n := range s.submissions {
			taken = append(taken, n)
		}
		n := ChooseBotNumber(s.rng, alive, taken, s.prevAverage, s.hasPrevAverage)
		s.submissions[p.ID] = n
		s.emitLocked(Envelope{Type: "bot_submit", Payload: mustJSON(BotSubmitPayload{
			BotName: p.Name,
			Number:  n,
		})})
	}
}

func (s *Session) allSubmittedLocked() bool {
	for _, p := range s.players {
		if !p.Alive {
			continue
		}
		if _, ok := s.submissions[p.ID]; !ok {
			return false
		}
	}
	return true
}

func (s *Session) startRoundLocked() {
	s.round++
	s.roundActive = true
	s.submissions = make(map[string]int)

	alive := s.aliveCountLocked()
	dur := s.cfg.RoundDuration
	if s.isNewRuleRoundLocked(alive) && s.cfg.NewRuleRoundDuration > 0 {
		dur = s.cfg.NewRuleRoundDuration
	}
	s.prevAlive = alive

	if dur > 0 {
		s.deadline = time.Now().Add(dur)
		s.roundToken++
		token := s.roundToken

		if s.roundTimer != nil {
			s.roundTimer.Stop()
		}
		s.roundTimer = time.AfterFunc(dur, func() {
			s.onRoundTimeout(token)
		})
	} else {
		s.deadline = time.Time{}
	}

	s.emitLocked(Envelope{Type: "round_started", Payload: mustJSON(RoundStartedPayload{
		Round:      s.round,
		DeadlineMs: toMs(s.deadline),
	})})
}

// isNewRuleRoundLocked reports whether a rule modifier just activated: the
// first round, or the first round after the alive count dropped into the
// 4/3/2 bracket. Those rounds get the longer deadline.
func (s *Session) isNewRuleRoundLocked(alive int) bool {
	if s.round == 1 {
		return true
	}
	return alive != s.prevAlive && alive <= duplicateRuleMaxAlive
}

func (s *Session) onRoundTimeout(token int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != "active" || !s.roundActive {
		return
	}
	if token != s.roundToken {
		return // stale timer
	}

	// Deadline hit: fill a random number for anyone who never submitted,
	// human or bot, then resolve with what we have.
	filled := 0
	for _, p := range s.players {
		if !p.Alive {
			continue
		}
		if _, ok := s.submissions[p.ID]; !ok {
			s.submissions[p.ID] = s.rng.Intn(101)
			filled++
		}
	}
	s.log.Info("round deadline reached",
		"gameId", s.id, "round", s.round, "autoFilled", filled)

	s.resolveRoundLocked()
	s.persistLocked()
}

func (s *Session) resolveRoundLocked() {
	if !s.roundActive {
		return // already resolved by the other trigger
	}
	s.roundActive = false

	if s.roundTimer != nil {
		s.roundTimer.Stop()
	}

	entries := make([]SubmissionEntry, 0, len(s.players))
	for _, p := range s.players {
		if !p.Alive {
			continue
		}
		n, ok := s.submissions[p.ID]
		if !ok {
			continue
		}
		entries = append(entries, SubmissionEntry{PlayerID: p.ID, Number: n})
	}
	if len(entries) == 0 {
		// Unreachable while the deadline timer runs with >=1 alive player.
		s.log.Error("round resolution with no submissions, skipping",
			"gameId", s.id, "round", s.round)
		return
	}

	outcome := ResolveRound(entries)

	result := RoundResultPayload{
		Round:         s.round,
		Average:       outcome.Average,
		Target:        outcome.Target,
		HasExactMatch: outcome.HasExactMatch,
	}
	for _, e := range outcome.Entries {
		p := s.playerLocked(e.PlayerID)
		p.Points += e.Delta
		if p.Points <= eliminationThreshold && p.Alive {
			p.Alive = false
		}
		result.Results = append(result.Results, PlayerRoundResult{
			PlayerID:    p.ID,
			PlayerName:  p.Name,
			Number:      e.Number,
			Distance:    e.Distance,
			Invalid:     e.Invalid,
			IsWinner:    e.IsWinner,
			Points:      e.Delta,
			TotalPoints: p.Points,
			Alive:       p.Alive,
			IsBot:       p.IsBot,
		})
	}

	s.prevAverage = outcome.Average
	s.hasPrevAverage = true

	alive := s.aliveCountLocked()
	result.GameOver = alive <= 1
	s.history = append(s.history, result)

	s.emitLocked(Envelope{Type: "round_result", Payload: mustJSON(result)})

	if alive > 1 {
		s.startRoundLocked()
		return
	}
	s.finishLocked()
}

// finishLocked enters the absorbing over state. Zero survivors can only
// happen when a round has no winners (every entry invalid); that ends as a
// draw rather than naming a winner.
func (s *Session) finishLocked() {
	s.state = "over"

	var winner *Player
	for _, p := range s.players {
		if p.Alive {
			winner = p
			break
		}
	}

	over := GameOverPayload{GameID: s.id, Rounds: len(s.history)}
	if winner != nil {
		s.winnerID = winner.ID
		over.WinnerID = winner.ID
		over.WinnerName = winner.Name
	} else {
		s.draw = true
		over.Draw = true
	}
	s.emitLocked(Envelope{Type: "game_over", Payload: mustJSON(over)})

	s.log.Info("game over",
		"gameId", s.id, "rounds", len(s.history), "winner", over.WinnerName, "draw", s.draw)

	if s.onFinish != nil {
		results := make([]PlayerGameResult, 0, len(s.players))
		for _, p := range s.players {
			results = append(results, PlayerGameResult{
				UserID: p.UserID,
				IsBot:  p.IsBot,
				Won:    winner != nil && p.ID == winner.ID,
			})
		}
		// Off the lock: the recorder may hit the database.
		go s.onFinish(results)
	}
}

// rearmTimerLocked restores the deadline timer after a snapshot load. A fresh
// token keeps any pre-restart timer from firing into the new round.
func (s *Session) rearmTimerLocked() {
	if s.state != "active" || !s.roundActive || s.deadline.IsZero() {
		return
	}
	s.roundToken++
	token := s.roundToken

	if s.roundTimer != nil {
		s.roundTimer.Stop()
	}
	d := time.Until(s.deadline)
	if d < 0 {
		d = 0
	}
	s.roundTimer = time.AfterFunc(d, func() {
		s.onRoundTimeout(token)
	})
}

func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roundTimer != nil {
		s.roundTimer.Stop()
	}
}

func (s *Session) playerLocked(id string) *Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Session) aliveCountLocked() int {
	n := 0
	for _, p := range s.players {
		if p.Alive {
			n++
		}
	}
	return n
}

func (s *Session) emitLocked(env Envelope) {
	if s.emit != nil {
		s.emit(env)
	}
}

func (s *Session) persistLocked() {
	if s.onPersist != nil {
		s.onPersist()
	}
}

// fillState copies session state into a room state snapshot, marking the
// entry belonging to userID as "you".
func (s *Session) fillState(st *StatePayload, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.Started = true
	st.GameID = s.id
	st.Round = s.round
	st.DeadlineMs = toMs(s.deadline)
	st.Submitted = make(map[string]bool, len(s.submissions))
	for id := range s.submissions {
		st.Submitted[id] = true
	}
	st.Players = make([]PlayerInfo, 0, len(s.players))
	for _, p := range s.players {
		st.Players = append(st.Players, p.info())
		if userID != "" && p.UserID == userID {
			st.You = p.ID
		}
	}
	st.History = append([]RoundResultPayload(nil), s.history...)
	st.Winner = s.winnerID
	st.Over = s.state == "over"
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
