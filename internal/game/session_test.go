package game

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envCollector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *envCollector) emit(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *envCollector) ofType(typ string) []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Envelope
	for _, e := range c.envs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func human(id, name string, points int) *Player {
	return &Player{ID: id, UserID: "u-" + id, Name: name, Points: points, Alive: true}
}

func bot(id, name string) *Player {
	return &Player{ID: id, Name: name, IsBot: true, Alive: true}
}

func newTestSession(t *testing.T, cfg Config, players ...*Player) (*Session, *envCollector) {
	t.Helper()
	col := &envCollector{}
	s := NewSession("g1", players, cfg, rand.New(rand.NewSource(42)), nil)
	s.emit = col.emit
	s.Start()
	t.Cleanup(s.stop)
	return s, col
}

func TestSession_SubmitIdempotent(t *testing.T) {
	s, _ := newTestSession(t, Config{}, human("a", "Alice", 0), human("b", "Bob", 0))

	ack, err := s.SubmitNumber("a", 30)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.False(t, ack.AlreadySubmitted)

	ack, err = s.SubmitNumber("a", 99)
	require.NoError(t, err)
	assert.True(t, ack.AlreadySubmitted)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 30, s.submissions["a"], "first submission must stick")
}

func TestSession_SubmitValidation(t *testing.T) {
	s, _ := newTestSession(t, Config{}, human("a", "Alice", 0), human("b", "Bob", 0))

	_, err := s.SubmitNumber("nobody", 10)
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	_, err = s.SubmitNumber("a", 101)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = s.SubmitNumber("a", -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestSession_BotsFillAfterFirstHumanSubmission(t *testing.T) {
	s, col := newTestSession(t, Config{},
		human("a", "Alice", 0), bot("b1", "Bot 2"), bot("b2", "Bot 3"), bot("b3", "Bot 4"), bot("b4", "Bot 5"))

	ack, err := s.SubmitNumber("a", 42)
	require.NoError(t, err)
	// the human was the last missing entry once bots reacted
	assert.True(t, ack.AllSubmitted)

	assert.Len(t, col.ofType("bot_submit"), 4)
	assert.Len(t, col.ofType("round_result"), 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 2, s.round, "next round should have started")
	assert.Empty(t, s.submissions, "submissions cleared for the new round")
	assert.Len(t, s.history, 1)
	assert.Len(t, s.history[0].Results, 5)
}

func TestSession_EliminationAndGameOver(t *testing.T) {
	s, col := newTestSession(t, Config{}, human("a", "Alice", -9), human("b", "Bob", 0))

	_, err := s.SubmitNumber("a", 90)
	require.NoError(t, err)
	ack, err := s.SubmitNumber("b", 10)
	require.NoError(t, err)
	assert.True(t, ack.AllSubmitted)

	// avg=50 target=40: Bob wins, Alice drops to -10 and is out
	results := col.ofType("round_result")
	require.Len(t, results, 1)
	var rr RoundResultPayload
	require.NoError(t, json.Unmarshal(results[0].Payload, &rr))
	assert.True(t, rr.GameOver)
	for _, pr := range rr.Results {
		if pr.PlayerID == "a" {
			assert.False(t, pr.Alive, "eliminated in the same round's result")
			assert.Equal(t, -10, pr.TotalPoints)
		}
	}

	overs := col.ofType("game_over")
	require.Len(t, overs, 1)
	var over GameOverPayload
	require.NoError(t, json.Unmarshal(overs[0].Payload, &over))
	assert.Equal(t, "b", over.WinnerID)
	assert.Equal(t, "Bob", over.WinnerName)
	assert.False(t, over.Draw)

	assert.True(t, s.Over())
	_, err = s.SubmitNumber("b", 10)
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestSession_SimultaneousEliminationIsDraw(t *testing.T) {
	s, col := newTestSession(t, Config{}, human("a", "Alice", -9), human("b", "Bob", -9))

	// same number head-to-head: both invalid, no winner, both eliminated
	_, err := s.SubmitNumber("a", 50)
	require.NoError(t, err)
	_, err = s.SubmitNumber("b", 50)
	require.NoError(t, err)

	require.True(t, s.Over())

	overs := col.ofType("game_over")
	require.Len(t, overs, 1)
	var over GameOverPayload
	require.NoError(t, json.Unmarshal(overs[0].Payload, &over))
	assert.True(t, over.Draw)
	assert.Empty(t, over.WinnerID)
}

func TestSession_EliminatedPlayerExcludedFromLaterRounds(t *testing.T) {
	s, _ := newTestSession(t, Config{},
		human("a", "Alice", -9), human("b", "Bob", 0), human("c", "Carol", 0))

	_, err := s.SubmitNumber("a", 90)
	require.NoError(t, err)
	_, err = s.SubmitNumber("b", 10)
	require.NoError(t, err)
	_, err = s.SubmitNumber("c", 20)
	require.NoError(t, err)

	// Alice is out; round 2 needs only Bob and Carol
	_, err = s.SubmitNumber("a", 50)
	assert.ErrorIs(t, err, ErrPlayerEliminated)

	_, err = s.SubmitNumber("b", 30)
	require.NoError(t, err)
	ack, err := s.SubmitNumber("c", 40)
	require.NoError(t, err)
	assert.True(t, ack.AllSubmitted)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.history, 2)
	assert.Len(t, s.history[0].Results, 3)
	assert.Len(t, s.history[1].Results, 2)
}

func TestSession_DeadlineAutofillsAndResolves(t *testing.T) {
	s, col := newTestSession(t, Config{RoundDuration: 40 * time.Millisecond, NewRuleRoundDuration: 40 * time.Millisecond},
		human("a", "Alice", 0), human("b", "Bob", 0))

	_, err := s.SubmitNumber("a", 25)
	require.NoError(t, err)

	time.Sleep(90 * time.Millisecond)
	s.stop()

	require.NotEmpty(t, col.ofType("round_result"))

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.history)
	var bob *PlayerRoundResult
	for i := range s.history[0].Results {
		if s.history[0].Results[i].PlayerID == "b" {
			bob = &s.history[0].Results[i]
		}
	}
	require.NotNil(t, bob)
	assert.GreaterOrEqual(t, bob.Number, 0)
	assert.LessOrEqual(t, bob.Number, 100)
}

func TestSession_ResolveOnlyOncePerRound(t *testing.T) {
	// a long deadline must not double-resolve a round already closed by the
	// last submission
	s, col := newTestSession(t, Config{RoundDuration: time.Hour, NewRuleRoundDuration: time.Hour},
		human("a", "Alice", 0), human("b", "Bob", 0))

	_, err := s.SubmitNumber("a", 20)
	require.NoError(t, err)
	_, err = s.SubmitNumber("b", 60)
	require.NoError(t, err)

	s.mu.Lock()
	round := s.round
	historyLen := len(s.history)
	s.mu.Unlock()

	assert.Equal(t, 2, round)
	assert.Equal(t, 1, historyLen)
	assert.Len(t, col.ofType("round_result"), 1)
}

func TestSession_NewRuleRoundGetsLongerDeadline(t *testing.T) {
	cfg := Config{RoundDuration: 30 * time.Minute, NewRuleRoundDuration: time.Hour}
	s, _ := newTestSession(t, cfg,
		human("a", "A", 0), human("b", "B", 0), human("c", "C", 0),
		human("d", "D", 0), human("e", "E", 0))

	s.mu.Lock()
	first := time.Until(s.deadline)
	s.mu.Unlock()
	assert.Greater(t, first, 45*time.Minute, "round 1 is a new-rule round")

	for _, p := range []struct {
		id string
		n  int
	}{{"a", 10}, {"b", 20}, {"c", 30}, {"d", 40}, {"e", 50}} {
		_, err := s.SubmitNumber(p.id, p.n)
		require.NoError(t, err)
	}

	s.mu.Lock()
	second := time.Until(s.deadline)
	s.mu.Unlock()
	assert.Less(t, second, 45*time.Minute, "alive count unchanged, normal deadline")
}
