package game

import "encoding/json"

// Envelope WS envelope: {"type":"...","payload":{...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// inbound payloads

type AuthPayload struct {
	Token string `json:"token"`
}

type JoinPayload struct {
	Name string `json:"name"`
	Spot int    `json:"spot"`
}

type AddBotPayload struct {
	Spot int `json:"spot"`
}

type LeavePayload struct {
	PlayerID string `json:"playerId"`
	Spot     int    `json:"spot"`
}

type SubmitNumberPayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId,omitempty"` // defaults to the caller's own player
	Number   int    `json:"number"`
}

// outbound payloads

type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Spot   int    `json:"spot"`
	IsBot  bool   `json:"isBot"`
	Points int    `json:"points"`
	Alive  bool   `json:"isAlive"`
}

type JoinedPayload struct {
	PlayerID string `json:"playerId"`
	Spot     int    `json:"spot"`
}

type WaitingRoomPayload struct {
	RoomID  string       `json:"roomId"`
	Players []PlayerInfo `json:"players"`
}

type GameStartPayload struct {
	GameID  string       `json:"gameId"`
	Players []PlayerInfo `json:"players"`
}

type RoundStartedPayload struct {
	Round      int   `json:"round"`
	DeadlineMs int64 `json:"deadlineMs"`
}

type BotSubmitPayload struct {
	BotName string `json:"botName"`
	Number  int    `json:"number"`
}

type SubmitAckPayload struct {
	Success          bool `json:"success"`
	AlreadySubmitted bool `json:"alreadySubmitted,omitempty"`
	AllSubmitted     bool `json:"allSubmitted,omitempty"`
}

// PlayerRoundResult carries the full per-player detail of one resolution.
// Points is the delta for the round, TotalPoints the running score after it.
type PlayerRoundResult struct {
	PlayerID    string  `json:"playerId"`
	PlayerName  string  `json:"playerName"`
	Number      int     `json:"number"`
	Distance    float64 `json:"distance"`
	Invalid     bool    `json:"invalid"`
	IsWinner    bool    `json:"isWinner"`
	Points      int     `json:"points"`
	TotalPoints int     `json:"totalPoints"`
	Alive       bool    `json:"isAlive"`
	IsBot       bool    `json:"isBot"`
}

type RoundResultPayload struct {
	Round         int                 `json:"round"`
	Average       float64             `json:"average"`
	Target        float64             `json:"target"`
	HasExactMatch bool                `json:"hasExactMatch"`
	GameOver      bool                `json:"gameOver"`
	Results       []PlayerRoundResult `json:"results"`
}

type GameOverPayload struct {
	GameID     string `json:"gameId"`
	WinnerID   string `json:"winnerId,omitempty"`
	WinnerName string `json:"winnerName,omitempty"`
	Draw       bool   `json:"draw,omitempty"`
	Rounds     int    `json:"rounds"`
}

// StatePayload is the personalized full-state snapshot sent on attach and on
// request, so a reconnecting client can resync without replaying events.
type StatePayload struct {
	RoomID     string               `json:"roomId"`
	You        string               `json:"you"` // playerId, "" until joined
	Started    bool                 `json:"started"`
	GameID     string               `json:"gameId,omitempty"`
	Round      int                  `json:"round,omitempty"`
	DeadlineMs int64                `json:"deadlineMs,omitempty"`
	Submitted  map[string]bool      `json:"submitted,omitempty"` // playerId -> has entry this round
	Players    []PlayerInfo         `json:"players"`
	History    []RoundResultPayload `json:"history,omitempty"`
	Winner     string               `json:"winner,omitempty"`
	Over       bool                 `json:"over,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
