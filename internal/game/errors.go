package game

import "errors"

// Validation failures surfaced to the caller. None are retried internally;
// every one maps to a stable wire code for the error envelope.
var (
	ErrRoomExists         = errors.New("room already exists")
	ErrRoomNotFound       = errors.New("room not found")
	ErrGameNotFound       = errors.New("game not found")
	ErrSpotTaken          = errors.New("spot already taken")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrGameOver           = errors.New("game is over")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrPlayerEliminated   = errors.New("player is eliminated")
	ErrOutOfRange         = errors.New("number out of range")
)

func errCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomExists):
		return "room_exists"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrGameNotFound):
		return "game_not_found"
	case errors.Is(err, ErrSpotTaken):
		return "spot_taken"
	case errors.Is(err, ErrGameAlreadyStarted):
		return "game_already_started"
	case errors.Is(err, ErrGameOver):
		return "game_over"
	case errors.Is(err, ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, ErrPlayerEliminated):
		return "player_eliminated"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	default:
		return "internal"
	}
}
