package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlayerStats struct {
	UserID    string
	Games     int
	Wins      int
	UpdatedAt time.Time
}

// StatsStore tracks lifetime match results per registered user. Guest and bot
// results are not recorded.
type StatsStore struct {
	db *pgxpool.Pool
}

func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) InitForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_stats (user_id, games, wins)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (s *StatsStore) Get(ctx context.Context, userID string) (PlayerStats, error) {
	var st PlayerStats
	err := s.db.QueryRow(ctx, `
		SELECT user_id, games, wins, updated_at
		FROM player_stats
		WHERE user_id=$1
	`, userID).Scan(&st.UserID, &st.Games, &st.Wins, &st.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// missing stats are not fatal, report zeroes
		return PlayerStats{UserID: userID}, nil
	}
	if err != nil {
		return PlayerStats{}, err
	}
	return st, nil
}

// RecordResult bumps a user's game count, and the win count when won. The row
// is created on the fly for users registered before stats existed.
func (s *StatsStore) RecordResult(ctx context.Context, userID string, won bool) error {
	win := 0
	if won {
		win = 1
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_stats (user_id, games, wins)
		VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET games = player_stats.games + 1,
		    wins = player_stats.wins + $2,
		    updated_at = now()
	`, userID, win)
	return err
}
