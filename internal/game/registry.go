package game

import (
	"context"
	"log/slog"
	"sync"
)

// RoomPersistence is the put/get/drop contract for room snapshots. Redis in
// production, an in-memory map in tests.
type RoomPersistence interface {
	Save(ctx context.Context, roomID string, snap RoomSnapshot) error
	Load(ctx context.Context, roomID string) (RoomSnapshot, bool, error)
	Delete(ctx context.Context, roomID string) error
}

// StatsRecorder receives final game results for lifetime stats. Optional.
type StatsRecorder interface {
	RecordGameResults(ctx context.Context, results []PlayerGameResult) error
}

// RoomInfo is one row of the lobby listing.
type RoomInfo struct {
	RoomID  string `json:"roomId"`
	Players int    `json:"players"`
	Started bool   `json:"started"`
}

// Registry owns every room in the process. Rooms are created explicitly,
// looked up by id (falling back to the snapshot store), and dropped once
// empty. Each room serializes its own state; the registry lock only guards
// the table.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	cfg     Config
	log     *slog.Logger
	persist RoomPersistence
	stats   StatsRecorder
}

func NewRegistry(cfg Config, persist RoomPersistence, stats StatsRecorder, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		cfg:     cfg,
		log:     log,
		persist: persist,
		stats:   stats,
	}
}

// Create allocates an empty room under the given id.
func (g *Registry) Create(ctx context.Context, roomID string) (*Room, error) {
	g.mu.Lock()
	if _, ok := g.rooms[roomID]; ok {
		g.mu.Unlock()
		return nil, ErrRoomExists
	}
	r := g.newRoom(roomID)
	g.rooms[roomID] = r
	g.mu.Unlock()

	if g.persist != nil {
		if err := g.persist.Save(ctx, roomID, RoomSnapshot{RoomID: roomID}); err != nil {
			g.log.Warn("room snapshot save failed", "roomId", roomID, "err", err)
		}
	}
	g.log.Info("room created", "roomId", roomID)
	return r, nil
}

// GetOrLoad returns a live room, restoring it from the snapshot store when
// the process no longer has it in memory.
func (g *Registry) GetOrLoad(ctx context.Context, roomID string) (*Room, bool, error) {
	g.mu.Lock()
	r, ok := g.rooms[roomID]
	g.mu.Unlock()
	if ok {
		return r, true, nil
	}

	if g.persist == nil {
		return nil, false, nil
	}
	snap, found, err := g.persist.Load(ctx, roomID)
	if err != nil || !found {
		return nil, false, err
	}

	// Restore under the registry lock, after re-checking the slot: a loser of
	// the load race must never hold a second live instance with armed timers
	// and a wired persist hook.
	g.mu.Lock()
	if existing, ok := g.rooms[roomID]; ok {
		g.mu.Unlock()
		return existing, true, nil
	}
	r = g.newRoom(roomID)
	r.restore(snap)
	g.rooms[roomID] = r
	g.mu.Unlock()

	g.log.Info("room restored from snapshot", "roomId", roomID)
	return r, true, nil
}

// List reports every in-memory room for the lobby listing.
func (g *Registry) List() []RoomInfo {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		players, started := r.Occupancy()
		out = append(out, RoomInfo{RoomID: r.ID(), Players: players, Started: started})
	}
	return out
}

// Count returns the number of live rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// newRoom wires hooks against background contexts: snapshot saves and stats
// writes outlive the request that triggered them.
func (g *Registry) newRoom(roomID string) *Room {
	r := NewRoom(roomID, g.cfg, g.log)
	if g.persist != nil {
		r.onPersist = func(snap RoomSnapshot) {
			if err := g.persist.Save(context.Background(), roomID, snap); err != nil {
				g.log.Warn("room snapshot save failed", "roomId", roomID, "err", err)
			}
		}
	}
	r.onEmpty = func(id string) { g.remove(context.Background(), id) }
	if g.stats != nil {
		r.onGameOver = func(results []PlayerGameResult) {
			if err := g.stats.RecordGameResults(context.Background(), results); err != nil {
				g.log.Warn("stats record failed", "roomId", roomID, "err", err)
			}
		}
	}
	return r
}

func (g *Registry) remove(ctx context.Context, roomID string) {
	g.mu.Lock()
	delete(g.rooms, roomID)
	g.mu.Unlock()

	if g.persist != nil {
		if err := g.persist.Delete(ctx, roomID); err != nil {
			g.log.Warn("room snapshot delete failed", "roomId", roomID, "err", err)
		}
	}
	g.log.Info("room removed", "roomId", roomID)
}
