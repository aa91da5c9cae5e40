package game

import (
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"example.com/deathgame/internal/auth"
)

// Config holds the engine tuning shared by every room.
type Config struct {
	// RoundDuration is the submission deadline for a normal round; 0 turns
	// the timer off (tests drive rounds by submissions only).
	RoundDuration time.Duration

	// NewRuleRoundDuration applies to the first round and the round right
	// after a rule modifier activates (alive count entering 4/3/2).
	NewRuleRoundDuration time.Duration
}

// TokenVerifier authenticates WS clients. Satisfied by auth.Service.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type Server struct {
	log      *slog.Logger
	registry *Registry
	verifier TokenVerifier
}

// NewServer needs no tuning of its own; the registry carries the engine
// config for the rooms it creates.
func NewServer(registry *Registry, verifier TokenVerifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log,
		registry: registry,
		verifier: verifier,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", s.handleRooms)
	mux.HandleFunc("/ws/", s.handleWS)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRoom(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"rooms": s.registry.List()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	// body is optional; an empty or absent id gets a generated code
	_ = json.NewDecoder(r.Body).Decode(&req)

	roomID := req.RoomID
	if roomID == "" {
		roomID = randID(10)
	}
	if !validRoomID(roomID) {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Code: "bad_request", Message: "invalid room id"})
		return
	}

	if _, err := s.registry.Create(r.Context(), roomID); err != nil {
		status := http.StatusInternalServerError
		if err == ErrRoomExists {
			status = http.StatusConflict
		}
		writeJSON(w, status, ErrorPayload{Code: errCode(err), Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"roomId": roomID})
}

func randID(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}

func validRoomID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
