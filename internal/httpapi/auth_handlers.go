package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/deathgame/internal/auth"
	"example.com/deathgame/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	Users    *store.UserStore
	Stats    *store.StatsStore
	Auth     *auth.Service
	TokenTTL time.Duration
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GuestRequest struct {
	Name string `json:"name"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		badRequest(w, "email, password and displayName are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, "failed to hash password")
		return
	}

	userID := uuid.NewString()
	u := store.User{
		ID:           userID,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
	}

	if err := h.Users.Create(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, codeEmailTaken, "email already exists")
			return
		}
		internalError(w, "failed to create user")
		return
	}

	_ = h.Stats.InitForUser(r.Context(), userID)

	w.WriteHeader(http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}

	u, err := h.Users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
		return
	}

	token, err := h.Auth.Sign(u.ID, u.DisplayName, h.TokenTTL)
	if err != nil {
		internalError(w, "failed to sign token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, UserID: u.ID})
}

// Guest mints a token with a fresh opaque id and no account behind it, so
// anyone can sit down at a table without registering.
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req GuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	userID := "guest-" + uuid.NewString()
	token, err := h.Auth.Sign(userID, req.Name, h.TokenTTL)
	if err != nil {
		internalError(w, "failed to sign token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, UserID: userID})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok || userID == "" {
		unauthorized(w, "missing auth context")
		return
	}

	u, err := h.Users.GetByID(r.Context(), userID)
	if err != nil {
		unauthorized(w, "user not found")
		return
	}

	st, err := h.Stats.Get(r.Context(), userID)
	if err != nil {
		internalError(w, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"createdAt":   u.CreatedAt,
		"stats": map[string]any{
			"games": st.Games,
			"wins":  st.Wins,
		},
	})
}
