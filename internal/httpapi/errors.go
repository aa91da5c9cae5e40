package httpapi

import (
	"encoding/json"
	"net/http"
)

// Wire codes shared by the auth handlers and middleware.
const (
	codeBadRequest         = "bad_request"
	codeUnauthorized       = "unauthorized"
	codeInternal           = "internal"
	codeMethodNotAllowed   = "method_not_allowed"
	codeInvalidCredentials = "invalid_credentials"
	codeEmailTaken         = "email_taken"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, ErrorResponse{Code: errCode, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, codeBadRequest, msg)
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, codeUnauthorized, msg)
}

func internalError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusInternalServerError, codeInternal, msg)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "use POST")
}
