package api

import (
	"errors"
	"net/http"

	"github.com/anysoft/askql/internal/users"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleRegister(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Accounts == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "ACCOUNTS_UNAVAILABLE", "accounts are not configured", false, nil)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid register request", false, map[string]any{"details": err.Error()})
		return
	}

	user, err := deps.Accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		var validationErr *users.ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", validationErr.Error(), false, map[string]any{"field": validationErr.Field})
		case errors.Is(err, users.ErrUsernameTaken):
			writeError(r.Context(), w, http.StatusConflict, "USERNAME_TAKEN", "username is already registered", false, nil)
		default:
			writeError(r.Context(), w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error(), true, nil)
		}
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func handleToken(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Accounts == nil || deps.Tokens == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "ACCOUNTS_UNAVAILABLE", "accounts are not configured", false, nil)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid token request", false, map[string]any{"details": err.Error()})
		return
	}

	user, err := deps.Accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			writeError(r.Context(), w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "incorrect username or password", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	token, err := deps.Tokens.Issue(user)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TOKEN_ISSUE_FAILED", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, token)
}
