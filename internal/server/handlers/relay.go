package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/engine"
	apperrors "github.com/Ding-Fan/deepseek-telegram-bot/internal/errors"
)

const maxRelayBodyBytes = 64 << 10

// Relayer handles one inbound chat message.
type Relayer interface {
	Handle(ctx context.Context, userID int64, text string) engine.Reply
}

// LedgerReader exposes read-only ledger lookups.
type LedgerReader interface {
	Get(id int64) (core.UserRecord, bool)
}

// RelayRequest is the body accepted by POST /v1/relay.
type RelayRequest struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// RelayResponse carries the reply exactly as a chat user would see it.
type RelayResponse struct {
	Reply   string `json:"reply"`
	Outcome string `json:"outcome"`
	State   string `json:"state"`
}

// UserResponse is the ledger view served by GET /v1/users/{id}.
type UserResponse struct {
	ID        int64  `json:"id"`
	Requests  int    `json:"requests"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Note      string `json:"note,omitempty"`
}

// RelayAPI serves the relay and ledger endpoints.
type RelayAPI struct {
	Relay  Relayer
	Ledger LedgerReader
	Limit  int
}

// HandleRelay runs one message through the relay. Quota and fallback replies are
// normal outcomes and return 200. The route spends quota for any user id it is
// given; the server guards it with the admin bearer token when one is configured.
func (a *RelayAPI) HandleRelay(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Relay == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("relay is not configured"))
		return
	}

	var req RelayRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRelayBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			respondWithError(w, r, apperrors.NewInvalidInputError("request body is required"))
			return
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object with user_id and text"))
		return
	}
	if req.UserID == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("user_id is required"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("text is required"))
		return
	}

	reply := a.Relay.Handle(r.Context(), req.UserID, req.Text)
	writeJSON(w, http.StatusOK, RelayResponse{
		Reply:   reply.Text,
		Outcome: string(reply.Kind),
		State:   reply.State,
	})
}

// HandleUser returns the ledger record for one user.
func (a *RelayAPI) HandleUser(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Ledger == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("ledger is not configured"))
		return
	}

	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("user id must be a non-zero integer"))
		return
	}

	record, ok := a.Ledger.Get(id)
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError("no ledger record for user "+raw))
		return
	}

	remaining := a.Limit - record.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, UserResponse{
		ID:        record.ID,
		Requests:  record.RequestCount,
		Limit:     a.Limit,
		Remaining: remaining,
		Note:      record.Note,
	})
}
