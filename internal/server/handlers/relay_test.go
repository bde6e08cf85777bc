package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/engine"
	apperrors "github.com/Ding-Fan/deepseek-telegram-bot/internal/errors"
)

type recordingRelayer struct {
	userID int64
	text   string
	reply  engine.Reply
}

func (r *recordingRelayer) Handle(ctx context.Context, userID int64, text string) engine.Reply {
	r.userID = userID
	r.text = text
	return r.reply
}

type mapLedger map[int64]core.UserRecord

func (m mapLedger) Get(id int64) (core.UserRecord, bool) {
	record, ok := m[id]
	return record, ok
}

func newRelayRouter(api *RelayAPI) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/relay", api.HandleRelay)
	r.Get("/v1/users/{id}", api.HandleUser)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleRelayForwardsMessage(t *testing.T) {
	relayer := &recordingRelayer{reply: engine.Reply{
		Text:  "4",
		Kind:  engine.ReplyAnswer,
		State: engine.StateRepliedAnswer,
	}}
	router := newRelayRouter(&RelayAPI{Relay: relayer})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/relay", strings.NewReader(`{"user_id":42,"text":"what is 2+2?"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RelayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, RelayResponse{Reply: "4", Outcome: "answered", State: "replied_answer"}, resp)
	assert.Equal(t, int64(42), relayer.userID)
	assert.Equal(t, "what is 2+2?", relayer.text)
}

func TestHandleRelayQuotaIsNormalReply(t *testing.T) {
	relayer := &recordingRelayer{reply: engine.Reply{
		Text:  engine.QuotaExceededReply,
		Kind:  engine.ReplyQuota,
		State: engine.StateRepliedQuota,
	}}
	router := newRelayRouter(&RelayAPI{Relay: relayer})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/relay", strings.NewReader(`{"user_id":42,"text":"again"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RelayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, engine.QuotaExceededReply, resp.Reply)
	assert.Equal(t, "quota_exceeded", resp.Outcome)
}

func TestHandleRelayRejectsInvalidBodies(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"malformed":      `{"user_id":`,
		"missing user":   `{"text":"hi"}`,
		"blank text":     `{"user_id":1,"text":"   "}`,
		"unknown fields": `{"user_id":1,"text":"hi","chat":5}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			relayer := &recordingRelayer{}
			router := newRelayRouter(&RelayAPI{Relay: relayer})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/relay", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code)
			assert.Zero(t, relayer.userID, "relay must not be invoked")
		})
	}
}

func TestHandleRelayWithoutRelayIsUnavailable(t *testing.T) {
	router := newRelayRouter(&RelayAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/relay", strings.NewReader(`{"user_id":1,"text":"hi"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleUserReturnsRecord(t *testing.T) {
	router := newRelayRouter(&RelayAPI{
		Ledger: mapLedger{42: {ID: 42, RequestCount: 3, Note: "beta"}},
		Limit:  5,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, UserResponse{ID: 42, Requests: 3, Limit: 5, Remaining: 2, Note: "beta"}, resp)
}

func TestHandleUserRemainingNeverNegative(t *testing.T) {
	router := newRelayRouter(&RelayAPI{
		Ledger: mapLedger{7: {ID: 7, RequestCount: 9}},
		Limit:  5,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Zero(t, resp.Remaining)
}

func TestHandleUserErrors(t *testing.T) {
	router := newRelayRouter(&RelayAPI{Ledger: mapLedger{}, Limit: 5})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}
