package server

import (
	"net/http"

	apperrors "github.com/Ding-Fan/deepseek-telegram-bot/internal/errors"
)

// HandleError writes err as a JSON error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
