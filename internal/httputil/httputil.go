// Package httputil holds the JSON response and request helpers shared by REST handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error": {"code", "message"}}. Internal causes are logged and
// replaced by a generic message.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal && log != nil {
		log.Error("request failed", zap.Error(err))
	}
	WriteJSON(w, apperr.HTTPStatus(code), errorBody{Error: errorDetail{
		Code:    code,
		Message: apperr.MessageOf(err, "Internal server error"),
	}})
}

// DecodeJSON reads a JSON body into v. With strict set, unknown fields are rejected.
func DecodeJSON(r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidArgument("request body is empty")
		}
		return apperr.InvalidArgument("request body is invalid")
	}
	return nil
}

// QueryInt returns a positive integer query parameter or def when it is missing,
// non-numeric or not positive.
func QueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.InvalidArgument("invalid " + name)
	}
	return id, nil
}
