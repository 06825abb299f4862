package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/ezhuthu/internal/entitlement"
	"github.com/MrWong99/ezhuthu/internal/observe"
	"github.com/MrWong99/ezhuthu/internal/suggest"
	"github.com/MrWong99/ezhuthu/internal/suggest/augment"
)

// Request headers.
const (
	StreamHeader  = "X-Stream-ID"
	AccountHeader = "X-Account-ID"
)

// maxBodyBytes caps request bodies and WebSocket messages.
const maxBodyBytes = 64 << 10

// suggestRequest is the body of POST /v1/suggest and of each stream message.
type suggestRequest struct {
	Seq     int64  `json:"seq,omitempty"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

func (r suggestRequest) toRequest() suggest.Request {
	return suggest.Request{Text: r.Text, Context: r.Context, Mode: suggest.Mode(r.Mode)}
}

// suggestResponse is the reply body. Options is never null.
type suggestResponse struct {
	Seq        int64    `json:"seq,omitempty"`
	Options    []string `json:"options"`
	Superseded bool     `json:"superseded,omitempty"`
}

type errorResponse struct {
	Seq   int64  `json:"seq,omitempty"`
	Error string `json:"error"`
}

// requestContext attaches the caller's account for entitlement checks and
// tags the request's log lines with account and stream.
func requestContext(ctx context.Context, r *http.Request, streamID string) context.Context {
	account := strings.TrimSpace(r.Header.Get(AccountHeader))
	var attrs []slog.Attr
	if account != "" {
		attrs = append(attrs, slog.String("account", account))
	}
	if streamID != "" {
		attrs = append(attrs, slog.String("stream_id", streamID))
	}
	return observe.WithLogAttrs(entitlement.WithAccount(ctx, account), attrs...)
}

type transliterateResponse struct {
	Text  string `json:"text"`
	Tamil string `json:"tamil"`
}

func (a *App) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var body suggestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	id := strings.TrimSpace(r.Header.Get(StreamHeader))
	ctx := requestContext(r.Context(), r, id)
	var (
		res *suggest.Resolution
		err error
	)
	if id != "" {
		res, err = a.orch.ResolveStream(ctx, id, body.toRequest())
	} else {
		res, err = a.orch.ResolveDetailed(ctx, body.toRequest())
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, suggestResponse{
		Options:    res.Texts(),
		Superseded: res.Augment == augment.FailureSuperseded,
	})
}

func (a *App) handleTransliterate(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: suggest.ErrEmptyInput.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transliterateResponse{Text: text, Tamil: a.orch.Transliterate(text)})
}

// writeError maps input errors to 400 and everything else to 500.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, suggest.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	observe.Logger(ctx).Error("suggest failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}
