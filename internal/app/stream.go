package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/ezhuthu/internal/observe"
	"github.com/MrWong99/ezhuthu/internal/suggest"
	"github.com/MrWong99/ezhuthu/internal/suggest/augment"
)

// handleStream serves GET /v1/suggest/stream. Each connection is one
// suggestion stream: messages are resolved concurrently, a newer message
// supersedes any older one still waiting on the augmenter, and superseded
// answers are never sent.
func (a *App) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	streamID := uuid.NewString()
	ctx, cancel := context.WithCancel(requestContext(r.Context(), r, streamID))
	defer cancel()
	stop := context.AfterFunc(a.base, cancel)
	defer stop()

	logger := observe.Logger(ctx)
	logger.Debug("stream opened")

	var wg sync.WaitGroup
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				logger.Debug("stream read ended", "err", err)
			}
			break
		}

		var msg suggestRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			a.send(ctx, conn, errorResponse{Error: "invalid message"})
			continue
		}
		wg.Go(func() { a.answer(ctx, conn, streamID, msg) })
	}

	// Cancel in-flight resolutions before waiting on them.
	cancel()
	wg.Wait()
	a.orch.EndStream(streamID)
	conn.Close(websocket.StatusNormalClosure, "")
	logger.Debug("stream closed")
}

func (a *App) answer(ctx context.Context, conn *websocket.Conn, streamID string, msg suggestRequest) {
	res, err := a.orch.ResolveStream(ctx, streamID, msg.toRequest())
	if err != nil {
		text := "internal error"
		if errors.Is(err, suggest.ErrInvalidInput) {
			text = err.Error()
		}
		a.send(ctx, conn, errorResponse{Seq: msg.Seq, Error: text})
		return
	}
	if res.Augment == augment.FailureSuperseded || ctx.Err() != nil {
		return
	}
	a.send(ctx, conn, suggestResponse{Seq: msg.Seq, Options: res.Texts()})
}

func (a *App) send(ctx context.Context, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		observe.Logger(ctx).Debug("stream write failed", "err", err)
	}
}
