package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"crowdsale/core/events"
	"crowdsale/core/types"
)

const streamWriteTimeout = 10 * time.Second

type streamEventJSON struct {
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Observed   time.Time         `json:"observedAt"`
}

// streamEvents upgrades to a websocket and pushes committed sale events,
// replaying retained history after the optional cursor query parameter.
func (h *handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only needed to observe the client closing the socket.
	ctx := conn.CloseRead(r.Context())
	if err := h.pumpEvents(ctx, conn, r.URL.Query().Get("cursor")); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			h.logger.Warn("event stream failed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *handlers) pumpEvents(ctx context.Context, conn *websocket.Conn, cursor string) error {
	updates, cancel, backlog := h.events.Subscribe(ctx, cursor)
	defer cancel()

	for _, rec := range backlog {
		if err := writeRecord(ctx, conn, rec); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec events.Record) error {
	payload := streamEventJSON{
		Cursor:   rec.Cursor,
		Type:     rec.Event.EventType(),
		Observed: rec.Observed,
	}
	if typed, ok := rec.Event.(interface{ Event() *types.Event }); ok && typed.Event() != nil {
		payload.Attributes = typed.Event().Clone().Attributes
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
