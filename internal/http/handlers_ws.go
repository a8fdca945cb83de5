package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/target/jobstream/internal/service"
)

const wsWriteTimeout = 10 * time.Second

//nolint:gochecknoglobals // shared upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// StreamWebSocket serves the chunk stream of a job over a websocket. Each
// delivery event is one JSON text frame {event,index,data}.
func (h *JobHandlers) StreamWebSocket(w http.ResponseWriter, r *http.Request) {
	ref, err := jobRefFromRequest(r)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if _, err := h.Delivery.Attach(r.Context(), ref); err != nil {
		if r.Context().Err() == nil {
			writeServiceError(w, r, h.Logger, err)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		if h.Logger != nil {
			h.Logger.WarnContext(r.Context(), "websocket upgrade failed", "job_id", ref.ID, "error", err)
		}
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read loop only exists to notice the client closing the socket.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
					h.Logger != nil {
					h.Logger.DebugContext(ctx, "websocket read failed", "job_id", ref.ID, "error", err)
				}
				return
			}
		}
	}()

	stopPings := startKeepAlive(ctx, h.KeepAlive, func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
	})
	defer stopPings()

	emit := func(ev service.DeliveryEvent) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(ev)
	}

	if err := h.Delivery.Stream(ctx, ref, streamCursor(r), emit); err != nil {
		_ = emit(service.DeliveryEvent{Kind: service.EventError, Data: err.Error()})
	}
	if ctx.Err() == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) && h.Logger != nil {
			h.Logger.DebugContext(ctx, "websocket close failed", "job_id", ref.ID, "error", err)
		}
	}
}
