package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultEventKeepAlive = 25 * time.Second

// SessionFeed is a SessionSource that also announces changes.
type SessionFeed interface {
	SessionSource
	Subscribe(fn func()) (unsubscribe func())
}

// EventHandlers streams session changes to browsers over Server-Sent Events so every open
// page learns about sign-in and sign-out from any instance.
type EventHandlers struct {
	Sessions  SessionFeed
	KeepAlive time.Duration
	Logger    *slog.Logger
}

func (h *EventHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Stream sends the current status immediately and again after every change notification.
// Bursts of notifications collapse into one event carrying the latest state.
// GET /auth/events.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	changed := make(chan struct{}, 1)
	unsubscribe := h.Sessions.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.send(w, rc); err != nil {
		h.logger().DebugContext(r.Context(), "session stream closed", "error", err)
		return
	}

	interval := h.KeepAlive
	if interval <= 0 {
		interval = defaultEventKeepAlive
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			err = h.send(w, rc)
		case <-ticker.C:
			if _, err = io.WriteString(w, ": ping\n\n"); err == nil {
				err = rc.Flush()
			}
		}
		if err != nil {
			h.logger().DebugContext(r.Context(), "session stream closed", "error", err)
			return
		}
	}
}

func (h *EventHandlers) send(w http.ResponseWriter, rc *http.ResponseController) error {
	payload, err := json.Marshal(statusBody(h.Sessions.Snapshot()))
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if _, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return rc.Flush()
}
