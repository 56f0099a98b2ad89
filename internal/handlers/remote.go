package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/karzamisca/TaskManager-sub000/internal/profile"
)

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Manager.StatusInfo())
}

func (h *Handler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":       h.Manager.State(),
		"transitions": h.Manager.Transitions(),
	})
}

// Connect connects with the current profile. It is a no-op when already
// connected with the same parameters.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Profile.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.Manager.Connect(r.Context(), cfg); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Manager.StatusInfo())
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.Manager.Disconnect(ctx); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Manager.StatusInfo())
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	v, err := h.Profile.Current()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UpdateSettings stores profile overrides. The new values apply on the next
// connect.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u profile.Update
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Profile.Save(u); err != nil {
		writeFailure(w, err)
		return
	}
	h.GetSettings(w, r)
}

func (h *Handler) GetFolders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Folders)
}

// statusEvent is pushed over the status stream.
type statusEvent struct {
	Connected bool        `json:"connected"`
	Error     string      `json:"error,omitempty"`
	Status    interface{} `json:"status"`
}

// StreamStatus sends the current status, then one event per connectivity
// transition until the client goes away.
func (h *Handler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.WithError(err).Warn("status stream: accept failed")
		return
	}
	defer conn.CloseNow()

	events := make(chan statusEvent, 16)
	unregister := h.Manager.AddConnectionListener(func(connected bool, err error) {
		ev := statusEvent{Connected: connected, Status: h.Manager.StatusInfo()}
		if err != nil {
			ev.Error = err.Error()
		}
		select {
		case events <- ev:
		default:
			// slow client; it still gets the next event
		}
	})
	defer unregister()

	ctx := conn.CloseRead(r.Context())

	info := h.Manager.StatusInfo()
	if err := writeEvent(ctx, conn, statusEvent{Connected: info.Connected, Status: info}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			if err := writeEvent(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev statusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
