package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/petasbytes/ctxassist/memory"
)

// Frame types on the chat socket.
const (
	FrameMessage     = "message"     // client: {"type":"message","content":...}
	FrameContext     = "context"     // client: {"type":"context","context":...}
	FrameRecipient   = "recipient"   // client: {"type":"recipient","address":...}
	FramePending     = "pending"     // server: a prompt cycle has started
	FrameReply       = "reply"       // server: {"type":"reply","content":...}
	FrameProvisioned = "provisioned" // server: {"type":"provisioned","session":...}
	FrameRecipients  = "recipients"  // server: {"type":"recipients","recipients":[...]}
	FrameError       = "error"       // server: {"type":"error","status":...,"error":...}
)

// maxFrameSize bounds one client frame; context snippets are the largest.
const maxFrameSize = 1 << 20

// Frame is one JSON message on the chat socket.
type Frame struct {
	Type       string       `json:"type"`
	Content    string       `json:"content,omitempty"`
	Context    string       `json:"context,omitempty"`
	Address    string       `json:"address,omitempty"`
	Session    *sessionView `json:"session,omitempty"`
	Recipients []string     `json:"recipients,omitempty"`
	Status     int          `json:"status,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// checkOrigin accepts clients without an Origin header, pages served from the
// same host and the configured origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.origins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// Chat serves one session over a WebSocket. Frames are handled in order; a
// prompt blocks the socket until its reply is written.
// GET /v1/sessions/:session_id/ws
func (h *Handler) Chat(c echo.Context) error {
	id := c.Param("session_id")
	if err := h.store.Do(id, func(*memory.Session) error { return nil }); err != nil {
		return h.fail(c, err)
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", id, "err", err)
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	ctx := c.Request().Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read", "session_id", id, "err", err)
			}
			return nil
		}
		var in Frame
		if err := json.Unmarshal(data, &in); err != nil {
			if err := conn.WriteJSON(Frame{Type: FrameError, Status: http.StatusBadRequest, Error: "invalid JSON frame"}); err != nil {
				return nil
			}
			continue
		}
		if err := conn.WriteJSON(h.handleFrame(c, conn, in)); err != nil {
			h.logger.Warn("websocket write", "session_id", id, "err", err)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (h *Handler) handleFrame(c echo.Context, conn *websocket.Conn, in Frame) Frame {
	id := c.Param("session_id")
	ctx := c.Request().Context()
	var out Frame
	var err error
	switch in.Type {
	case FrameMessage:
		if strings.TrimSpace(in.Content) == "" {
			return Frame{Type: FrameError, Status: http.StatusBadRequest, Error: "content is required"}
		}
		if werr := conn.WriteJSON(Frame{Type: FramePending}); werr != nil {
			return Frame{Type: FrameError, Status: http.StatusInternalServerError, Error: werr.Error()}
		}
		err = h.store.Do(id, func(s *memory.Session) error {
			reply, err := h.runner.Ask(ctx, s, in.Content)
			out = Frame{Type: FrameReply, Content: reply}
			return err
		})
	case FrameContext:
		err = h.store.Do(id, func(s *memory.Session) error {
			if err := h.runner.Provision(ctx, s, in.Context); err != nil {
				return err
			}
			view := viewOf(s)
			out = Frame{Type: FrameProvisioned, Session: &view}
			return nil
		})
	case FrameRecipient:
		err = h.store.Do(id, func(s *memory.Session) error {
			if err := s.AddRecipient(in.Address); err != nil {
				return err
			}
			out = Frame{Type: FrameRecipients, Recipients: s.Recipients()}
			return nil
		})
	default:
		return Frame{Type: FrameError, Status: http.StatusBadRequest, Error: "unknown frame type: " + in.Type}
	}
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "websocket frame failed", "session_id", id, "type", in.Type, "status", status, "err", err)
		}
		return Frame{Type: FrameError, Status: status, Error: err.Error()}
	}
	return out
}
