// Package httpapi exposes sessions over HTTP with echo. Each session is
// independent; requests on one session are serialised by memory.Store.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/petasbytes/ctxassist/internal/poll"
	"github.com/petasbytes/ctxassist/internal/runner"
	"github.com/petasbytes/ctxassist/memory"
)

// Handler serves the session API.
type Handler struct {
	store    *memory.Store
	runner   *runner.Runner
	logger   *slog.Logger
	origins  []string
	upgrader websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAllowedOrigins lets browser pages from origins open the chat socket.
// The server's own origin is always allowed.
func WithAllowedOrigins(origins ...string) HandlerOption {
	return func(h *Handler) { h.origins = append(h.origins, origins...) }
}

func NewHandler(store *memory.Store, r *runner.Runner, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{store: store, runner: r, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterRoutes registers all routes on the given Echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	e.GET("/v1/sessions", h.ListSessions)
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.POST("/v1/sessions/:session_id/assistant", h.Provision)
	e.GET("/v1/sessions/:session_id/messages", h.ListMessages)
	e.POST("/v1/sessions/:session_id/messages", h.SendMessage)
	e.GET("/v1/sessions/:session_id/recipients", h.ListRecipients)
	e.POST("/v1/sessions/:session_id/recipients", h.AddRecipient)
	e.GET("/v1/sessions/:session_id/ws", h.Chat)
}

// NewServer returns an Echo instance with middleware and routes installed.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			h.logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	h.RegisterRoutes(e)
	return e
}

type sessionView struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Provisioned  bool      `json:"provisioned"`
	AssistantID  string    `json:"assistant_id,omitempty"`
	ThreadID     string    `json:"thread_id,omitempty"`
	MessageCount int       `json:"message_count"`
	Recipients   []string  `json:"recipients"`
}

func viewOf(s *memory.Session) sessionView {
	return sessionView{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		Provisioned:  s.Ready(),
		AssistantID:  string(s.AssistantID),
		ThreadID:     string(s.ThreadID),
		MessageCount: len(s.Messages()),
		Recipients:   s.Recipients(),
	}
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSession starts an empty, unprovisioned session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	s := h.store.Create()
	return c.JSON(http.StatusCreated, viewOf(s))
}

// ListSessions returns session ids in lexical order.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"sessions": h.store.IDs()})
}

// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	var view sessionView
	err := h.store.Do(c.Param("session_id"), func(s *memory.Session) error {
		view = viewOf(s)
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.store.Delete(c.Param("session_id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ProvisionRequest carries the knowledge snippet.
type ProvisionRequest struct {
	Context string `json:"context"`
}

// Provision creates or replaces the session's assistant and clears its transcript.
// POST /v1/sessions/:session_id/assistant
func (h *Handler) Provision(c echo.Context) error {
	var req ProvisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	var view sessionView
	err := h.store.Do(c.Param("session_id"), func(s *memory.Session) error {
		if err := h.runner.Provision(c.Request().Context(), s, req.Context); err != nil {
			return err
		}
		view = viewOf(s)
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// GET /v1/sessions/:session_id/messages
func (h *Handler) ListMessages(c echo.Context) error {
	var msgs []memory.Message
	err := h.store.Do(c.Param("session_id"), func(s *memory.Session) error {
		msgs = s.Messages()
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

// MessageRequest is one user prompt.
type MessageRequest struct {
	Content string `json:"content"`
}

// SendMessage runs one prompt cycle and returns the assistant's reply.
// POST /v1/sessions/:session_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}
	var reply string
	err := h.store.Do(c.Param("session_id"), func(s *memory.Session) error {
		var err error
		reply, err = h.runner.Ask(c.Request().Context(), s, req.Content)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, memory.Message{Role: "assistant", Content: reply})
}

// GET /v1/sessions/:session_id/recipients
func (h *Handler) ListRecipients(c echo.Context) error {
	var list []string
	err := h.store.Do(c.Param("session_id"), func(s *memory.Session) error {
		list = s.Recipients()
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"recipients": list})
}

// RecipientRequest adds one address to the session's list.
type RecipientRequest struct {
	Address string `json:"address"`
}

// POST /v1/sessions/:session_id/recipients
func (h *Handler) AddRecipient(c echo.Context) error {
	var req RecipientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	var list []string
	err := h.store.Do(c.Param("session_id"), func(s *memory.Session) error {
		if err := s.AddRecipient(req.Address); err != nil {
			return err
		}
		list = s.Recipients()
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"recipients": list})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrEmptyContext), errors.Is(err, memory.ErrEmptyRecipient):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrNotProvisioned):
		return http.StatusConflict
	case errors.Is(err, poll.ErrTimeout), errors.Is(err, poll.ErrMaxAttempts), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", status,
			"err", err,
		)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
