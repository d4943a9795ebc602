// Package ws exposes the chat protocol over a websocket endpoint.
// Frames are JSON envelopes {type, payload}; outbound events reuse the
// domain event names as frame types.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stream-chat/auth"
	"stream-chat/domain/event"
	"stream-chat/errors"
	"stream-chat/services"
)

const (
	frameJoin   = "join_stream_chat"
	frameLeave  = "leave_stream_chat"
	frameSend   = "send_message"
	frameDelete = "delete_message"
	frameStats  = "get_chat_stats"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type joinPayload struct {
	StreamID string `json:"stream_id" validate:"required"`
}

type leavePayload struct {
	StreamID string `json:"stream_id"`
}

type sendPayload struct {
	StreamID string `json:"stream_id" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

type deletePayload struct {
	MessageID string `json:"message_id" validate:"required"`
}

type statsPayload struct {
	StreamID string `json:"stream_id" validate:"required"`
}

type Handler struct {
	log        *slog.Logger
	controller *services.Controller
	verifier   *auth.Verifier
	validate   *validator.Validate
	bufferSize int
}

func NewHandler(log *slog.Logger, controller *services.Controller,
	verifier *auth.Verifier, bufferSize int) *Handler {
	return &Handler{
		log:        log,
		controller: controller,
		verifier:   verifier,
		validate:   validator.New(),
		bufferSize: bufferSize,
	}
}

// Register mounts the websocket endpoint on the router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/ws", h.handle)
}

func (h *Handler) handle(c *gin.Context) {
	identity, err := h.verifier.Verify(bearerToken(c))
	if err != nil {
		h.log.Warn("Rejected connection with invalid token", "err", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if identity.UserID == "" {
		// Anonymous viewers still need a distinct presence key.
		identity.UserID = uuid.NewString()
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Websocket upgrade failed", "err", err)
		return
	}

	cn := newConn(socket, h.bufferSize)
	session := services.NewSession(identity, cn.sink)
	ctx := c.Request.Context()

	h.controller.Connect(ctx, session)

	go cn.writePump(h.log)
	h.readPump(ctx, session, cn)
}

// bearerToken reads the session token from the query string or the
// Authorization header. Browsers cannot set headers on websocket
// upgrades, so the query form is the primary one.
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (h *Handler) readPump(ctx context.Context, session *services.Session, cn *conn) {
	defer func() {
		h.controller.Disconnect(ctx, session)
		cn.close()
	}()

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Websocket read error", "user_id", session.Identity.UserID, "err", err)
			}
			return
		}
		h.dispatch(ctx, session, cn, data)
	}
}

func (h *Handler) dispatch(ctx context.Context, session *services.Session, cn *conn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.sendError(ctx, cn, "Invalid frame")
		return
	}

	switch env.Type {
	case frameJoin:
		var p joinPayload
		if !h.bind(ctx, cn, env.Payload, &p, errors.ErrStreamIDRequired) {
			return
		}
		h.controller.Join(ctx, session, p.StreamID)
	case frameLeave:
		// Leave is a silent no-op on a missing room id, so no required
		// field here; the controller swallows the empty case.
		var p leavePayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				h.sendError(ctx, cn, "Invalid frame")
				return
			}
		}
		h.controller.Leave(ctx, session, p.StreamID)
	case frameSend:
		var p sendPayload
		if !h.bind(ctx, cn, env.Payload, &p, errors.ErrMessageRequired) {
			return
		}
		h.controller.Send(ctx, session, p.StreamID, p.Message)
	case frameDelete:
		var p deletePayload
		if !h.bind(ctx, cn, env.Payload, &p, errors.ErrMessageIDRequired) {
			return
		}
		h.controller.Delete(ctx, session, p.MessageID)
	case frameStats:
		var p statsPayload
		if !h.bind(ctx, cn, env.Payload, &p, errors.ErrStreamIDRequired) {
			return
		}
		h.controller.Stats(ctx, session, p.StreamID)
	default:
		h.log.Warn("Unknown frame type", "type", env.Type)
		h.sendError(ctx, cn, "Unknown frame type")
	}
}

// bind unmarshals and validates a frame payload. Missing fields surface
// the same message the protocol uses for empty ones, so clients see one
// string per mistake regardless of which layer caught it. A false return
// means an error frame was already queued.
func (h *Handler) bind(ctx context.Context, cn *conn, raw json.RawMessage,
	out any, missing error) bool {
	if len(raw) == 0 {
		h.sendError(ctx, cn, missing.Error())
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		h.sendError(ctx, cn, "Invalid frame")
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		h.sendError(ctx, cn, missing.Error())
		return false
	}
	return true
}

func (h *Handler) sendError(ctx context.Context, cn *conn, message string) {
	_ = cn.sink.Consume(ctx, event.Error{Message: message})
}
