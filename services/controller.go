// Package services orchestrates one connection's chat lifecycle: connect,
// join, send, leave, disconnect, delete and stats. It validates state
// against the presence registry, runs the moderation pipeline, talks to
// the storage collaborators and fans accepted events out to the room.
package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"stream-chat/ai"
	"stream-chat/broadcast"
	"stream-chat/contract"
	"stream-chat/domain"
	"stream-chat/domain/event"
	"stream-chat/errors"
	"stream-chat/moderation"
	"stream-chat/presence"
)

// Config carries the controller's operational knobs.
type Config struct {
	BotName         string
	HistoryLimit    int
	ProviderTimeout time.Duration
	SinkTimeout     time.Duration
}

type Controller struct {
	log         *slog.Logger
	presence    *presence.Registry
	broadcaster *broadcast.Broadcaster
	messages    contract.MessageStore
	streams     contract.StreamStore
	pipeline    *moderation.Pipeline
	replier     contract.Replier
	isModerator contract.ModeratorCheck
	cfg         Config
	clock       contract.Clock
}

func NewController(log *slog.Logger, registry *presence.Registry,
	broadcaster *broadcast.Broadcaster, messages contract.MessageStore,
	streams contract.StreamStore, pipeline *moderation.Pipeline,
	replier contract.Replier, isModerator contract.ModeratorCheck,
	cfg Config) *Controller {
	return &Controller{
		log:         log,
		presence:    registry,
		broadcaster: broadcaster,
		messages:    messages,
		streams:     streams,
		pipeline:    pipeline,
		replier:     replier,
		isModerator: isModerator,
		cfg:         cfg,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for deterministic tests.
func (c *Controller) WithClock(clock contract.Clock) *Controller {
	c.clock = clock
	return c
}

// Connect acknowledges a new connection with its inferred identity.
func (c *Controller) Connect(ctx context.Context, s *Session) {
	c.emit(ctx, s, event.ConnectionStatus{
		Status:    "connected",
		UserID:    s.Identity.UserID,
		Username:  s.Identity.DisplayName,
		Timestamp: c.clock(),
	})
	c.log.Info("User connected to chat", "username", s.Identity.DisplayName)
}

// Join puts the session into a stream's chat room: presence entry,
// broadcast subscription, a user_joined broadcast to the room, then the
// recent history and a join acknowledgement to the joiner alone.
func (c *Controller) Join(ctx context.Context, s *Session, streamID string) {
	if streamID == "" {
		c.emitError(ctx, s, errors.ErrStreamIDRequired)
		return
	}

	stream, found, err := c.streams.GetStream(ctx, streamID)
	if err != nil {
		c.log.Error("Stream lookup failed", "stream", streamID, "err", err)
		c.emitError(ctx, s, errors.ErrJoinFailed)
		return
	}
	if !found {
		c.emitError(ctx, s, errors.ErrStreamNotFound)
		return
	}

	count := c.presence.Join(streamID, s.Identity.UserID, s.Identity.DisplayName)
	c.broadcaster.Subscribe(s.sink, streamID)
	s.addRoom(streamID)

	c.broadcaster.Broadcast(ctx, streamID, event.UserJoined{
		Username:  s.Identity.DisplayName,
		UserCount: count,
		Timestamp: c.clock(),
	})

	recent, err := c.messages.RecentMessages(ctx, streamID, c.cfg.HistoryLimit)
	if err != nil {
		c.log.Error("History fetch failed", "stream", streamID, "err", err)
		// The member is already in; back them out so the reported
		// failure matches reality.
		c.leaveRoom(ctx, s, streamID)
		c.emitError(ctx, s, errors.ErrJoinFailed)
		return
	}
	// The store returns newest first; the client wants oldest first.
	lo.Reverse(recent)

	c.emit(ctx, s, event.ChatHistory{
		Messages: lo.Map(recent, func(msg domain.Message, _ int) event.HistoryMessage {
			return event.HistoryMessage{
				ID:        msg.ID.String(),
				Username:  msg.DisplayName,
				Message:   msg.Body,
				Timestamp: msg.CreatedAt,
				IsBot:     msg.IsBot(),
			}
		}),
	})
	c.emit(ctx, s, event.JoinSuccess{
		StreamID:    streamID,
		StreamTitle: stream.Title,
		UserCount:   count,
	})
}

// Leave removes the session from a room. An emptied room is evicted and
// broadcasts nothing: there is no one left to notify.
func (c *Controller) Leave(ctx context.Context, s *Session, streamID string) {
	if streamID == "" {
		return
	}
	c.leaveRoom(ctx, s, streamID)
}

// Disconnect runs the leave logic for every joined room and discards all
// per-connection state. Rooms are independent; one room's failure never
// blocks another's cleanup.
func (c *Controller) Disconnect(ctx context.Context, s *Session) {
	for _, streamID := range s.roomList() {
		c.leaveRoom(ctx, s, streamID)
	}
	c.log.Info("User disconnected from chat", "username", s.Identity.DisplayName)
}

func (c *Controller) leaveRoom(ctx context.Context, s *Session, streamID string) {
	count, removed := c.presence.Leave(streamID, s.Identity.UserID)
	c.broadcaster.Unsubscribe(s.sink, streamID)
	s.removeRoom(streamID)

	if removed && count > 0 {
		c.broadcaster.Broadcast(ctx, streamID, event.UserLeft{
			Username:  s.Identity.DisplayName,
			UserCount: count,
		})
	}
}

// Send validates, moderates, persists and broadcasts one message, then
// gives the assistant a chance to answer help-seeking messages.
func (c *Controller) Send(ctx context.Context, s *Session, streamID, body string) {
	body = strings.TrimSpace(body)
	if streamID == "" || body == "" {
		c.emitError(ctx, s, errors.ErrMessageRequired)
		return
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageLength {
		c.emitError(ctx, s, errors.ErrMessageTooLong)
		return
	}
	if !c.presence.IsMember(streamID, s.Identity.UserID) {
		c.emitError(ctx, s, errors.ErrNotAMember)
		return
	}

	verdict := c.pipeline.Evaluate(ctx, body, s.Identity.DisplayName)
	if !verdict.Appropriate {
		// A block is a decision, not an error; nothing is persisted.
		c.emit(ctx, s, event.MessageBlocked{Reason: verdict.Reason})
		return
	}

	stored, err := c.messages.InsertMessage(ctx, domain.Message{
		StreamID:    streamID,
		UserID:      lo.ToPtr(s.Identity.UserID),
		DisplayName: s.Identity.DisplayName,
		Body:        body,
	})
	if err != nil {
		// Nothing was written, nothing is broadcast.
		c.log.Error("Message insert failed", "stream", streamID, "err", err)
		c.emitError(ctx, s, errors.ErrSendFailed)
		return
	}

	c.presence.RecordMessage(streamID)
	c.broadcaster.Broadcast(ctx, streamID, event.NewMessage{
		ID:        stored.ID.String(),
		Username:  stored.DisplayName,
		Message:   stored.Body,
		Timestamp: stored.CreatedAt,
		UserID:    stored.UserID,
		IsBot:     false,
	})

	c.maybeReply(ctx, streamID, body)
}

// maybeReply forwards help-seeking messages to the assistant. Every
// failure path is a silent suppression: the user's message already went
// through and a missing bot answer is never an error.
func (c *Controller) maybeReply(ctx context.Context, streamID, body string) {
	if !ai.WantsHelp(body) {
		return
	}

	var title string
	if stream, found, err := c.streams.GetStream(ctx, streamID); err == nil && found {
		title = stream.Title
	}

	replyCtx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	reply, err := c.replier.Reply(replyCtx, body, title)
	if err != nil {
		c.log.Warn("Assistant reply unavailable", "stream", streamID, "err", err)
		return
	}
	if reply == "" || utf8.RuneCountInString(reply) > domain.MaxReplyLength {
		return
	}

	stored, err := c.messages.InsertMessage(ctx, domain.Message{
		StreamID:    streamID,
		UserID:      nil,
		DisplayName: c.cfg.BotName,
		Body:        reply,
	})
	if err != nil {
		c.log.Error("Assistant message insert failed", "stream", streamID, "err", err)
		return
	}

	c.broadcaster.Broadcast(ctx, streamID, event.NewMessage{
		ID:        stored.ID.String(),
		Username:  stored.DisplayName,
		Message:   stored.Body,
		Timestamp: stored.CreatedAt,
		UserID:    nil,
		IsBot:     true,
	})
}

// Delete soft-deletes a message and notifies its room. Only identities
// passing the moderator predicate may delete; an unknown message id is a
// silent no-op, matching the absence semantics of the store.
func (c *Controller) Delete(ctx context.Context, s *Session, messageID string) {
	if messageID == "" {
		c.emitError(ctx, s, errors.ErrMessageIDRequired)
		return
	}
	if !c.isModerator(s.Identity) {
		c.emitError(ctx, s, errors.ErrNotModerator)
		return
	}

	id, err := uuid.Parse(messageID)
	if err != nil {
		c.log.Debug("Delete with malformed message id", "message_id", messageID)
		return
	}

	msg, err := c.messages.SoftDeleteMessage(ctx, id)
	if err != nil {
		if stderrors.Is(err, errors.ErrMessageNotFound) {
			c.log.Debug("Delete of unknown message", "message_id", messageID)
			return
		}
		c.log.Error("Message delete failed", "message_id", messageID, "err", err)
		c.emitError(ctx, s, errors.ErrDeleteFailed)
		return
	}

	// Broadcast even to an empty room; late joiners rely on history
	// exclusion, current viewers on this event.
	c.broadcaster.Broadcast(ctx, msg.StreamID, event.MessageDeleted{MessageID: messageID})
}

// Stats reports a room's counters to the requesting connection. Unknown
// rooms yield zeros, never an error.
func (c *Controller) Stats(ctx context.Context, s *Session, streamID string) {
	if streamID == "" {
		c.emitError(ctx, s, errors.ErrStreamIDRequired)
		return
	}

	snapshot := c.presence.Snapshot(streamID)
	c.emit(ctx, s, event.ChatStats{
		StreamID:         streamID,
		TotalMessages:    snapshot.TotalMessages,
		ActiveUsersCount: snapshot.ActiveUserCount,
		ActiveUsers: lo.Map(snapshot.Members, func(m domain.Member, _ int) event.ActiveUser {
			return event.ActiveUser{Username: m.DisplayName, JoinedAt: m.JoinedAt}
		}),
	})
}

func (c *Controller) emit(ctx context.Context, s *Session, e event.Event) {
	emitCtx, cancel := context.WithTimeout(ctx, c.cfg.SinkTimeout)
	defer cancel()
	if err := s.sink.Consume(emitCtx, e); err != nil {
		c.log.Warn("Event delivery to connection failed", "event", e.Name(), "err", err)
	}
}

func (c *Controller) emitError(ctx context.Context, s *Session, err error) {
	c.emit(ctx, s, event.Error{Message: err.Error()})
}
