package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"stream-chat/auth"
	"stream-chat/broadcast"
	"stream-chat/contract"
	"stream-chat/domain"
	"stream-chat/domain/event"
	"stream-chat/errors"
	"stream-chat/moderation"
	"stream-chat/presence"
)

const (
	testTimeout = 50 * time.Millisecond
	botName     = "StrophenBot"
)

// recordingSink captures every event one connection receives.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *recordingSink) byName(name string) []event.Event {
	var matched []event.Event
	for _, e := range s.all() {
		if e.Name() == name {
			matched = append(matched, e)
		}
	}
	return matched
}

func (s *recordingSink) last() event.Event {
	events := s.all()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

// fakeMessages is an in-memory message store.
type fakeMessages struct {
	mu        sync.Mutex
	rows      []domain.Message
	insertErr error
	recentErr error
	deleteErr error
}

func (f *fakeMessages) InsertMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return domain.Message{}, f.insertErr
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, msg)
	return msg, nil
}

func (f *fakeMessages) RecentMessages(_ context.Context, streamID string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	var recent []domain.Message
	for i := len(f.rows) - 1; i >= 0 && len(recent) < limit; i-- {
		row := f.rows[i]
		if row.StreamID != streamID || row.Deleted {
			continue
		}
		recent = append(recent, row)
	}
	return recent, nil
}

func (f *fakeMessages) SoftDeleteMessage(_ context.Context, id uuid.UUID) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return domain.Message{}, f.deleteErr
	}
	for i, row := range f.rows {
		if row.ID == id {
			f.rows[i].Deleted = true
			return f.rows[i], nil
		}
	}
	return domain.Message{}, errors.ErrMessageNotFound
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeStreams serves stream metadata rows.
type fakeStreams struct {
	streams map[string]domain.Stream
}

func (f *fakeStreams) GetStream(_ context.Context, id string) (domain.Stream, bool, error) {
	stream, ok := f.streams[id]
	return stream, ok, nil
}

type approveClassifier struct{}

func (approveClassifier) Classify(context.Context, string, string) (domain.Verdict, error) {
	return domain.Verdict{Appropriate: true}, nil
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string, string) (domain.Verdict, error) {
	return domain.Verdict{}, fmt.Errorf("provider down")
}

type fixedReplier struct {
	text string
}

func (r fixedReplier) Reply(context.Context, string, string) (string, error) {
	return r.text, nil
}

type failingReplier struct{}

func (failingReplier) Reply(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("provider down")
}

type harness struct {
	controller *Controller
	registry   *presence.Registry
	messages   *fakeMessages
}

func newHarness(t *testing.T, classifier contract.Classifier, replier contract.Replier) *harness {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)

	terms, err := moderation.LoadBannedTerms()
	require.NoError(t, err)
	pipeline, err := moderation.NewPipeline(terms, classifier, testTimeout, log)
	require.NoError(t, err)

	registry := presence.NewRegistry()
	messages := &fakeMessages{}
	streams := &fakeStreams{streams: map[string]domain.Stream{
		"7": {ID: "7", Title: "Speedrun Sunday"},
		"8": {ID: "8", Title: "Cooking With Mods"},
	}}

	controller := NewController(log, registry,
		broadcast.NewBroadcaster(log, testTimeout),
		messages, streams, pipeline, replier,
		auth.NewModeratorCheck("moderator"),
		Config{
			BotName:         botName,
			HistoryLimit:    50,
			ProviderTimeout: testTimeout,
			SinkTimeout:     testTimeout,
		})

	return &harness{controller: controller, registry: registry, messages: messages}
}

func (h *harness) session(userID, name string, roles ...string) (*Session, *recordingSink) {
	sink := &recordingSink{}
	return NewSession(domain.Identity{UserID: userID, DisplayName: name, Roles: roles}, sink), sink
}

func TestController_Connect_Acknowledges_Identity(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	s, sink := h.session("u1", "alice")

	h.controller.Connect(context.Background(), s)

	req.Len(sink.all(), 1)
	status := sink.all()[0].(event.ConnectionStatus)
	req.Equal("connected", status.Status)
	req.Equal("u1", status.UserID)
	req.Equal("alice", status.Username)
}

func TestController_Join_Requires_Stream_ID(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	s, sink := h.session("u1", "alice")

	h.controller.Join(context.Background(), s, "")

	req.Equal(event.Error{Message: "Stream ID required"}, sink.last())
}

func TestController_Join_Unknown_Stream(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	s, sink := h.session("u1", "alice")

	h.controller.Join(context.Background(), s, "404")

	req.Equal(event.Error{Message: "Stream not found"}, sink.last())
	req.Zero(h.registry.Snapshot("404").ActiveUserCount)
}

func TestController_Join_Emits_History_Then_Ack(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	// Given an earlier conversation in room 7
	writer, _ := h.session("u0", "earlybird")
	h.controller.Join(ctx, writer, "7")
	h.controller.Send(ctx, writer, "7", "first")
	h.controller.Send(ctx, writer, "7", "second")
	h.controller.Leave(ctx, writer, "7")

	// When a user joins
	s, sink := h.session("u1", "alice")
	h.controller.Join(ctx, s, "7")

	// Then they get user_joined, oldest-first history, then join_success
	joined := sink.byName(event.NameUserJoined)
	req.Len(joined, 1)
	req.Equal(1, joined[0].(event.UserJoined).UserCount)

	history := sink.byName(event.NameChatHistory)
	req.Len(history, 1)
	messages := history[0].(event.ChatHistory).Messages
	req.Len(messages, 2)
	req.Equal("first", messages[0].Message)
	req.Equal("second", messages[1].Message)

	ack := sink.last().(event.JoinSuccess)
	req.Equal("7", ack.StreamID)
	req.Equal("Speedrun Sunday", ack.StreamTitle)
	req.Equal(1, ack.UserCount)
}

func TestController_Join_History_Failure_Backs_Out(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	h.messages.recentErr = fmt.Errorf("disk exploded")
	s, sink := h.session("u1", "alice")
	h.controller.Join(ctx, s, "7")

	req.Equal(event.Error{Message: "Failed to join chat"}, sink.last())
	req.False(h.registry.IsMember("7", "u1"))
	req.Empty(s.roomList())
}

func TestController_Send_Validation(t *testing.T) {
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()
	s, _ := h.session("u1", "alice")
	h.controller.Join(ctx, s, "7")

	tests := []struct {
		name     string
		streamID string
		body     string
		want     string
	}{
		{"Missing stream id", "", "hello", "Stream ID and message required"},
		{"Blank body", "7", "   ", "Stream ID and message required"},
		{"Too long", "7", strings.Repeat("a", 501), "Message too long (max 500 characters)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			sink := &recordingSink{}
			session := NewSession(s.Identity, sink)
			h.controller.Join(ctx, session, "7")
			h.controller.Send(ctx, session, tt.streamID, tt.body)
			req.Equal(event.Error{Message: tt.want}, sink.last())
		})
	}
}

func TestController_Send_From_NonMember_Is_Rejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	s, sink := h.session("u1", "alice")

	// No join happened.
	h.controller.Send(context.Background(), s, "7", "hello")

	req.Equal(event.Error{Message: "You must join the chat first"}, sink.last())
	req.Zero(h.messages.count())
}

func TestController_Send_Banned_Term_Is_Blocked_Locally(t *testing.T) {
	req := require.New(t)
	// The approving classifier must not rescue the message.
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	s, sink := h.session("u1", "alice")
	other, otherSink := h.session("u2", "bob")
	h.controller.Join(ctx, s, "7")
	h.controller.Join(ctx, other, "7")

	h.controller.Send(ctx, s, "7", "this is spam content")

	blocked := sink.byName(event.NameMessageBlocked)
	req.Len(blocked, 1)
	req.Equal(moderation.ReasonBannedTerm, blocked[0].(event.MessageBlocked).Reason)

	// No persistence, no broadcast, no counter bump.
	req.Zero(h.messages.count())
	req.Empty(otherSink.byName(event.NameNewMessage))
	req.Zero(h.registry.Snapshot("7").TotalMessages)
}

func TestController_Send_Classifier_Failure_FailsOpen(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, failingClassifier{}, fixedReplier{})
	ctx := context.Background()

	s, sink := h.session("u1", "alice")
	h.controller.Join(ctx, s, "7")

	h.controller.Send(ctx, s, "7", "a perfectly normal sentence")

	req.Empty(sink.byName(event.NameMessageBlocked))
	messages := sink.byName(event.NameNewMessage)
	req.Len(messages, 1)
	req.False(messages[0].(event.NewMessage).IsBot)
	req.Equal(1, h.registry.Snapshot("7").TotalMessages)
}

func TestController_Send_Insert_Failure_Reports_Sender_Only(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	s, sink := h.session("u1", "alice")
	other, otherSink := h.session("u2", "bob")
	h.controller.Join(ctx, s, "7")
	h.controller.Join(ctx, other, "7")

	h.messages.insertErr = fmt.Errorf("disk full")
	h.controller.Send(ctx, s, "7", "hello")

	req.Equal(event.Error{Message: "Failed to send message"}, sink.last())
	req.Empty(otherSink.byName(event.NameNewMessage))
	req.Zero(h.registry.Snapshot("7").TotalMessages)
}

func TestController_Send_HelpSeeking_Triggers_Bot_Reply(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{text: "Check Settings > Stream for your RTMP key."})
	ctx := context.Background()

	s, _ := h.session("u1", "alice")
	other, otherSink := h.session("u2", "bob")
	h.controller.Join(ctx, s, "7")
	h.controller.Join(ctx, other, "7")

	h.controller.Send(ctx, s, "7", "how do I use OBS?")

	messages := otherSink.byName(event.NameNewMessage)
	req.Len(messages, 2)

	user := messages[0].(event.NewMessage)
	req.False(user.IsBot)
	req.Equal("alice", user.Username)

	bot := messages[1].(event.NewMessage)
	req.True(bot.IsBot)
	req.Nil(bot.UserID)
	req.Equal(botName, bot.Username)
	req.LessOrEqual(len(bot.Message), domain.MaxReplyLength)
}

func TestController_Send_NonQuestion_Gets_No_Bot_Reply(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{text: "I am not needed."})
	ctx := context.Background()

	s, sink := h.session("u1", "alice")
	h.controller.Join(ctx, s, "7")

	h.controller.Send(ctx, s, "7", "nice goal")

	req.Len(sink.byName(event.NameNewMessage), 1)
}

func TestController_Send_Replier_Failure_Suppresses_Bot(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, failingReplier{})
	ctx := context.Background()

	s, sink := h.session("u1", "alice")
	h.controller.Join(ctx, s, "7")

	h.controller.Send(ctx, s, "7", "how do I configure rtmp?")

	// The user message flows; the bot stays silent.
	req.Len(sink.byName(event.NameNewMessage), 1)
	req.Equal(1, h.messages.count())
}

func TestController_Leave_Broadcasts_Only_To_Remaining_Members(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	alice, aliceSink := h.session("u1", "alice")
	bob, _ := h.session("u2", "bob")
	h.controller.Join(ctx, alice, "7")
	h.controller.Join(ctx, bob, "7")

	// When bob leaves, alice is notified
	h.controller.Leave(ctx, bob, "7")
	left := aliceSink.byName(event.NameUserLeft)
	req.Len(left, 1)
	req.Equal(event.UserLeft{Username: "bob", UserCount: 1}, left[0])

	// When the last member leaves, the room is evicted with no broadcast
	before := len(aliceSink.all())
	h.controller.Leave(ctx, alice, "7")
	req.Len(aliceSink.all(), before)

	snapshot := h.registry.Snapshot("7")
	req.Zero(snapshot.ActiveUserCount)
	req.Zero(snapshot.TotalMessages)
}

func TestController_Leave_Without_Stream_ID_Is_Silent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	s, sink := h.session("u1", "alice")

	h.controller.Leave(context.Background(), s, "")

	req.Empty(sink.all())
}

func TestController_Disconnect_Leaves_Every_Room(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	alice, _ := h.session("u1", "alice")
	bob, bobSink := h.session("u2", "bob")
	h.controller.Join(ctx, alice, "7")
	h.controller.Join(ctx, alice, "8")
	h.controller.Join(ctx, bob, "7")

	h.controller.Disconnect(ctx, alice)

	// Bob saw alice leave room 7; room 8 was evicted silently.
	left := bobSink.byName(event.NameUserLeft)
	req.Len(left, 1)
	req.Equal("alice", left[0].(event.UserLeft).Username)

	req.False(h.registry.IsMember("7", "u1"))
	req.Zero(h.registry.Snapshot("8").ActiveUserCount)
	req.Empty(alice.roomList())
}

func TestController_Delete_Requires_Moderator_Role(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	s, sink := h.session("u1", "alice")
	h.controller.Join(ctx, s, "7")
	h.controller.Send(ctx, s, "7", "hello")

	h.controller.Delete(ctx, s, uuid.NewString())

	req.Equal(event.Error{Message: "Insufficient permissions"}, sink.last())
}

func TestController_Delete_SoftDeletes_And_Notifies_Room(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	alice, aliceSink := h.session("u1", "alice")
	h.controller.Join(ctx, alice, "7")
	h.controller.Send(ctx, alice, "7", "regrettable")
	sent := aliceSink.byName(event.NameNewMessage)[0].(event.NewMessage)

	moderator, _ := h.session("m1", "mod", "moderator")
	h.controller.Delete(ctx, moderator, sent.ID)

	deleted := aliceSink.byName(event.NameMessageDeleted)
	req.Len(deleted, 1)
	req.Equal(sent.ID, deleted[0].(event.MessageDeleted).MessageID)

	// A later join no longer sees the message in history.
	late, lateSink := h.session("u3", "carol")
	h.controller.Join(ctx, late, "7")
	history := lateSink.byName(event.NameChatHistory)[0].(event.ChatHistory)
	req.Empty(history.Messages)
}

func TestController_Delete_Wrapped_NotFound_Is_Silent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	moderator, sink := h.session("m1", "mod", "moderator")

	// The store may wrap the sentinel with lookup context.
	h.messages.deleteErr = fmt.Errorf("index lookup: %w", errors.ErrMessageNotFound)
	h.controller.Delete(context.Background(), moderator, uuid.NewString())

	req.Empty(sink.all())
}

func TestController_Delete_Missing_ID(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	moderator, sink := h.session("m1", "mod", "moderator")

	h.controller.Delete(context.Background(), moderator, "")

	req.Equal(event.Error{Message: "Message ID required"}, sink.last())
}

func TestController_Stats_Unknown_Room_Is_Zeroed(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	s, sink := h.session("u1", "alice")

	h.controller.Stats(context.Background(), s, "404")

	stats := sink.last().(event.ChatStats)
	req.Equal("404", stats.StreamID)
	req.Zero(stats.TotalMessages)
	req.Zero(stats.ActiveUsersCount)
	req.Empty(stats.ActiveUsers)
}

func TestController_Stats_Reports_Counters_And_Members(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, approveClassifier{}, fixedReplier{})
	ctx := context.Background()

	alice, sink := h.session("u1", "alice")
	bob, _ := h.session("u2", "bob")
	h.controller.Join(ctx, alice, "7")
	h.controller.Join(ctx, bob, "7")
	h.controller.Send(ctx, alice, "7", "hello")

	h.controller.Stats(ctx, alice, "7")

	stats := sink.last().(event.ChatStats)
	req.Equal(1, stats.TotalMessages)
	req.Equal(2, stats.ActiveUsersCount)
	req.Len(stats.ActiveUsers, 2)
}
