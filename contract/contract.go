// Package contract holds the interfaces shared across the relay:
// the per-connection event sink, the supervised worker, and the
// narrow collaborator contracts (storage, moderation, assistant).
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"stream-chat/domain"
	"stream-chat/domain/event"
)

// EventSink is one connection's outbound channel.
// Consume must not block longer than the caller's context allows.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageStore is the durable message collaborator.
// Rows are never hard-deleted; SoftDeleteMessage flips the deleted flag
// and returns the updated row so callers know which room it belongs to.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	RecentMessages(ctx context.Context, streamID string, limit int) ([]domain.Message, error)
	SoftDeleteMessage(ctx context.Context, id uuid.UUID) (domain.Message, error)
}

// StreamStore resolves stream metadata. Chat only checks existence
// and reads the title.
type StreamStore interface {
	GetStream(ctx context.Context, id string) (domain.Stream, bool, error)
}

// Classifier is the external moderation provider. It may fail or time
// out; callers treat any error as an allow (fail-open).
type Classifier interface {
	Classify(ctx context.Context, body, displayName string) (domain.Verdict, error)
}

// Replier is the external assistant provider. An empty reply or any
// error means no bot message is sent.
type Replier interface {
	Reply(ctx context.Context, body, streamTitle string) (string, error)
}

// ModeratorCheck decides whether an identity may delete messages.
// Supplied by the authentication collaborator at startup.
type ModeratorCheck func(domain.Identity) bool

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
