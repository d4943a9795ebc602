package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"stream-chat/domain"
	"stream-chat/errors"
)

// diskMessage is the on-disk shape of a chat message.
type diskMessage struct {
	ID          uuid.UUID `json:"id"`
	StreamID    string    `json:"stream_id"`
	UserID      *string   `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	Deleted     bool      `json:"deleted"`
}

type MessageRepository struct {
	db    *badger.DB
	log   *slog.Logger
	clock func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the timestamp source, for deterministic tests.
func (m *MessageRepository) WithClock(clock func() time.Time) *MessageRepository {
	m.clock = clock
	return m
}

// primaryKey is formatted as "msg:{stream_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the UUID as a collision disconnector if
//     two messages arrive at the same nanosecond.
func primaryKey(streamID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", streamID, at.UnixNano(), id))
}

// indexKey maps a message id back to its primary key, so a soft delete
// does not need the room or timestamp.
func indexKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msgid:%s", id))
}

// InsertMessage assigns the id and timestamp and persists the row together
// with its id index in one transaction. Badger transactions are atomic, so
// a failed insert leaves nothing behind.
func (m *MessageRepository) InsertMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	msg.ID = uuid.New()
	msg.CreatedAt = m.clock()

	record := fromDomain(msg)
	bytes, err := json.Marshal(record)
	if err != nil {
		return domain.Message{}, err
	}

	key := primaryKey(msg.StreamID, msg.CreatedAt, msg.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(msg.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// RecentMessages returns up to limit non-deleted messages for the stream,
// newest first. Thanks to the padded timestamp in the key, a reverse
// prefix scan yields messages already sorted by time.
func (m *MessageRepository) RecentMessages(_ context.Context, streamID string, limit int) ([]domain.Message, error) {
	var messages []domain.Message

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", streamID))

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past every possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var record diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			if record.Deleted {
				// Soft-deleted rows stay on disk but never reach history.
				continue
			}
			messages = append(messages, toDomain(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// SoftDeleteMessage flips the deleted flag and returns the updated row so
// the caller knows which room to notify. The row itself is retained.
func (m *MessageRepository) SoftDeleteMessage(_ context.Context, id uuid.UUID) (domain.Message, error) {
	var msg domain.Message

	err := m.db.Update(func(txn *badger.Txn) error {
		idxItem, err := txn.Get(indexKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrMessageNotFound
			}
			return err
		}
		key, err := idxItem.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var record diskMessage
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		}); err != nil {
			return err
		}

		record.Deleted = true
		bytes, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		msg = toDomain(record)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// DecodeMessage parses a raw stored row. Used by the inspection tooling,
// which walks the keyspace without going through the repository.
func DecodeMessage(value []byte) (domain.Message, error) {
	var record diskMessage
	if err := json.Unmarshal(value, &record); err != nil {
		return domain.Message{}, err
	}
	return toDomain(record), nil
}

func fromDomain(msg domain.Message) diskMessage {
	return diskMessage{
		ID:          msg.ID,
		StreamID:    msg.StreamID,
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt,
		Deleted:     msg.Deleted,
	}
}

func toDomain(record diskMessage) domain.Message {
	return domain.Message{
		ID:          record.ID,
		StreamID:    record.StreamID,
		UserID:      record.UserID,
		DisplayName: record.DisplayName,
		Body:        record.Body,
		CreatedAt:   record.CreatedAt,
		Deleted:     record.Deleted,
	}
}
