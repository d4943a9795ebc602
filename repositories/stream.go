package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"stream-chat/domain"
)

type diskStream struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// StreamRepository resolves stream metadata rows. The chat relay only
// reads them; writes happen through PutStream used by seeding and tests.
type StreamRepository struct {
	db *badger.DB
}

func NewStreamRepository(db *badger.DB) *StreamRepository {
	return &StreamRepository{db: db}
}

func streamKey(id string) []byte {
	return []byte(fmt.Sprintf("stream:%s", id))
}

// GetStream returns the stream row and whether it exists. An unknown
// stream is an absence, not an error.
func (s *StreamRepository) GetStream(_ context.Context, id string) (domain.Stream, bool, error) {
	var record diskStream
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(streamKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Stream{}, false, nil
	}
	if err != nil {
		return domain.Stream{}, false, err
	}
	return domain.Stream{ID: record.ID, Title: record.Title}, true, nil
}

func (s *StreamRepository) PutStream(_ context.Context, stream domain.Stream) error {
	bytes, err := json.Marshal(diskStream{ID: stream.ID, Title: stream.Title})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(streamKey(stream.ID), bytes)
	})
}
