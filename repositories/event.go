package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"netlab/domain/event"
)

type IEventRepository interface {
	Store(e event.Event) error
	Recent(limit int) ([]event.Event, error)
	Purge() error
}

var eventPrefix = []byte("evt:")

// EventRepository persists events in BadgerDB.
// The key is formatted as "evt:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the UUID as a collision disconnector
//     if two events arrive at the same nanosecond.
type EventRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewEventRepository(db *badger.DB, log *slog.Logger) EventRepository {
	return EventRepository{db: db, log: log}
}

type diskEvent struct {
	ID       uuid.UUID `json:"id"`
	Module   string    `json:"module"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

func (r EventRepository) Store(e event.Event) error {
	key := fmt.Sprintf("evt:%019d:%s", e.At.UnixNano(), e.ID)
	bytes, err := json.Marshal(diskEvent{
		ID:       e.ID,
		Module:   e.Module,
		Severity: string(e.Severity),
		Message:  e.Message,
		At:       e.At,
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Recent returns up to limit events, newest first, using a reverse
// prefix scan. Thanks to the padded timestamp in the key, events are
// naturally sorted by time.
func (r EventRepository) Recent(limit int) ([]event.Event, error) {
	var events []event.Event
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration seeks past the newest possible key first.
		seekKey := append(append([]byte{}, eventPrefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(eventPrefix); it.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			var de diskEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &de)
			})
			if err != nil {
				r.log.Warn("skipping undecodable event", "key", string(it.Item().Key()), "error", err)
				continue
			}
			events = append(events, event.Event{
				ID:       de.ID,
				Module:   de.Module,
				Severity: event.Severity(de.Severity),
				Message:  de.Message,
				At:       de.At,
			})
		}
		return nil
	})
	return events, err
}

// Purge removes every stored event.
func (r EventRepository) Purge() error {
	return r.db.DropPrefix(eventPrefix)
}
