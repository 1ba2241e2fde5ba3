package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/0x5487/lob"
	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
)

// ErrNotFound is returned when no snapshot exists for a key.
var ErrNotFound = errors.New("sink: snapshot not found")

// PebbleSink stores every book snapshot under
// snap/<run>/<sequence>/<locate> and keeps latest/<locate> pointing at the
// newest one.
type PebbleSink struct {
	db *pebble.DB
}

// OpenPebble opens the store in dir. opts may be nil.
func OpenPebble(dir string, opts *pebble.Options) (*PebbleSink, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleSink{db: db}, nil
}

func (s *PebbleSink) Close() error {
	return s.db.Close()
}

// WriteSnapshot stores all books of snap in one synced batch.
func (s *PebbleSink) WriteSnapshot(ctx context.Context, snap *lob.Snapshot) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for i := range snap.Books {
		if err := ctx.Err(); err != nil {
			return err
		}
		book := &snap.Books[i]
		val, err := json.Marshal(book)
		if err != nil {
			return err
		}
		key := bookKey(snap.RunID, snap.Sequence, book.Locate)
		if err := batch.Set(key, val, nil); err != nil {
			return err
		}
		if err := batch.Set(latestKey(book.Locate), key, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// Latest returns the newest stored snapshot of locate.
func (s *PebbleSink) Latest(locate uint16) (*lob.BookSnapshot, error) {
	key, err := s.get(latestKey(locate))
	if err != nil {
		return nil, err
	}
	val, err := s.get(key)
	if err != nil {
		return nil, err
	}
	var book lob.BookSnapshot
	if err := json.Unmarshal(val, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Books returns every book of one snapshot in locate order.
func (s *PebbleSink) Books(runID string, sequence uint64) ([]lob.BookSnapshot, error) {
	prefix := []byte(fmt.Sprintf("snap/%s/%020d/", runID, sequence))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(bytes.Clone(prefix[:len(prefix)-1]), '0'), // '/'+1
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var books []lob.BookSnapshot
	for iter.First(); iter.Valid(); iter.Next() {
		var book lob.BookSnapshot
		if err := json.Unmarshal(iter.Value(), &book); err != nil {
			return nil, fmt.Errorf("%s: %w", iter.Key(), err)
		}
		books = append(books, book)
	}
	return books, iter.Error()
}

func (s *PebbleSink) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(val), nil
}

func bookKey(runID string, sequence uint64, locate uint16) []byte {
	return []byte(fmt.Sprintf("snap/%s/%020d/%05d", runID, sequence, locate))
}

func latestKey(locate uint16) []byte {
	return []byte(fmt.Sprintf("latest/%05d", locate))
}
