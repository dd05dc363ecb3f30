// Package store keeps the readings of a device in a BadgerDB database, keyed
// by time so they can be queried by range.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/obvy"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const keySize = 8 + 16 + 8

// Store buffers readings and writes them to the database in batches. It is
// safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	db        *badger.DB
	batchSize int
	buffer    []pulseox.Reading
}

// Open opens the database at path. An empty path keeps the database in
// memory. Readings are written once batchSize of them are buffered.
func Open(path string, batchSize int) (*Store, error) {
	if batchSize < 1 {
		batchSize = 1
	}

	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: could not open database: %w", err)
	}

	slog.Info("store opened",
		slog.String("path", path),
		slog.Int("batch_size", batchSize))

	return &Store{
		db:        db,
		batchSize: batchSize,
		buffer:    make([]pulseox.Reading, 0, batchSize),
	}, nil
}

// Write queues r and writes the buffer when it is full.
func (s *Store) Write(ctx context.Context, r pulseox.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, r)
	if len(s.buffer) >= s.batchSize {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush writes every queued reading.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}

	_, span := obvy.Tracer().Start(ctx, "store.flush")
	defer span.End()
	span.SetAttributes(attribute.Int("readings", len(s.buffer)))

	// a failed batch stays queued for the next flush
	if err := s.writeBatch(s.buffer); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	s.buffer = s.buffer[:0]
	return nil
}

// Pending returns the number of queued readings.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.buffer)
}

func (s *Store) writeBatch(readings []pulseox.Reading) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, r := range readings {
		v, err := encode(r)
		if err != nil {
			return fmt.Errorf("store: could not encode reading %d: %w", r.Sample, err)
		}
		if err := wb.Set(Key(r), v); err != nil {
			slog.Error("store could not set reading",
				slog.Any("error", err),
				slog.Int64("sample", r.Sample))
			return fmt.Errorf("store: write batch error: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store: batch flush error: %w", err)
	}
	return nil
}

// Close writes the pending readings and closes the database. The database
// is closed even if the last write fails.
func (s *Store) Close() error {
	flushErr := s.Flush(context.Background())
	closeErr := s.db.Close()

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("store: close failed: %w", closeErr)
	}

	slog.Info("store closed")
	return nil
}

// Range returns the stored readings with start <= Time < end in time order.
// Queued readings are not included until they are flushed.
func (s *Store) Range(ctx context.Context, start, end time.Time) ([]pulseox.Reading, error) {
	_, span := obvy.Tracer().Start(ctx, "store.range")
	defer span.End()

	from := timeKey(start)
	to := timeKey(end)

	var readings []pulseox.Reading
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(from); it.Valid(); it.Next() {
			item := it.Item()
			if bytes.Compare(item.Key()[:8], to) >= 0 {
				break
			}
			err := item.Value(func(val []byte) error {
				r, err := decode(val)
				if err != nil {
					return err
				}
				readings = append(readings, r)
				return nil
			})
			if err != nil {
				return fmt.Errorf("store: could not read %x: %w", item.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("readings", len(readings)))
	return readings, nil
}

// Session returns the stored readings of one session in time order.
func (s *Store) Session(ctx context.Context, id uuid.UUID) ([]pulseox.Reading, error) {
	all, err := s.Range(ctx, time.Unix(0, 0), time.Unix(0, 1<<63-1))
	if err != nil {
		return nil, err
	}

	var readings []pulseox.Reading
	for _, r := range all {
		if r.Session == id {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

// Key sorts readings by time, then by session and sample.
func Key(r pulseox.Reading) []byte {
	key := make([]byte, keySize)
	copy(key[0:8], timeKey(r.Time))
	copy(key[8:24], r.Session[:])
	binary.BigEndian.PutUint64(key[24:32], uint64(r.Sample))
	return key
}

// timeKey is the big endian nanosecond time, clamped at the epoch so that
// keys sort chronologically.
func timeKey(t time.Time) []byte {
	ns := t.UnixNano()
	if ns < 0 {
		ns = 0
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(ns))
	return key
}

func encode(r pulseox.Reading) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (pulseox.Reading, error) {
	var r pulseox.Reading
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}
