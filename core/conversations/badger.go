package conversations

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/maphash"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	badgerKeyPrefix = "turns\x00"
	lockStripes     = 64
)

// BadgerStore persists records in an embedded badger database. Records of
// a session live under a shared prefix followed by a big-endian sequence
// number, so the latest record is the last key of the prefix.
type BadgerStore struct {
	db *badger.DB

	// Appends to one session are serialized on a stripe picked by hashing
	// the session id.
	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

type BadgerOption func(*badger.Options)

// WithBadgerInMemory keeps the database in memory only.
func WithBadgerInMemory() BadgerOption {
	return func(o *badger.Options) {
		*o = o.WithInMemory(true).WithDir("").WithValueDir("")
	}
}

func OpenBadger(dir string, opts ...BadgerOption) (*BadgerStore, error) {
	options := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	for _, opt := range opts {
		opt(&options)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, seed: maphash.MakeSeed()}, nil
}

func sessionPrefix(sessionID string) []byte {
	prefix := make([]byte, 0, len(badgerKeyPrefix)+len(sessionID)+1)
	prefix = append(prefix, badgerKeyPrefix...)
	prefix = append(prefix, sessionID...)
	return append(prefix, 0)
}

func recordKey(sessionID string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(sessionPrefix(sessionID), seq)
}

func (s *BadgerStore) sessionLock(sessionID string) *sync.Mutex {
	return &s.locks[maphash.String(s.seed, sessionID)%lockStripes]
}

func latestInTxn(txn *badger.Txn, sessionID string) (Record, uint64, error) {
	prefix := sessionPrefix(sessionID)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return Record{}, 0, ErrNotFound
	}

	item := it.Item()
	key := item.Key()
	if len(key) != len(prefix)+8 {
		return Record{}, 0, fmt.Errorf("malformed record key %q", key)
	}
	seq := binary.BigEndian.Uint64(key[len(prefix):])

	var record Record
	err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &record)
	})
	if err != nil {
		return Record{}, 0, fmt.Errorf("failed to decode record: %w", err)
	}
	return record, seq, nil
}

func (s *BadgerStore) Latest(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var record Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, _, err = latestInTxn(txn, sessionID)
		return err
	})
	return record, err
}

func (s *BadgerStore) Append(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.sessionLock(record.SessionID)
	lock.Lock()
	defer lock.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		_, seq, err := latestInTxn(txn, record.SessionID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		seq++
		record.ID = int64(seq)

		val, err := msgpack.Marshal(&record)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		return txn.Set(recordKey(record.SessionID, seq), val)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger routes badger's warnings and errors to the package logger
// and drops its chatty info and debug output.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
