// Package evalstore keeps the deepest engine evaluation seen for each
// position in a BadgerDB.
package evalstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"uciboard/engine"
	"uciboard/fen"
)

const keyPrefix = "eval:"

type Entry struct {
	FEN     string      `json:"fen"`
	Eval    engine.Eval `json:"eval"`
	Updated time.Time   `json:"updated"`
}

type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens or creates the store in dir.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	return open(badger.DefaultOptions(dir), logger)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory(logger zerolog.Logger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badger.Options, logger zerolog.Logger) (*Store, error) {
	log := logger.With().Str("component", "evalstore").Logger()
	opts.Logger = badgerLogger{log: log}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("evalstore: open '%s': %w", opts.Dir, err)
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func key(fenStr string) []byte {
	return []byte(keyPrefix + fen.Key(fenStr))
}

// Put stores eval for the position unless an entry at least as deep is
// already stored. It reports whether the entry was written.
func (s *Store) Put(fenStr string, eval engine.Eval) (bool, error) {
	var stored bool

	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(fenStr)

		item, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var old Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &old)
			}); err != nil {
				return err
			}
			if old.Eval.Depth >= eval.Depth {
				return nil
			}
		}

		data, err := json.Marshal(Entry{FEN: fenStr, Eval: eval, Updated: time.Now()})
		if err != nil {
			return err
		}
		stored = true
		return txn.Set(k, data)
	})

	if err != nil {
		return false, fmt.Errorf("evalstore: put: %w", err)
	}
	return stored, nil
}

// Get returns the stored entry for the position. Move counters are ignored,
// so transpositions reached at different move numbers share an entry.
func (s *Store) Get(fenStr string) (Entry, bool, error) {
	var entry Entry
	var found bool

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(fenStr))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})

	if err != nil {
		return Entry{}, false, fmt.Errorf("evalstore: get: %w", err)
	}
	return entry, found, nil
}

// Len counts stored positions.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// badgerLogger sends badger's own messages through zerolog. Its info chatter
// is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msg(trim(format, args))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msg(trim(format, args))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msg(trim(format, args))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msg(trim(format, args))
}

func trim(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
