// Package session persists the locally remembered identity and UI
// preferences across process restarts. It is pure key/value passthrough:
// no validation, no chat logic.
package session

import (
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Theme is the remembered UI theme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Store is the persistence contract the client depends on. Absent values
// load as zero values, not errors.
type Store interface {
	LoadDisplayName() (string, error)
	SaveDisplayName(name string) error
	LoadTheme() (Theme, error)
	SaveTheme(theme Theme) error
	Close() error
}

var (
	keyDisplayName = []byte("session:displayName")
	keyTheme       = []byte("session:theme")
)

// BadgerStore persists session scalars in a local BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// Open creates or opens a badger-backed store at path. A nil log uses
// slog.Default(); badger's own logger is silenced either way.
func Open(path string, log *slog.Logger) (*BadgerStore, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, log: log}, nil
}

func (s *BadgerStore) LoadDisplayName() (string, error) {
	return s.get(keyDisplayName)
}

func (s *BadgerStore) SaveDisplayName(name string) error {
	return s.set(keyDisplayName, []byte(name))
}

func (s *BadgerStore) LoadTheme() (Theme, error) {
	v, err := s.get(keyTheme)
	return Theme(v), err
}

func (s *BadgerStore) SaveTheme(theme Theme) error {
	return s.set(keyTheme, []byte(theme))
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key []byte) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = string(v)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		s.log.Warn("session store read failed", "key", string(key), "error", err)
		return "", err
	}
	return value, nil
}

func (s *BadgerStore) set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}
