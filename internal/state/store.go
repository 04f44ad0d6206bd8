package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/evanofslack/ddns-sync/internal/metrics"
)

const recordPrefix = "record:"

type Store interface {
	Load(ctx context.Context, key string) (RecordState, bool, error)
	Save(ctx context.Context, key string, st RecordState) error
	All(ctx context.Context) (map[string]RecordState, error)
	Close() error
}

type badgerStore struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

func New(path string, metrics *metrics.Metrics) (Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	s := &badgerStore{db: db, metrics: metrics}
	return s, nil
}

func (s *badgerStore) Load(ctx context.Context, key string) (RecordState, bool, error) {
	var st RecordState
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &st); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	s.metrics.IncStoreRequest("read", err == nil)
	return st, found, err
}

func (s *badgerStore) Save(ctx context.Context, key string, st RecordState) error {
	data, err := json.Marshal(st)
	if err != nil {
		s.metrics.IncStoreRequest("update", false)
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+key), data)
	})
	s.metrics.IncStoreRequest("update", err == nil)
	return err
}

func (s *badgerStore) All(ctx context.Context) (map[string]RecordState, error) {
	states := make(map[string]RecordState)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())[len(recordPrefix):]

			err := item.Value(func(val []byte) error {
				var st RecordState
				if err := json.Unmarshal(val, &st); err != nil {
					return err
				}
				states[key] = st
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	s.metrics.IncStoreRequest("read", err == nil)
	return states, err
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
