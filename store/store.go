//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists function summaries across analysis runs in a bolt database, keyed by the
// fully-qualified function name.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	log "github.com/sirupsen/logrus"
	"go.uber.org/biabduct/domain/prepost"
	"go.uber.org/biabduct/summary"
)

var _bucket = []byte("summaries")

// ErrNotFound is returned by Get for functions without stored summaries.
var ErrNotFound = errors.New("no stored summaries")

// Store is a persistent summary table. It is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open summary store %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(_bucket)
		return err
	}); err != nil {
		return nil, errors.Join(fmt.Errorf("create bucket: %w", err), db.Close())
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing store without write access.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open summary store %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Put replaces the summaries of the named function.
func (s *Store) Put(fn string, sums []prepost.Summary) error {
	data, err := summary.Encode(sums)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(_bucket).Put([]byte(fn), data)
	})
}

// Get returns the summaries of the named function, or ErrNotFound.
func (s *Store) Get(fn string) ([]prepost.Summary, error) {
	var data []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(_bucket)
		if b == nil {
			return nil
		}
		// Bolt values are only valid during the transaction.
		if v := b.Get([]byte(fn)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s: %w", fn, ErrNotFound)
	}
	return summary.Decode(data)
}

// Keys returns the names of all functions with stored summaries, in lexicographic order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(_bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_sharedMu sync.Mutex
	_shared   = make(map[string]*sharedStore)
)

type sharedStore struct {
	once  sync.Once
	store *Store
	err   error
}

// Shared returns the process-wide store for path, opening it on first use. Analyzers of several
// packages run concurrently in one process and share the handle, which stays open until the
// process exits.
func Shared(path string) (*Store, error) {
	_sharedMu.Lock()
	entry, ok := _shared[path]
	if !ok {
		entry = &sharedStore{}
		_shared[path] = entry
	}
	_sharedMu.Unlock()

	entry.once.Do(func() {
		entry.store, entry.err = Open(path)
		if entry.err == nil {
			log.WithField("path", path).Debug("opened summary store")
		}
	})
	return entry.store, entry.err
}
