package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"capd/internal/domain"
)

const (
	serviceBucketName   = "service"
	publishedBucketName = "published"
	serviceIDKey        = "id"
	updatedAtKey        = "updated_at"
)

var ErrStoreClosed = errors.New("state store is closed")

// Store persists what this process announced to the discovery service so a
// restart can clean up entries left behind by a crash.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func OpenStore(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{serviceBucketName, publishedBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: trimmed}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) ServiceID() (string, error) {
	var id string
	err := s.view(func(tx *bolt.Tx) error {
		id = string(tx.Bucket([]byte(serviceBucketName)).Get([]byte(serviceIDKey)))
		return nil
	})
	return id, err
}

func (s *Store) SetServiceID(id string) error {
	return s.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(serviceBucketName))
		if id == "" {
			return bucket.Delete([]byte(serviceIDKey))
		}
		if err := bucket.Put([]byte(serviceIDKey), []byte(id)); err != nil {
			return fmt.Errorf("write service id: %w", err)
		}
		return bucket.Put([]byte(updatedAtKey), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
}

func (s *Store) MarkPublished(kind domain.CapabilityKind, name string) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(publishedBucketName)).Put(publishedKey(kind, name), []byte(kind))
	})
}

func (s *Store) MarkRetracted(kind domain.CapabilityKind, name string) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(publishedBucketName)).Delete(publishedKey(kind, name))
	})
}

// Published lists recorded entries ordered by kind then name.
func (s *Store) Published() ([]domain.RegisteredEntry, error) {
	var entries []domain.RegisteredEntry
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(publishedBucketName)).ForEach(func(key, value []byte) error {
			kind := domain.CapabilityKind(value)
			name := strings.TrimPrefix(string(key), string(kind)+"/")
			entries = append(entries, domain.RegisteredEntry{Kind: kind, Name: name})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind > entries[j].Kind
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func publishedKey(kind domain.CapabilityKind, name string) []byte {
	return []byte(string(kind) + "/" + name)
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}
