package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
	"aidreg/pkg/platform/sentinel"
)

var (
	recipientsBucket = []byte("recipients")
	metaBucket       = []byte("meta")
	adminKey         = []byte("admin")
)

// BoltStore keeps the registry in a single bbolt file. bbolt allows one
// writer at a time, and read transactions see a consistent snapshot.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file at path and ensures the buckets exist.
func OpenBolt(path string, timeout time.Duration) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{recipientsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Health reports whether the database file is still open.
func (s *BoltStore) Health(_ context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func (s *BoltStore) CreateIfAbsent(_ context.Context, r *models.Recipient) error {
	data, err := encodeRecipient(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recipientsBucket)
		key := []byte(r.ID.String())
		if b.Get(key) != nil {
			return fmt.Errorf("recipient %s: %w", r.ID, sentinel.ErrAlreadyUsed)
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) Update(_ context.Context, r *models.Recipient) error {
	data, err := encodeRecipient(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recipientsBucket)
		key := []byte(r.ID.String())
		if b.Get(key) == nil {
			return sentinel.ErrNotFound
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) FindByID(_ context.Context, recipientID id.RecipientID) (*models.Recipient, error) {
	var r *models.Recipient
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(recipientsBucket).Get([]byte(recipientID.String()))
		if data == nil {
			return sentinel.ErrNotFound
		}
		var err error
		r, err = decodeRecipient(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *BoltStore) FindMany(_ context.Context, ids []id.RecipientID) (map[id.RecipientID]*models.Recipient, error) {
	out := make(map[id.RecipientID]*models.Recipient, len(ids))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recipientsBucket)
		for _, recipientID := range ids {
			data := b.Get([]byte(recipientID.String()))
			if data == nil {
				continue
			}
			r, err := decodeRecipient(data)
			if err != nil {
				return err
			}
			out[recipientID] = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) List(_ context.Context, q models.ListQuery) (*models.RecipientPage, error) {
	q = q.Normalized()
	candidates := make([]*models.Recipient, 0, q.Limit+1)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recipientsBucket).Cursor()
		after := []byte(q.After.String())
		k, v := c.Seek(after)
		if k != nil && bytes.Equal(k, after) {
			k, v = c.Next()
		}
		for ; k != nil && len(candidates) <= q.Limit; k, v = c.Next() {
			r, err := decodeRecipient(v)
			if err != nil {
				return err
			}
			if q.Matches(r) {
				candidates = append(candidates, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return pageFrom(candidates, q.Limit), nil
}

func (s *BoltStore) Admin(_ context.Context) (id.Principal, error) {
	var admin id.Principal
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(adminKey)
		if v == nil {
			return sentinel.ErrNotInitialized
		}
		admin = id.Principal(v)
		return nil
	})
	return admin, err
}

func (s *BoltStore) InitAdmin(_ context.Context, p id.Principal) (id.Principal, error) {
	var admin id.Principal
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if v := b.Get(adminKey); v != nil {
			admin = id.Principal(v)
			return nil
		}
		admin = p
		return b.Put(adminKey, []byte(p.String()))
	})
	if err != nil {
		return "", fmt.Errorf("init admin: %w", err)
	}
	return admin, nil
}

func (s *BoltStore) SetAdmin(_ context.Context, p id.Principal) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(adminKey, []byte(p.String()))
	})
}
