package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
	"aidreg/pkg/platform/sentinel"
)

// createIfAbsentScript writes the record and its index entry only when the
// record key does not exist yet.
var createIfAbsentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], 0, ARGV[2])
return 1
`)

// RedisStore keeps each recipient as a JSON string under <prefix>:recipient:<id>
// with a lexicographic sorted-set index for listing.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis constructs a Redis-backed registry store. Keys are namespaced by prefix.
func NewRedis(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "aidreg"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recipientKey(recipientID id.RecipientID) string {
	return s.prefix + ":recipient:" + recipientID.String()
}

func (s *RedisStore) indexKey() string { return s.prefix + ":recipients" }
func (s *RedisStore) adminKey() string { return s.prefix + ":admin" }

func (s *RedisStore) CreateIfAbsent(ctx context.Context, r *models.Recipient) error {
	data, err := encodeRecipient(r)
	if err != nil {
		return err
	}
	created, err := createIfAbsentScript.Run(ctx, s.client,
		[]string{s.recipientKey(r.ID), s.indexKey()},
		data, r.ID.String(),
	).Int()
	if err != nil {
		return fmt.Errorf("create recipient: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("recipient %s: %w", r.ID, sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, r *models.Recipient) error {
	data, err := encodeRecipient(r)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, s.recipientKey(r.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, recipientID id.RecipientID) (*models.Recipient, error) {
	data, err := s.client.Get(ctx, s.recipientKey(recipientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find recipient by id: %w", err)
	}
	return decodeRecipient(data)
}

func (s *RedisStore) FindMany(ctx context.Context, ids []id.RecipientID) (map[id.RecipientID]*models.Recipient, error) {
	out := make(map[id.RecipientID]*models.Recipient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	records, err := s.mget(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		out[r.ID] = r
	}
	return out, nil
}

// mget loads the existing records among ids, preserving the order of ids.
func (s *RedisStore) mget(ctx context.Context, ids []id.RecipientID) ([]*models.Recipient, error) {
	keys := make([]string, len(ids))
	for i, recipientID := range ids {
		keys[i] = s.recipientKey(recipientID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("find recipients: %w", err)
	}
	records := make([]*models.Recipient, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		r, err := decodeRecipient([]byte(str))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// List walks the index in id order. With a verification filter it keeps
// reading index batches until the page is full or the index is exhausted.
func (s *RedisStore) List(ctx context.Context, q models.ListQuery) (*models.RecipientPage, error) {
	q = q.Normalized()
	candidates := make([]*models.Recipient, 0, q.Limit+1)
	cursor := q.After
	for len(candidates) <= q.Limit {
		lower := "-"
		if !cursor.IsNil() {
			lower = "(" + cursor.String()
		}
		members, err := s.client.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
			Min:   lower,
			Max:   "+",
			Count: int64(q.Limit + 1),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("list recipients: %w", err)
		}
		if len(members) == 0 {
			break
		}
		ids := make([]id.RecipientID, len(members))
		for i, m := range members {
			ids[i] = id.RecipientID(m)
		}
		records, err := s.mget(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if q.Matches(r) {
				candidates = append(candidates, r)
				if len(candidates) > q.Limit {
					break
				}
			}
		}
		cursor = ids[len(ids)-1]
		if len(members) <= q.Limit {
			break
		}
	}
	return pageFrom(candidates, q.Limit), nil
}

func (s *RedisStore) Admin(ctx context.Context) (id.Principal, error) {
	v, err := s.client.Get(ctx, s.adminKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotInitialized
	}
	if err != nil {
		return "", fmt.Errorf("read admin: %w", err)
	}
	return id.Principal(v), nil
}

func (s *RedisStore) InitAdmin(ctx context.Context, p id.Principal) (id.Principal, error) {
	if err := s.client.SetNX(ctx, s.adminKey(), p.String(), 0).Err(); err != nil {
		return "", fmt.Errorf("init admin: %w", err)
	}
	return s.Admin(ctx)
}

func (s *RedisStore) SetAdmin(ctx context.Context, p id.Principal) error {
	if err := s.client.Set(ctx, s.adminKey(), p.String(), 0).Err(); err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	return nil
}
