package sessioninfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
)

// RedisStore keeps session documents as JSON strings with a TTL.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "authlink:session"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// NewRedisProvider returns a session manager backed by redis.
func NewRedisProvider(rdb redis.Cmdable, codec *session.TokenCodec, users core.UserReader) *session.Manager {
	return session.NewManager(NewRedisStore(rdb, ""), codec, users)
}

func (s *RedisStore) key(handle string) string {
	return s.prefix + ":" + handle
}

func (s *RedisStore) Put(ctx context.Context, doc *session.Document, ttl time.Duration) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return session.ErrStoreFailure(err).WithDetail("session_handle", doc.Handle)
	}
	if err := s.rdb.Set(ctx, s.key(doc.Handle), data, ttl).Err(); err != nil {
		return session.ErrStoreFailure(err).WithDetail("session_handle", doc.Handle)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, handle string) (*session.Document, error) {
	data, err := s.rdb.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, session.ErrStoreFailure(err).WithDetail("session_handle", handle)
	}

	var doc session.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, session.ErrStoreFailure(err).WithDetail("session_handle", handle)
	}
	return &doc, nil
}

func (s *RedisStore) Delete(ctx context.Context, handle string) error {
	if err := s.rdb.Del(ctx, s.key(handle)).Err(); err != nil {
		return session.ErrStoreFailure(err).WithDetail("session_handle", handle)
	}
	return nil
}
