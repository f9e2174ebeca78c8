// Package redisrepo stores refresh token records in Redis so several issuer replicas share one chain view.
package redisrepo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/token/refresh"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix     = "refresh:"
	maxOptimisticRuns = 16
)

var _ refresh.Repo = (*Repo)(nil)

// getter is satisfied by both the client and a transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Repo keeps one JSON document per record plus an id index and a parent -> children set.
// Tokens are never written: keys use their SHA-256 and documents omit them.
type Repo struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

type Option func(*Repo)

// WithPrefix namespaces every key written by the repo
func WithPrefix(prefix string) Option {
	return func(r *Repo) {
		r.prefix = prefix
	}
}

// WithRetention expires records after d. Zero keeps records until deleted.
func WithRetention(d time.Duration) Option {
	return func(r *Repo) {
		r.retention = d
	}
}

func New(client redis.UniversalClient, opts ...Option) *Repo {
	r := &Repo{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect opens a client from the Redis config and pings it
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.GetRedisAddr(), err)
	}
	return client, nil
}

func (r *Repo) Create(ctx context.Context, record *refresh.TokenRecord) error {
	if record == nil || record.Token == "" || record.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "record requires an id and a token")
	}
	data, err := encode(record)
	if err != nil {
		return err
	}

	key := r.tokenKey(record.Token)
	created, err := r.client.SetNX(ctx, key, data, r.retention).Result()
	if err != nil {
		return err
	}
	if !created {
		return errors.Wrapf(errors.ErrInvalidRequest, "record %s already exists", record.ID)
	}
	return r.client.Set(ctx, r.idKey(record.ID), key, r.retention).Err()
}

func (r *Repo) Get(ctx context.Context, token string) (*refresh.TokenRecord, error) {
	record, err := r.load(ctx, r.client, r.tokenKey(token))
	if err != nil {
		return nil, err
	}
	record.Token = token
	return record, nil
}

func (r *Repo) Rotate(ctx context.Context, presented string, next *refresh.TokenRecord) error {
	if next == nil || next.Token == "" || next.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "successor requires an id and a token")
	}

	key := r.tokenKey(presented)
	return r.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Revoked {
			return errors.ErrTokenReuseDetected
		}

		current.Revoked = true
		next.ParentID = current.ID
		currentData, err := encode(current)
		if err != nil {
			return err
		}
		nextData, err := encode(next)
		if err != nil {
			return err
		}

		nextKey := r.tokenKey(next.Token)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, currentData, r.retention)
			pipe.Set(ctx, nextKey, nextData, r.retention)
			pipe.Set(ctx, r.idKey(next.ID), nextKey, r.retention)
			pipe.SAdd(ctx, r.childrenKey(current.ID), next.ID)
			if r.retention > 0 {
				pipe.Expire(ctx, r.childrenKey(current.ID), r.retention)
			}
			return nil
		})
		return err
	})
}

func (r *Repo) Extend(ctx context.Context, token string, expiresAt time.Time) error {
	key := r.tokenKey(token)
	return r.watch(ctx, key, func(tx *redis.Tx) error {
		record, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if record.Revoked {
			return errors.ErrTokenReuseDetected
		}
		record.ExpiresAt = expiresAt
		return r.store(ctx, tx, key, record)
	})
}

func (r *Repo) RevokeChain(ctx context.Context, token string) (int, error) {
	root, err := r.Get(ctx, token)
	if err != nil {
		return 0, err
	}

	revoked := 0
	queue := []string{root.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		key, err := r.client.Get(ctx, r.idKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return revoked, err
		}

		changed := false
		err = r.watch(ctx, key, func(tx *redis.Tx) error {
			record, err := r.load(ctx, tx, key)
			if err != nil {
				return err
			}
			if record.Revoked {
				return nil
			}
			record.Revoked = true
			changed = true
			return r.store(ctx, tx, key, record)
		})
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return revoked, err
		}
		if changed {
			revoked++
		}

		children, err := r.client.SMembers(ctx, r.childrenKey(id)).Result()
		if err != nil {
			return revoked, err
		}
		queue = append(queue, children...)
	}
	return revoked, nil
}

// watch runs fn under optimistic locking on key, retrying when another writer got there first
func (r *Repo) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for range maxOptimisticRuns {
		err := r.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("gave up updating %s after %d conflicting writes", key, maxOptimisticRuns)
}

func (r *Repo) load(ctx context.Context, c getter, key string) (*refresh.TokenRecord, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record refresh.TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt refresh record at %s: %w", key, err)
	}
	return &record, nil
}

func (r *Repo) store(ctx context.Context, tx *redis.Tx, key string, record *refresh.TokenRecord) error {
	data, err := encode(record)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, r.retention)
		return nil
	})
	return err
}

// encode leaves the token out of the stored document; it only appears hashed, in the key
func encode(record *refresh.TokenRecord) ([]byte, error) {
	doc := *record
	doc.Token = ""
	return json.Marshal(doc)
}

func (r *Repo) tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + "token:" + hex.EncodeToString(sum[:])
}

func (r *Repo) idKey(id string) string {
	return r.prefix + "id:" + id
}

func (r *Repo) childrenKey(id string) string {
	return r.prefix + "children:" + id
}
