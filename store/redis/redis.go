/*
Package redis provides a Redis-backed leave.Store.

LAYOUT:
  The collection lives in one hash:

    HSET <key> version <n> payload <json>

COMPARE-AND-SWAP:
  Replace WATCHes the key, checks the stored version and writes inside
  MULTI/EXEC. A concurrent write between WATCH and EXEC aborts the
  transaction (redis.TxFailedErr); both that and a version mismatch are
  reported as leave.ErrConcurrentModification.
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/vacation-planner/leave"
)

const (
	// DefaultKey is the hash holding the request collection.
	DefaultKey = "planner:requests"

	fieldVersion = "version"
	fieldPayload = "payload"
)

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects and pings the server.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	if logger != nil {
		logger.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	}
	return rdb, nil
}

// Store implements leave.Store on a Redis hash.
type Store struct {
	rdb *goredis.Client
	key string
}

// New wraps an existing client. An empty key selects DefaultKey.
func New(rdb *goredis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{rdb: rdb, key: key}
}

// Load returns the collection and its version.
func (s *Store) Load(ctx context.Context) (leave.Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to load collection: %w", err)
	}
	return decode(fields)
}

// Replace writes the collection if the stored version equals expected.
func (s *Store) Replace(ctx context.Context, expected int64, reqs leave.Collection) (leave.Snapshot, error) {
	if reqs == nil {
		reqs = leave.Collection{}
	}
	payload, err := json.Marshal(reqs)
	if err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to encode collection: %w", err)
	}

	next := expected + 1
	err = s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := version(ctx, tx, s.key)
		if err != nil {
			return err
		}
		if current != expected {
			return leave.ErrConcurrentModification
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, s.key, fieldVersion, next, fieldPayload, string(payload))
			return nil
		})
		return err
	}, s.key)

	switch {
	case errors.Is(err, goredis.TxFailedErr):
		return leave.Snapshot{}, leave.ErrConcurrentModification
	case errors.Is(err, leave.ErrConcurrentModification):
		return leave.Snapshot{}, err
	case err != nil:
		return leave.Snapshot{}, fmt.Errorf("failed to replace collection: %w", err)
	}
	return leave.Snapshot{Requests: reqs.Clone(), Version: next}, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func version(ctx context.Context, tx *goredis.Tx, key string) (int64, error) {
	v, err := tx.HGet(ctx, key, fieldVersion).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read version: %w", err)
	}
	return v, nil
}

func decode(fields map[string]string) (leave.Snapshot, error) {
	if len(fields) == 0 {
		return leave.Snapshot{Requests: leave.Collection{}}, nil
	}
	v, err := strconv.ParseInt(fields[fieldVersion], 10, 64)
	if err != nil {
		return leave.Snapshot{}, fmt.Errorf("invalid collection version %q: %w", fields[fieldVersion], err)
	}
	var reqs leave.Collection
	if err := json.Unmarshal([]byte(fields[fieldPayload]), &reqs); err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to decode collection: %w", err)
	}
	if reqs == nil {
		reqs = leave.Collection{}
	}
	return leave.Snapshot{Requests: reqs, Version: v}, nil
}
