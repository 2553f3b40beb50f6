// Package redisstore implements store.Store on Redis. Each document is a hash
// under the key "<prefix><collection>/<id>"; increments use HINCRBY, so the
// counter stays correct under concurrent writers without client-side locking.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	e "github.com/gartstein/companytrigger/internal/company/errors"
	"github.com/gartstein/companytrigger/internal/company/store"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Hash values carry a type tag so Get can hand back the type the writer
// stored. Integers stay untagged for HINCRBY; untagged non-integers written by
// other clients read back as strings.
const (
	stringPrefix    = "s:"
	timestampPrefix = "ts:"
)

// updateIfExists applies HSET only when the hash exists.
var updateIfExists = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a Redis backed document store.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(rdb, cfg.Prefix, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb goredis.UniversalClient, prefix string, logger *zap.Logger) *Store {
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.Named("redis_store"),
	}
}

func (s *Store) key(ref store.Ref) string {
	return s.prefix + ref.String()
}

func (s *Store) Get(ctx context.Context, ref store.Ref) (*store.Snapshot, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key(ref)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &store.Snapshot{Ref: ref}, nil
	}
	data := make(map[string]any, len(raw))
	for field, v := range raw {
		data[field] = decodeValue(v)
	}
	return &store.Snapshot{Ref: ref, Exists: true, Data: data}, nil
}

func (s *Store) Create(ctx context.Context, ref store.Ref, fields map[string]any) error {
	args, err := encodeFields(fields)
	if err != nil {
		return err
	}
	key := s.key(ref)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(args) > 0 {
			pipe.HSet(ctx, key, args...)
		}
		return nil
	})
	return err
}

func (s *Store) Update(ctx context.Context, ref store.Ref, fields map[string]any) error {
	args, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	updated, err := updateIfExists.Run(ctx, s.rdb, []string{s.key(ref)}, args...).Int()
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("%w: %s", e.ErrNotFound, ref)
	}
	return nil
}

// SetMerge runs all field writes of one call in a MULTI/EXEC block.
func (s *Store) SetMerge(ctx context.Context, ref store.Ref, fields map[string]any) error {
	plain := make(map[string]any, len(fields))
	increments := make(map[string]int64)
	for field, v := range fields {
		if inc, ok := v.(store.Increment); ok {
			increments[field] = inc.By
			continue
		}
		plain[field] = v
	}
	args, err := encodeFields(plain)
	if err != nil {
		return err
	}

	key := s.key(ref)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(args) > 0 {
			pipe.HSet(ctx, key, args...)
		}
		for field, by := range increments {
			pipe.HIncrBy(ctx, key, field, by)
		}
		return nil
	})
	if err != nil {
		s.logger.Debug("merge write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (s *Store) Delete(ctx context.Context, ref store.Ref) error {
	return s.rdb.Del(ctx, s.key(ref)).Err()
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

// encodeFields flattens fields into HSET arguments.
func encodeFields(fields map[string]any) ([]any, error) {
	args := make([]any, 0, len(fields)*2)
	for field, v := range fields {
		encoded, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		args = append(args, field, encoded)
	}
	return args, nil
}

func encodeValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return stringPrefix + t, nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case *timestamppb.Timestamp:
		if err := t.CheckValid(); err != nil {
			return "", fmt.Errorf("%w: %w", e.ErrInvalidInput, err)
		}
		return timestampPrefix + t.AsTime().Format(time.RFC3339Nano), nil
	case time.Time:
		return timestampPrefix + t.UTC().Format(time.RFC3339Nano), nil
	case store.Increment:
		return "", fmt.Errorf("%w: increment outside a merge write", e.ErrInvalidInput)
	}
	return "", fmt.Errorf("%w: unsupported value type %T", e.ErrInvalidInput, v)
}

func decodeValue(v string) any {
	if rest, ok := strings.CutPrefix(v, stringPrefix); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(v, timestampPrefix); ok {
		if t, err := time.Parse(time.RFC3339Nano, rest); err == nil {
			return timestamppb.New(t)
		}
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}
