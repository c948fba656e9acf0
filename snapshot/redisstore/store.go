// Package redisstore keeps studycache snapshots in Redis.
//
// The compressed snapshot and its digest are written together to one hash
// with a single HSET, so readers see either the old or the new snapshot.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/redis/go-redis/v9"

	"github.com/meigma/studycache"
	"github.com/meigma/studycache/snapshot"
)

const (
	// DefaultKey is the hash key used when none is configured.
	DefaultKey = "studycache:snapshot"

	fieldData   = "data"
	fieldDigest = "digest"
)

// Store implements studycache.Store on a Redis hash.
type Store struct {
	client redis.UniversalClient
	key    string
	codec  *snapshot.Codec
	now    func() time.Time
}

// Interface compliance.
var _ studycache.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKey sets the hash key holding the snapshot.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// New returns a Store using client. The caller owns client.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: client is nil")
	}
	s := &Store{
		client: client,
		key:    DefaultKey,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		return nil, errors.New("redisstore: key is empty")
	}
	codec, err := snapshot.NewCodec()
	if err != nil {
		return nil, err
	}
	s.codec = codec
	return s, nil
}

// Close releases the store's codec. It does not close the client.
func (s *Store) Close() error {
	s.codec.Close()
	return nil
}

// Load implements studycache.Store. A missing hash loads as empty.
func (s *Store) Load(ctx context.Context) ([]studycache.SetRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: read %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return []studycache.SetRecord{}, nil
	}
	data, ok := fields[fieldData]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no data field", studycache.ErrSnapshotCorrupt, s.key)
	}
	snap, err := s.codec.Unmarshal([]byte(data), digest.Digest(fields[fieldDigest]))
	if err != nil {
		return nil, err
	}
	return snap.Sets, nil
}

// Save implements studycache.Store.
func (s *Store) Save(ctx context.Context, sets []studycache.SetRecord) error {
	data, dgst, err := s.codec.Marshal(sets, s.now())
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, fieldData, data, fieldDigest, dgst.String()).Err(); err != nil {
		return fmt.Errorf("redisstore: write %s: %w", s.key, err)
	}
	return nil
}
