package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const TourCachePrefix = "tours"

// CacheService stores rendered read responses in Redis. A CacheService
// without a client is valid and never hits.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// NewRedisClient returns nil when rawURL is empty.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	if rawURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func NewCacheService(client *redis.Client, ttl time.Duration, log *logrus.Logger) *CacheService {
	return &CacheService{client: client, ttl: ttl, log: log}
}

func (s *CacheService) Enabled() bool {
	return s != nil && s.client != nil
}

// Get decodes the cached value into dest and reports whether there was one.
// Redis failures count as a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache entry is corrupt")
		return false
	}
	return true
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}) {
	if !s.Enabled() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.log.WithError(err).Warn("cache value is not serializable")
		return
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// InvalidateTours drops every cached tour response.
func (s *CacheService) InvalidateTours(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.deletePrefix(ctx, TourCachePrefix); err != nil {
		s.log.WithError(err).Warn("cache invalidation failed")
		return err
	}
	return nil
}

func (s *CacheService) deletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+":*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// QueryKey builds a cache key from the query string. Key order does not
// matter.
func QueryKey(prefix string, query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(":")
		}
		builder.WriteString(k)
		builder.WriteString("=")
		builder.WriteString(strings.Join(query[k], ","))
	}

	hash := md5.Sum([]byte(builder.String()))
	return prefix + ":" + hex.EncodeToString(hash[:])
}
