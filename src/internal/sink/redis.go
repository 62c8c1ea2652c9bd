// FILE: callwisp/src/internal/sink/redis.go
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"

	"github.com/goccy/go-json"
	"github.com/lixenwraith/log"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "callwisp:logs"

// RedisSink pushes JSON encoded entries onto a redis list, oldest first
type RedisSink struct {
	client    *redis.Client
	key       string
	maxLen    int64 // 0 = unlimited
	timeout   time.Duration
	logger    *log.Logger
	closeOnce sync.Once
	closeErr  error

	counters
}

// NewRedisSink creates a redis sink and verifies the connection
func NewRedisSink(opts *config.RedisSinkOptions, logger *log.Logger) (*RedisSink, error) {
	if opts == nil || opts.Addr == "" {
		return nil, fmt.Errorf("redis sink: addr is required")
	}
	if opts.MaxLen < 0 {
		return nil, fmt.Errorf("redis sink: max_len cannot be negative: %d", opts.MaxLen)
	}

	key := opts.Key
	if key == "" {
		key = defaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       int(opts.DB),
	})

	s := &RedisSink{
		client:  client,
		key:     key,
		maxLen:  opts.MaxLen,
		timeout: 5 * time.Second,
		logger:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis sink: failed to connect to %s: %w", opts.Addr, err)
	}

	s.startCounters()
	return s, nil
}

// Write appends the entry to the list, trimming the oldest entries past max_len
func (s *RedisSink) Write(entry *core.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		s.failed()
		return fmt.Errorf("redis sink: failed to marshal entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.key, data)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, s.key, -s.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.failed()
		if s.logger != nil {
			s.logger.Warn("msg", "Failed to push log entry",
				"component", "redis_sink",
				"key", s.key,
				"error", err)
		}
		return fmt.Errorf("redis sink: push failed: %w", err)
	}

	s.processed()
	return nil
}

// Range decodes the stored entries between start and stop, inclusive, redis index semantics
func (s *RedisSink) Range(ctx context.Context, start, stop int64) ([]*core.LogEntry, error) {
	values, err := s.client.LRange(ctx, s.key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis sink: range failed: %w", err)
	}

	entries := make([]*core.LogEntry, 0, len(values))
	for _, v := range values {
		entry, err := core.DecodeJSON([]byte(v))
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close closes the client
func (s *RedisSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// GetStats returns sink statistics
func (s *RedisSink) GetStats() SinkStats {
	return s.stats("redis", map[string]any{
		"key":     s.key,
		"max_len": s.maxLen,
	})
}
