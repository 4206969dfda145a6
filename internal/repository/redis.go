package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultRedisReportsKey = "kestrel:reports"

// RedisStore keeps every report as one field of a Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg domain.RepositoryConfig) (*RedisStore, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	key := cfg.RedisKey
	if key == "" {
		key = defaultRedisReportsKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, key: key}, nil
}

// Save replaces the hash field for the report's filename.
func (s *RedisStore) Save(ctx context.Context, report *domain.ValidationReport) error {
	doc, err := encodeReport(report)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, domain.ReportKey(report.Filename), doc).Err(); err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.Filename, err)
	}
	return nil
}

// Get returns the document stored for filename.
func (s *RedisStore) Get(ctx context.Context, filename string) (*domain.StoredReport, error) {
	key := domain.ReportKey(filename)
	data, err := s.client.HGet(ctx, s.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.StoredReport{Key: key, Data: data}, nil
}

// Scan reads the whole hash and orders it by key.
func (s *RedisStore) Scan(ctx context.Context) ([]domain.StoredReport, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan reports: %w", err)
	}

	reports := make([]domain.StoredReport, 0, len(fields))
	for key, doc := range fields {
		reports = append(reports, domain.StoredReport{Key: key, Data: []byte(doc)})
	}
	sortReports(reports)
	return reports, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
