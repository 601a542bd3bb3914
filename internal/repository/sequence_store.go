package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// GormSequenceStore — счётчики в таблице sequence_counters. Увеличение и
// чтение выполняются одним UPSERT ... RETURNING.
type GormSequenceStore struct {
	db *gorm.DB
}

func NewGormSequenceStore(db *gorm.DB) *GormSequenceStore {
	return &GormSequenceStore{db: db}
}

const upsertCounter = `INSERT INTO sequence_counters (name, value) VALUES (?, 1)
ON CONFLICT (name) DO UPDATE SET value = sequence_counters.value + 1
RETURNING value`

func (s *GormSequenceStore) Increment(ctx context.Context, key string) (int64, error) {
	var value int64
	if err := s.db.WithContext(ctx).Raw(upsertCounter, key).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

// RedisSequenceStore держит счётчики в Redis (INCR).
type RedisSequenceStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSequenceStore(client *redis.Client, prefix string) *RedisSequenceStore {
	return &RedisSequenceStore{client: client, prefix: prefix}
}

func (s *RedisSequenceStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, s.prefix+key).Result()
}
