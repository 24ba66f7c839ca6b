package rag

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisEmbeddingCache shares query embeddings between replicas.
// Cache failures are logged and treated as misses.
type RedisEmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisEmbeddingCache(ctx context.Context, url string, ttl time.Duration, logger *zap.Logger) (*RedisEmbeddingCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisEmbeddingCache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, "emb:"+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Redis embedding lookup failed", zap.Error(err))
		return nil, false
	}
	vec, ok := decodeVector(raw)
	return vec, ok
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, key string, vec []float32) {
	if err := c.client.Set(ctx, "emb:"+key, encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.Warn("Redis embedding store failed", zap.Error(err))
	}
}

func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, true
}
