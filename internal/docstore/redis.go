package docstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a Redis backend, one hash per document keyed
// as "collection:key".
type Redis struct {
	client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{client: client}
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.client == nil {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

func docKey(collection, key string) string { return collection + ":" + key }

// Get fetches a document.
func (r *Redis) Get(ctx context.Context, collection, key string) (Doc, error) {
	fields, err := r.client.HGetAll(ctx, docKey(collection, key)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return Doc(fields), nil
}

// Set replaces the whole document. DEL and HSET run in one pipeline so a
// re-issued document never keeps stale fields.
func (r *Redis) Set(ctx context.Context, collection, key string, doc Doc) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, docKey(collection, key))
	pipe.HSet(ctx, docKey(collection, key), toArgs(doc)...)
	_, err := pipe.Exec(ctx)
	return err
}

// SetFields updates individual fields.
func (r *Redis) SetFields(ctx context.Context, collection, key string, fields Doc) error {
	return r.client.HSet(ctx, docKey(collection, key), toArgs(fields)...).Err()
}

// SetMulti writes several documents in one pipelined batch.
func (r *Redis) SetMulti(ctx context.Context, collection string, docs map[string]Doc) error {
	if len(docs) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for key, doc := range docs {
		pipe.Del(ctx, docKey(collection, key))
		pipe.HSet(ctx, docKey(collection, key), toArgs(doc)...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a document. Deleting an absent document is not an error.
func (r *Redis) Delete(ctx context.Context, collection, key string) error {
	return r.client.Del(ctx, docKey(collection, key)).Err()
}

// DeleteMulti removes several documents in one call.
func (r *Redis) DeleteMulti(ctx context.Context, collection string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = docKey(collection, k)
	}
	return r.client.Del(ctx, full...).Err()
}

// IncrField atomically adds delta to a numeric field via HINCRBY.
func (r *Redis) IncrField(ctx context.Context, collection, key, field string, delta int64) (int64, error) {
	return r.client.HIncrBy(ctx, docKey(collection, key), field, delta).Result()
}

func toArgs(doc Doc) []interface{} {
	args := make([]interface{}, 0, len(doc)*2)
	for k, v := range doc {
		args = append(args, k, v)
	}
	return args
}
