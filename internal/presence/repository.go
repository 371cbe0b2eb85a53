package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:user:"

type Repository interface {
	Get(ctx context.Context, userID uint64) (*Record, bool, error)
	Set(ctx context.Context, record *Record) error
	All(ctx context.Context) ([]Record, error)
}

// RepositoryImpl keeps presence in redis: one JSON value per user. Staleness
// is handled by the sweep rather than key TTLs, so a stale user still reads
// back as an explicit offline record.
type RepositoryImpl struct {
	client *redis.Client
}

func NewRepository(client *redis.Client) Repository {
	return &RepositoryImpl{client: client}
}

func key(userID uint64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

func (r *RepositoryImpl) Get(ctx context.Context, userID uint64) (*Record, bool, error) {
	data, err := r.client.Get(ctx, key(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (r *RepositoryImpl) Set(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(record.UserID), data, 0).Err()
}

func (r *RepositoryImpl) All(ctx context.Context) ([]Record, error) {
	var records []Record

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
