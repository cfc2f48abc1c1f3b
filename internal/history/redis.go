package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each station's entries in a hash (identifier -> JSON) with
// a sorted set ordering them by scan time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store whose keys start with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "qrattend:history"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) stationKey(station string) string {
	if station == "" {
		station = "-"
	}
	return s.prefix + ":" + station
}

func (s *RedisStore) entriesKey(station string) string { return s.stationKey(station) + ":entries" }
func (s *RedisStore) orderKey(station string) string   { return s.stationKey(station) + ":order" }

// Append stores entry unless the station saw its identifier before. The hash
// write and the index write go out in one MULTI; ZADD NX keeps a retry able to
// index an entry whose earlier index write failed.
func (s *RedisStore) Append(ctx context.Context, entry attendance.HistoryEntry) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	score := float64(entry.ScannedAt.UnixMilli())
	var added *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.HSetNX(ctx, s.entriesKey(entry.Station), entry.Identifier, payload)
		pipe.ZAddNX(ctx, s.orderKey(entry.Station), redis.Z{Score: score, Member: entry.Identifier})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	return added.Val(), nil
}

// List returns the station's entries newest first.
func (s *RedisStore) List(ctx context.Context, station string) ([]attendance.HistoryEntry, error) {
	ids, err := s.client.ZRevRange(ctx, s.orderKey(station), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	entries := []attendance.HistoryEntry{}
	if len(ids) == 0 {
		return entries, nil
	}
	vals, err := s.client.HMGet(ctx, s.entriesKey(station), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e attendance.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Delete(ctx context.Context, station, identifier string) error {
	n, err := s.client.HDel(ctx, s.entriesKey(station), identifier).Result()
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return s.client.ZRem(ctx, s.orderKey(station), identifier).Err()
}

func (s *RedisStore) Clear(ctx context.Context, station string) error {
	return s.client.Del(ctx, s.entriesKey(station), s.orderKey(station)).Err()
}
