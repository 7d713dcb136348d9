package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/seven320/pose-net-correction/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	snapshotKey = "posenet:snapshot:latest"
	alertsKey   = "posenet:alerts"
	snapshotTTL = time.Hour
	keepAlerts  = 100
)

// SnapshotStore keeps the latest tracker snapshot and recent alert events
// in Redis so other processes can read them.
type SnapshotStore struct {
	client redis.UniversalClient
}

func NewSnapshotStore(addr, password string, db int) *SnapshotStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &SnapshotStore{client: client}
}

// NewSnapshotStoreWithClient wraps an existing client.
func NewSnapshotStoreWithClient(client redis.UniversalClient) *SnapshotStore {
	return &SnapshotStore{client: client}
}

func (s *SnapshotStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SnapshotStore) Stop() error {
	return s.client.Close()
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SnapshotStore) SaveAlert(ctx context.Context, ev model.AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, alertsKey, payload)
	pipe.LTrim(ctx, alertsKey, 0, keepAlerts-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

// FetchLatest returns nil without error when nothing has been stored yet.
func (s *SnapshotStore) FetchLatest(ctx context.Context) (*model.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// RecentAlerts returns up to limit alert events, newest first.
func (s *SnapshotStore) RecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	if limit <= 0 || limit > keepAlerts {
		limit = keepAlerts
	}

	raw, err := s.client.LRange(ctx, alertsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	events := make([]model.AlertEvent, 0, len(raw))
	for _, item := range raw {
		var ev model.AlertEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal alert: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
