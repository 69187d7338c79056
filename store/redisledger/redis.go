// Package redisledger keeps processed-message markers in Redis.
//
// Markers are plain keys written with SET NX and a TTL equal to the
// retention period, so expiry replaces the periodic cleanup job.
package redisledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/booking-engine/generic"
)

const keyPrefix = "booking:processed:"

// Ledger implements generic.Ledger.
type Ledger struct {
	client    *redis.Client
	retention time.Duration
	clock     generic.Clock
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string, retention time.Duration) (*Ledger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewWithClient(client, retention), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, retention time.Duration) *Ledger {
	if retention <= 0 {
		retention = generic.DefaultRetention
	}
	return &Ledger{client: client, retention: retention, clock: generic.SystemClock{}}
}

func key(id generic.MessageID) string { return keyPrefix + string(id) }

func (l *Ledger) IsProcessed(ctx context.Context, messageID generic.MessageID) (bool, error) {
	n, err := l.client.Exists(ctx, key(messageID)).Result()
	if err != nil {
		return false, &generic.StoreError{Op: "is_processed", Key: string(messageID), Err: err}
	}
	return n > 0, nil
}

// MarkProcessed reports true only for the call that created the key.
func (l *Ledger) MarkProcessed(ctx context.Context, messageID generic.MessageID, chatID generic.ChatID) (bool, error) {
	val := fmt.Sprintf("%s|%s", chatID, l.clock.Now().UTC().Format(time.RFC3339))
	created, err := l.client.SetNX(ctx, key(messageID), val, l.retention).Result()
	if err != nil {
		return false, &generic.StoreError{Op: "mark_processed", Key: string(messageID), Err: err}
	}
	return created, nil
}

func (l *Ledger) Unmark(ctx context.Context, messageID generic.MessageID) error {
	if err := l.client.Del(ctx, key(messageID)).Err(); err != nil {
		return &generic.StoreError{Op: "unmark", Key: string(messageID), Err: err}
	}
	return nil
}

// Cleanup is a no-op: keys expire on their own after the retention TTL.
func (l *Ledger) Cleanup(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Ledger) Close() error {
	return l.client.Close()
}
