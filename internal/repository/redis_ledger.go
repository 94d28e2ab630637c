package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

const redisLedgerPrefix = "webhook:ledger:"

// KEYS[1] = ledger key
// ARGV[1] = now (unix ms)
// ARGV[2] = processing lease (ms)
// ARGV[3] = retention (ms)
// ARGV[4] = event type
// ARGV[5] = subject id
var redisBeginScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local lease = tonumber(ARGV[2])

local status = redis.call("HGET", key, "status")
if not status then
    redis.call("HSET", key,
        "event_type", ARGV[4],
        "subject_id", ARGV[5],
        "status", "processing",
        "received_at", ARGV[1],
        "started_at", ARGV[1])
    redis.call("PEXPIRE", key, tonumber(ARGV[3]))
    return "admitted"
end

if status == "processing" then
    local started = tonumber(redis.call("HGET", key, "started_at"))
    if started and now - started > lease then
        redis.call("HSET", key, "started_at", ARGV[1])
        return "reclaimed"
    end
    return "processing"
end

return "processed"
`)

// KEYS[1] = ledger key
// ARGV[1] = terminal status
// ARGV[2] = failure reason
// ARGV[3] = now (unix ms)
var redisCompleteScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "status") ~= "processing" then
    return 0
end
redis.call("HSET", key, "status", ARGV[1], "failure_reason", ARGV[2], "processed_at", ARGV[3])
return 1
`)

// RedisLedger keeps idempotency records as hashes that expire after the
// retention window, so Purge has nothing to do.
type RedisLedger struct {
	client    redis.UniversalClient
	lease     time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisLedger(client redis.UniversalClient, lease, retention time.Duration) *RedisLedger {
	return &RedisLedger{
		client:    client,
		lease:     lease,
		retention: retention,
		now:       time.Now,
	}
}

func (l *RedisLedger) TryBegin(ctx context.Context, event domain.CanonicalEvent) (domain.Admission, error) {
	res, err := redisBeginScript.Run(ctx, l.client, []string{redisLedgerPrefix + event.ID},
		l.now().UnixMilli(), l.lease.Milliseconds(), l.retention.Milliseconds(),
		string(event.Type), event.SubjectID,
	).Text()
	if err != nil {
		return 0, fmt.Errorf("TryBegin: %w: %v", domain.ErrLedgerUnavailable, err)
	}

	switch res {
	case "admitted":
		return domain.Admitted, nil
	case "reclaimed":
		logging.FromContext(ctx).Warn("reclaimed expired ledger lease", "event_id", event.ID)
		return domain.Admitted, nil
	case "processing":
		return domain.AlreadyProcessing, nil
	case "processed":
		return domain.AlreadyProcessed, nil
	default:
		return 0, fmt.Errorf("TryBegin: %w: unexpected script result %q", domain.ErrLedgerUnavailable, res)
	}
}

func (l *RedisLedger) Complete(ctx context.Context, eventID string, status domain.LedgerStatus, reason string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("Complete: %q is not a terminal status", status)
	}

	n, err := redisCompleteScript.Run(ctx, l.client, []string{redisLedgerPrefix + eventID},
		string(status), reason, l.now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("Complete: %w: %v", domain.ErrLedgerUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("Complete: %s: %w", eventID, domain.ErrLedgerConflict)
	}
	return nil
}

// Purge is a no-op; key expiry enforces retention.
func (l *RedisLedger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

func (l *RedisLedger) Get(ctx context.Context, eventID string) (*domain.IdempotencyRecord, error) {
	fields, err := l.client.HGetAll(ctx, redisLedgerPrefix+eventID).Result()
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	return recordFromHash(eventID, fields), nil
}

// List scans the keyspace; it serves operators, not the request path.
func (l *RedisLedger) List(ctx context.Context, status domain.LedgerStatus, limit int) ([]domain.IdempotencyRecord, error) {
	var records []domain.IdempotencyRecord

	iter := l.client.Scan(ctx, 0, redisLedgerPrefix+"*", 200).Iterator()
	for iter.Next(ctx) && len(records) < limit {
		key := iter.Val()
		fields, err := l.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		if domain.LedgerStatus(fields["status"]) != status {
			continue
		}
		records = append(records, *recordFromHash(key[len(redisLedgerPrefix):], fields))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("List: scan: %w", err)
	}
	return records, nil
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func recordFromHash(eventID string, fields map[string]string) *domain.IdempotencyRecord {
	rec := &domain.IdempotencyRecord{
		EventID:    eventID,
		EventType:  domain.EventType(fields["event_type"]),
		SubjectID:  fields["subject_id"],
		Status:     domain.LedgerStatus(fields["status"]),
		ReceivedAt: unixMilli(fields["received_at"]),
		StartedAt:  unixMilli(fields["started_at"]),
	}
	if r := fields["failure_reason"]; r != "" {
		rec.FailureReason = &r
	}
	if p := fields["processed_at"]; p != "" {
		t := unixMilli(p)
		rec.ProcessedAt = &t
	}
	return rec
}

func unixMilli(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
