package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueProcessJob        = "queue:process_job"
	QueueProcessJobDelayed = "queue:process_job:delayed"

	// A job id is admitted at most once while this key exists
	activeKeyPrefix  = "queue:active:"
	DefaultActiveTTL = 6 * time.Hour

	promoteBatch = 100
)

// admitScript claims the admission key and pushes the message in one step, so a
// claimed key always has a message behind it.
var admitScript = redis.NewScript(`
if not redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 0
end
local pushed = redis.pcall("RPUSH", KEYS[2], ARGV[3])
if type(pushed) == "table" and pushed.err then
	redis.call("DEL", KEYS[1])
	return redis.error_reply(pushed.err)
end
return 1
`)

type Queue struct {
	client    *redis.Client
	activeTTL time.Duration
	now       func() time.Time
}

// Message is the queue payload. It only carries the job id; everything else is
// read from the job store when the message is processed.
type Message struct {
	JobID      string    `json:"job_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func New(redisURL string, activeTTL time.Duration) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, activeTTL), nil
}

func NewWithClient(client *redis.Client, activeTTL time.Duration) *Queue {
	if activeTTL <= 0 {
		activeTTL = DefaultActiveTTL
	}
	return &Queue{client: client, activeTTL: activeTTL, now: time.Now}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func activeKey(jobID string) string {
	return activeKeyPrefix + jobID
}

// Enqueue admits jobID for processing. It returns false without queueing anything when
// the job is already queued, delayed or running.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID) (bool, error) {
	id := jobID.String()
	now := q.now()

	data, err := json.Marshal(Message{JobID: id, Attempt: 1, EnqueuedAt: now})
	if err != nil {
		return false, fmt.Errorf("failed to marshal message: %w", err)
	}

	n, err := admitScript.Run(ctx, q.client,
		[]string{activeKey(id), QueueProcessJob},
		now.Unix(), q.activeTTL.Milliseconds(), data,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue: %w", err)
	}
	return n == 1, nil
}

// Dequeue moves due retries onto the main list and then blocks for up to timeout.
// It returns (nil, nil) when nothing arrived in time.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	result, err := q.client.BLPop(ctx, timeout, QueueProcessJob).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// promoteDue pushes delayed messages whose time has come. ZREM decides which caller
// owns a member, so concurrent workers never promote the same retry twice.
func (q *Queue) promoteDue(ctx context.Context) error {
	max := strconv.FormatInt(q.now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, QueueProcessJobDelayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   max,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed queue: %w", err)
	}

	for _, m := range members {
		removed, err := q.client.ZRem(ctx, QueueProcessJobDelayed, m).Result()
		if err != nil {
			return fmt.Errorf("failed to claim delayed message: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, QueueProcessJob, m).Err(); err != nil {
			return fmt.Errorf("failed to promote delayed message: %w", err)
		}
	}
	return nil
}

// Retry schedules the next attempt of msg after delay and keeps the job admitted.
func (q *Queue) Retry(ctx context.Context, msg *Message, delay time.Duration) error {
	now := q.now()
	next := Message{JobID: msg.JobID, Attempt: msg.Attempt + 1, EnqueuedAt: now}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := q.client.Set(ctx, activeKey(msg.JobID), now.Unix(), q.activeTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh admission key: %w", err)
	}

	score := float64(now.Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, QueueProcessJobDelayed, &redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// Complete releases the admission key so the job can be enqueued again.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	if err := q.client.Del(ctx, activeKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to release admission key: %w", err)
	}
	return nil
}

// IsActive reports whether jobID is currently admitted.
func (q *Queue) IsActive(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := q.client.Exists(ctx, activeKey(jobID.String())).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q *Queue) GetQueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueProcessJob).Result()
}
