package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bobarin/clipforge/internal/queue"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type fakeRunner struct {
	mu     sync.Mutex
	err    error
	runs   int32
	ran    chan uuid.UUID
	failed []uuid.UUID
	resets []uuid.UUID
}

func (r *fakeRunner) Run(ctx context.Context, jobID uuid.UUID) error {
	atomic.AddInt32(&r.runs, 1)
	if r.ran != nil {
		r.ran <- jobID
	}
	return r.err
}

func (r *fakeRunner) Fail(ctx context.Context, jobID uuid.UUID, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, jobID)
}

func (r *fakeRunner) ResetForRetry(ctx context.Context, jobID uuid.UUID, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, jobID)
}

type fakeQueue struct {
	completed []string
	retried   []time.Duration
	retryErr  error
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Message, error) {
	return nil, nil
}

func (q *fakeQueue) Retry(ctx context.Context, msg *queue.Message, delay time.Duration) error {
	q.retried = append(q.retried, delay)
	return q.retryErr
}

func (q *fakeQueue) Complete(ctx context.Context, jobID string) error {
	q.completed = append(q.completed, jobID)
	return nil
}

func TestHandleOutcomes(t *testing.T) {
	id := uuid.New()
	transient := errors.New("network blip")

	tests := []struct {
		name      string
		jobID     string
		attempt   int
		runErr    error
		retryErr  error
		wantRuns  int32
		wantFail  bool
		wantReset bool
		wantRetry time.Duration
		wantDone  bool
	}{
		{name: "success", jobID: id.String(), attempt: 1, wantRuns: 1, wantDone: true},
		{name: "permanent", jobID: id.String(), attempt: 1, runErr: permanent(ErrNoClips), wantRuns: 1, wantFail: true, wantDone: true},
		{name: "transient first attempt", jobID: id.String(), attempt: 1, runErr: transient, wantRuns: 1, wantReset: true, wantRetry: 10 * time.Second},
		{name: "transient third attempt", jobID: id.String(), attempt: 3, runErr: transient, wantRuns: 1, wantReset: true, wantRetry: 40 * time.Second},
		{name: "attempts exhausted", jobID: id.String(), attempt: 5, runErr: transient, wantRuns: 1, wantFail: true, wantDone: true},
		{name: "retry scheduling fails", jobID: id.String(), attempt: 1, runErr: transient, retryErr: errors.New("redis down"), wantRuns: 1, wantReset: true, wantRetry: 10 * time.Second, wantFail: true, wantDone: true},
		{name: "invalid job id", jobID: "not-a-uuid", attempt: 1, wantDone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{retryErr: tt.retryErr}
			r := &fakeRunner{err: tt.runErr}
			w := New(q, r, queue.DefaultRetryPolicy)

			w.handle(context.Background(), &queue.Message{JobID: tt.jobID, Attempt: tt.attempt})

			if r.runs != tt.wantRuns {
				t.Errorf("runs = %d, want %d", r.runs, tt.wantRuns)
			}
			if got := len(r.failed) == 1; got != tt.wantFail {
				t.Errorf("failed = %v, want %v", r.failed, tt.wantFail)
			}
			if got := len(r.resets) == 1; got != tt.wantReset {
				t.Errorf("resets = %v, want %v", r.resets, tt.wantReset)
			}
			if tt.wantRetry > 0 {
				if len(q.retried) != 1 || q.retried[0] != tt.wantRetry {
					t.Errorf("retried = %v, want %v", q.retried, tt.wantRetry)
				}
			} else if len(q.retried) != 0 {
				t.Errorf("unexpected retry %v", q.retried)
			}
			if got := len(q.completed) == 1; got != tt.wantDone {
				t.Errorf("completed = %v, want %v", q.completed, tt.wantDone)
			}
		})
	}
}

func TestDuplicateEnqueueRunsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := queue.NewWithClient(client, time.Hour)

	ctx := context.Background()
	id := uuid.New()
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	r := &fakeRunner{ran: make(chan uuid.UUID, 4)}
	w := New(q, r, queue.DefaultRetryPolicy)
	w.pollTimeout = time.Second

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		w.Start(runCtx, 3)
		close(stopped)
	}()

	select {
	case got := <-r.ran:
		if got != id {
			t.Fatalf("ran %s, want %s", got, id)
		}
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("job never ran")
	}

	// wait for the slot to be released, then give the pool time to pick up any duplicate
	deadline := time.Now().Add(5 * time.Second)
	for {
		active, err := q.IsActive(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !active {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("admission key never released")
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(1500 * time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	if n := atomic.LoadInt32(&r.runs); n != 1 {
		t.Fatalf("job ran %d times, want exactly once", n)
	}
}
