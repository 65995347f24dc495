package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bobarin/clipforge/internal/queue"
	"github.com/google/uuid"
)

const (
	defaultPollTimeout = 5 * time.Second
	shutdownGrace      = 10 * time.Second
)

// Worker pulls job ids off the queue and hands them to a Runner.
type Worker struct {
	queue       JobQueue
	runner      Runner
	policy      queue.RetryPolicy
	pollTimeout time.Duration
}

func New(q JobQueue, runner Runner, policy queue.RetryPolicy) *Worker {
	if policy.MaxAttempts <= 0 {
		policy = queue.DefaultRetryPolicy
	}
	return &Worker{
		queue:       q,
		runner:      runner,
		policy:      policy,
		pollTimeout: defaultPollTimeout,
	}
}

// Start runs concurrency consumers and blocks until ctx is cancelled and all of them exit.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("Worker started with concurrency: %d", concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processQueue(ctx)
		}()
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
	wg.Wait()
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error dequeuing from %s: %v", queue.QueueProcessJob, err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg *queue.Message) {
	jobID, err := uuid.Parse(msg.JobID)
	if err != nil {
		log.Printf("Dropping message with invalid job id %q", msg.JobID)
		w.complete(ctx, msg.JobID)
		return
	}

	log.Printf("Processing job %s (attempt %d)", jobID, msg.Attempt)
	err = w.runner.Run(ctx, jobID)

	switch {
	case err == nil:
		log.Printf("Job %s completed successfully", jobID)
		w.complete(ctx, msg.JobID)

	case ctx.Err() != nil:
		// Interrupted by shutdown: hand the job back so another worker picks it up.
		bg, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Printf("Job %s interrupted, requeueing", jobID)
		w.runner.ResetForRetry(bg, jobID, err)
		if rerr := w.queue.Retry(bg, msg, w.policy.BaseDelay); rerr != nil {
			log.Printf("Job %s: failed to requeue: %v", jobID, rerr)
		}

	case IsPermanent(err) || msg.Attempt >= w.policy.MaxAttempts:
		log.Printf("Job %s failed (attempt %d/%d): %v", jobID, msg.Attempt, w.policy.MaxAttempts, err)
		w.runner.Fail(ctx, jobID, err)
		w.complete(ctx, msg.JobID)

	default:
		delay := w.policy.Delay(msg.Attempt)
		log.Printf("Job %s failed (attempt %d/%d), retrying in %s: %v", jobID, msg.Attempt, w.policy.MaxAttempts, delay, err)
		w.runner.ResetForRetry(ctx, jobID, err)
		if rerr := w.queue.Retry(ctx, msg, delay); rerr != nil {
			log.Printf("Job %s: failed to schedule retry: %v", jobID, rerr)
			w.runner.Fail(ctx, jobID, err)
			w.complete(ctx, msg.JobID)
		}
	}
}

func (w *Worker) complete(ctx context.Context, jobID string) {
	if err := w.queue.Complete(ctx, jobID); err != nil {
		log.Printf("Job %s: failed to release queue slot: %v", jobID, err)
	}
}
