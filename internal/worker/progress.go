package worker

import (
	"context"
	"log"

	"github.com/bobarin/clipforge/internal/models"
	"github.com/google/uuid"
)

// progressTracker persists stage/progress for a single run and refuses to move backwards.
type progressTracker struct {
	store    JobStore
	jobID    uuid.UUID
	stage    models.JobStage
	progress int
}

func newProgressTracker(store JobStore, jobID uuid.UUID) *progressTracker {
	return &progressTracker{store: store, jobID: jobID, stage: models.JobStageQueued}
}

func (t *progressTracker) advance(ctx context.Context, stage models.JobStage, progress int) error {
	if !t.stage.CanAdvance(stage) || progress < t.progress {
		log.Printf("[Worker] Job %s: ignoring backwards progress %s/%d (at %s/%d)",
			t.jobID, stage, progress, t.stage, t.progress)
		return nil
	}
	if err := t.store.UpdateJobStage(ctx, t.jobID, stage, progress); err != nil {
		return err
	}
	t.stage, t.progress = stage, progress
	return nil
}
