package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bobarin/clipforge/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrJobNotFound = errors.New("job not found")

const jobColumns = `
	id, owner_id, type, source, status, stage, progress,
	aspect, clip_duration_sec, max_clips, captions_enabled, caption_style,
	job_goal, summary_target_sec, clips, captioned_clips, captioned_thumbs,
	error_message, created_at, updated_at`

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (
			id, owner_id, type, source, status, stage, progress,
			aspect, clip_duration_sec, max_clips, captions_enabled, caption_style,
			job_goal, summary_target_sec
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.OwnerID, job.Type, job.Source, job.Status, job.Stage, job.Progress,
		job.Aspect, job.ClipDurationSec, job.MaxClips, job.CaptionsEnabled, job.CaptionStyle,
		job.JobGoal, job.SummaryTargetSec,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListJobs returns an owner's jobs, newest first, optionally filtered by status.
func (db *DB) ListJobs(ctx context.Context, ownerID string, status models.JobStatus, limit, offset int) ([]models.Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1`
	if status != "" {
		query := baseSelect + ` AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		rows, err = db.QueryContext(ctx, query, ownerID, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, ownerID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// CountJobs returns the number of jobs an owner has, optionally filtered by status.
func (db *DB) CountJobs(ctx context.Context, ownerID string, status models.JobStatus) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE owner_id = $1 AND status = $2`, ownerID, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE owner_id = $1`, ownerID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.Type, &job.Source, &job.Status, &job.Stage, &job.Progress,
		&job.Aspect, &job.ClipDurationSec, &job.MaxClips, &job.CaptionsEnabled, &job.CaptionStyle,
		&job.JobGoal, &job.SummaryTargetSec,
		pq.Array(&job.Clips), pq.Array(&job.CaptionedClips), pq.Array(&job.CaptionedThumbs),
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// PatchJob applies the non-nil fields of patch. A patch with no fields is a no-op.
func (db *DB) PatchJob(ctx context.Context, id uuid.UUID, patch models.JobPatch) error {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Stage != nil {
		add("stage", *patch.Stage)
	}
	if patch.Progress != nil {
		add("progress", *patch.Progress)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	} else if patch.ClearError {
		sets = append(sets, "error_message = NULL")
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE jobs SET %s, updated_at = now() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	return db.execOne(ctx, query, args...)
}

// UpdateJobStage records the stage and progress of a running job.
func (db *DB) UpdateJobStage(ctx context.Context, id uuid.UUID, stage models.JobStage, progress int) error {
	query := `UPDATE jobs SET stage = $1, progress = $2, updated_at = now() WHERE id = $3`
	return db.execOne(ctx, query, stage, progress, id)
}

func (db *DB) SetJobClips(ctx context.Context, id uuid.UUID, clips []string) error {
	query := `UPDATE jobs SET clips = $1, updated_at = now() WHERE id = $2`
	return db.execOne(ctx, query, pq.Array(clips), id)
}

func (db *DB) SetJobResults(ctx context.Context, id uuid.UUID, videos, thumbs []string) error {
	query := `
		UPDATE jobs
		SET captioned_clips = $1, captioned_thumbs = $2, updated_at = now()
		WHERE id = $3
	`
	return db.execOne(ctx, query, pq.Array(videos), pq.Array(thumbs), id)
}

// MarkJobDone finishes a job successfully.
func (db *DB) MarkJobDone(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, stage = $2, progress = 100, error_message = NULL, updated_at = now()
		WHERE id = $3
	`
	return db.execOne(ctx, query, models.JobStatusDone, models.JobStageFinished, id)
}

// MarkJobFailed finishes a job with an error. Jobs that already reached a terminal
// status are left alone; the returned bool reports whether a row changed.
func (db *DB) MarkJobFailed(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1, stage = $2, progress = 100, error_message = $3, updated_at = now()
		WHERE id = $4 AND status NOT IN ($5, $6)
	`
	res, err := db.ExecContext(ctx, query,
		models.JobStatusFailed, models.JobStageFinished, errorMessage, id,
		models.JobStatusDone, models.JobStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}
	return n > 0, nil
}

// ResetJobForRetry puts a non-terminal job back to the start of the pipeline, keeping
// the last error visible until the next attempt finishes.
func (db *DB) ResetJobForRetry(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1, stage = $2, progress = 0, error_message = $3, updated_at = now()
		WHERE id = $4 AND status NOT IN ($5, $6)
	`
	_, err := db.ExecContext(ctx, query,
		models.JobStatusPending, models.JobStageQueued, errorMessage, id,
		models.JobStatusDone, models.JobStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}
	return nil
}

func (db *DB) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
