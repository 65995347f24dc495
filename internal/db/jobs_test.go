package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bobarin/clipforge/internal/models"
	"github.com/google/uuid"
)

var jobCols = []string{
	"id", "owner_id", "type", "source", "status", "stage", "progress",
	"aspect", "clip_duration_sec", "max_clips", "captions_enabled", "caption_style",
	"job_goal", "summary_target_sec", "clips", "captioned_clips", "captioned_thumbs",
	"error_message", "created_at", "updated_at",
}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{DB: sqlDB}, mock
}

func TestGetJob(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(jobCols).AddRow(
			id.String(), "user-1", "url", "https://youtu.be/x", "done", "finished", 100,
			"vertical", 30, 3, true, "karaoke",
			"shorts", 60, "{/w/clip-1.mp4,/w/clip-2.mp4}", "{https://cdn/short-1.mp4}", "{https://cdn/thumb-1.jpg}",
			nil, now, now,
		))

	job, err := db.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != id || job.Status != models.JobStatusDone || job.Stage != models.JobStageFinished {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Aspect != models.AspectVertical || !job.CaptionsEnabled || job.ErrorMessage != nil {
		t.Fatalf("unexpected params: %+v", job)
	}
	if len(job.Clips) != 2 || job.Clips[1] != "/w/clip-2.mp4" || len(job.CaptionedThumbs) != 1 {
		t.Fatalf("arrays not decoded: %+v", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM jobs").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := db.GetJob(context.Background(), uuid.New())
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestPatchJob(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()
	status := models.JobStatusProcessing
	progress := 25

	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = $1, progress = $2, error_message = NULL, updated_at = now() WHERE id = $3")).
		WithArgs("processing", 25, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.PatchJob(context.Background(), id, models.JobPatch{Status: &status, Progress: &progress, ClearError: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPatchJobEmptyIsNoop(t *testing.T) {
	db, mock := newMock(t)
	if err := db.PatchJob(context.Background(), uuid.New(), models.JobPatch{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateJobStageMissingRow(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("UPDATE jobs SET stage").WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.UpdateJobStage(context.Background(), uuid.New(), models.JobStageScoring, 25)
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSetJobResults(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()
	mock.ExpectExec("SET captioned_clips = \\$1, captioned_thumbs = \\$2").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := db.SetJobResults(context.Background(), id, []string{"a"}, []string{"b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkJobFailedSkipsTerminalJobs(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("status NOT IN").
		WithArgs("failed", "finished", "boom", id.String(), "done", "failed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := db.MarkJobFailed(context.Background(), id, "boom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("terminal job must not be reported as changed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestResetJobForRetry(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("progress = 0").
		WithArgs("pending", "queued", "attempt 1: timeout", id.String(), "done", "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := db.ResetJobForRetry(context.Background(), id, "attempt 1: timeout"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListJobsFiltersByStatus(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()
	msg := "no clips could be extracted from the source"

	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("user-1", "failed", 20, 0).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(a.String(), "user-1", "url", "https://youtu.be/a", "failed", "finished", 100,
				"horizontal", 30, 3, true, "karaoke", "shorts", 60, "{}", "{}", "{}", msg, now, now).
			AddRow(b.String(), "user-1", "upload", "/uploads/b.mp4", "failed", "finished", 100,
				"vertical", 45, 2, false, "subtle", "summary", 90, "{}", "{}", "{}", msg, now, now))

	jobs, err := db.ListJobs(context.Background(), "user-1", models.JobStatusFailed, 20, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != a || jobs[1].JobGoal != models.JobGoalSummary {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if jobs[0].ErrorMessage == nil || *jobs[0].ErrorMessage != msg {
		t.Fatalf("error message not scanned: %+v", jobs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCountJobs(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM jobs WHERE owner_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := db.CountJobs(context.Background(), "user-1", "")
	if err != nil || n != 7 {
		t.Fatalf("CountJobs = %d, %v", n, err)
	}
}
