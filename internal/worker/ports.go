package worker

import (
	"context"
	"time"

	"github.com/bobarin/clipforge/internal/models"
	"github.com/bobarin/clipforge/internal/queue"
	"github.com/bobarin/clipforge/internal/render"
	"github.com/google/uuid"
)

// JobStore is the persistent record of every job. It is the only source of truth for
// job state; nothing is cached between runs.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	PatchJob(ctx context.Context, id uuid.UUID, patch models.JobPatch) error
	UpdateJobStage(ctx context.Context, id uuid.UUID, stage models.JobStage, progress int) error
	SetJobClips(ctx context.Context, id uuid.UUID, clips []string) error
	SetJobResults(ctx context.Context, id uuid.UUID, videos, thumbs []string) error
	MarkJobDone(ctx context.Context, id uuid.UUID) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error)
	ResetJobForRetry(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type Downloader interface {
	Fetch(ctx context.Context, url, destDir string) (string, error)
}

// ObjectFetcher copies a stored object to local disk.
type ObjectFetcher interface {
	DownloadFile(ctx context.Context, objectKey, localPath string) error
}

type Uploader interface {
	UploadFile(ctx context.Context, localPath, objectKey string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*models.Transcript, error)
}

type FaceDetector interface {
	Analyze(ctx context.Context, clipPaths []string) ([]models.ClipFaceAnalysis, error)
}

type CaptionGenerator interface {
	Generate(ctx context.Context, audioPath, outPath string, style models.CaptionStyle, aspect models.Aspect) error
}

type EnergyAnalyzer interface {
	Analyze(ctx context.Context, audioPath string) ([]models.EnergyFrame, error)
}

// Media covers the ffmpeg operations used outside of rendering.
type Media interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractAudio(ctx context.Context, input, output string) error
	ExtractRange(ctx context.Context, input string, r models.TimeRange, output string) error
	ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error
	DetectSilence(ctx context.Context, input string, noiseDB, minSilenceSec float64) ([]models.TimeRange, error)
}

type Renderer interface {
	RenderClip(ctx context.Context, req render.Request) (*render.Result, error)
}

// JobQueue is the dispatch side of the queue.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Message, error)
	Retry(ctx context.Context, msg *queue.Message, delay time.Duration) error
	Complete(ctx context.Context, jobID string) error
}

// Runner processes one job end to end.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
	Fail(ctx context.Context, jobID uuid.UUID, cause error)
	ResetForRetry(ctx context.Context, jobID uuid.UUID, cause error)
}
