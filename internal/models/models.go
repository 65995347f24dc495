package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums
type JobType string

const (
	JobTypeUpload JobType = "upload"
	JobTypeURL    JobType = "url"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

type JobStage string

const (
	JobStageQueued      JobStage = "queued"
	JobStageDownloading JobStage = "downloading"
	JobStageScoring     JobStage = "scoring"
	JobStageClipping    JobStage = "clipping"
	JobStageCaptioning  JobStage = "captioning"
	JobStageRendering   JobStage = "rendering"
	JobStageFinished    JobStage = "finished"
)

var stageOrder = []JobStage{
	JobStageQueued,
	JobStageDownloading,
	JobStageScoring,
	JobStageClipping,
	JobStageCaptioning,
	JobStageRendering,
	JobStageFinished,
}

// Index returns the position of the stage in the pipeline, or -1 for unknown stages.
func (s JobStage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanAdvance reports whether moving from s to next keeps the stage order forward-only.
// Staying on the same stage is allowed so progress can move within it.
func (s JobStage) CanAdvance(next JobStage) bool {
	from, to := s.Index(), next.Index()
	return from >= 0 && to >= from
}

type Aspect string

const (
	AspectHorizontal        Aspect = "horizontal"
	AspectVertical          Aspect = "vertical"
	AspectVerticalLetterbox Aspect = "verticalLetterbox"
)

type CaptionStyle string

const (
	CaptionStyleKaraoke    CaptionStyle = "karaoke"
	CaptionStyleBoldYellow CaptionStyle = "boldYellow"
	CaptionStyleSubtle     CaptionStyle = "subtle"
)

type JobGoal string

const (
	JobGoalShorts  JobGoal = "shorts"
	JobGoalSummary JobGoal = "summary"
)

// Models

type Job struct {
	ID               uuid.UUID    `json:"id"`
	OwnerID          string       `json:"owner_id"`
	Type             JobType      `json:"type"`
	Source           string       `json:"source"`
	Status           JobStatus    `json:"status"`
	Stage            JobStage     `json:"stage"`
	Progress         int          `json:"progress"`
	Aspect           Aspect       `json:"aspect"`
	ClipDurationSec  int          `json:"clip_duration_sec"`
	MaxClips         int          `json:"max_clips"`
	CaptionsEnabled  bool         `json:"captions_enabled"`
	CaptionStyle     CaptionStyle `json:"caption_style"`
	JobGoal          JobGoal      `json:"job_goal"`
	SummaryTargetSec int          `json:"summary_target_sec"`
	Clips            []string     `json:"clips"`
	CaptionedClips   []string     `json:"captioned_clips"`
	CaptionedThumbs  []string     `json:"captioned_thumbs"`
	ErrorMessage     *string      `json:"error_message,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Params returns the processing parameters stored on the job.
func (j *Job) Params() JobParams {
	return JobParams{
		Aspect:           j.Aspect,
		ClipDurationSec:  j.ClipDurationSec,
		MaxClips:         j.MaxClips,
		CaptionsEnabled:  j.CaptionsEnabled,
		CaptionStyle:     j.CaptionStyle,
		JobGoal:          j.JobGoal,
		SummaryTargetSec: j.SummaryTargetSec,
	}
}

// JobPatch is a whole-field patch applied to a job row. Nil fields are left untouched.
type JobPatch struct {
	Status       *JobStatus
	Stage        *JobStage
	Progress     *int
	ErrorMessage *string
	ClearError   bool
}

// ClipCandidate is a scored time range over the source timeline.
type ClipCandidate struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (c ClipCandidate) Duration() float64 { return c.End - c.Start }

type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r TimeRange) Duration() float64 { return r.End - r.Start }

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
	Duration float64             `json:"duration"`
}

// WordTimestamp represents a single word with timing, used for caption timing.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// FaceTimelinePoint is one sampled face box in frame-normalized coordinates.
type FaceTimelinePoint struct {
	T     float64  `json:"t"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	W     float64  `json:"w"`
	H     float64  `json:"h"`
	Mouth *float64 `json:"mouth,omitempty"`
}

type FaceTrack struct {
	ID       int                 `json:"id"`
	Timeline []FaceTimelinePoint `json:"timeline"`
}

// ClipFaceAnalysis is the per-clip record emitted by the face analyzer.
type ClipFaceAnalysis struct {
	ClipPath string      `json:"clipPath"`
	FPS      float64     `json:"fps"`
	Duration float64     `json:"duration"`
	Faces    []FaceTrack `json:"faces"`
	Error    string      `json:"error,omitempty"`
}

type EnergyFrame struct {
	TStart float64 `json:"tStart"`
	TEnd   float64 `json:"tEnd"`
	Energy float64 `json:"energy"`
}

type SmartCropSegment struct {
	TStart      float64 `json:"tStart"`
	TEnd        float64 `json:"tEnd"`
	CenterXNorm float64 `json:"centerXNorm"`
	HasFace     bool    `json:"hasFace"`
}

// SmartCropBox is the pan path for one clip. A nil box means a fixed center crop.
type SmartCropBox struct {
	Segments []SmartCropSegment `json:"segments"`
}

// DTOs for API requests/responses

type CreateJobRequest struct {
	OwnerID string `json:"owner_id"`
	URL     string `json:"url"`
	RawJobParams
}

type RegisterUploadRequest struct {
	OwnerID string `json:"owner_id"`
	Path    string `json:"path"`
	RawJobParams
}

type CreateJobResponse struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   JobStatus `json:"status"`
	Enqueued bool      `json:"enqueued"`
}

type ListJobsResponse struct {
	Jobs   []Job `json:"jobs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type EnqueueJobResponse struct {
	JobID    uuid.UUID `json:"job_id"`
	Enqueued bool      `json:"enqueued"`
}
