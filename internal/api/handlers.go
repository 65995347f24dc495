package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/bobarin/clipforge/internal/db"
	"github.com/bobarin/clipforge/internal/models"
	"github.com/bobarin/clipforge/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ErrNotEntitled is returned by Entitlements when an owner may not start another job.
var ErrNotEntitled = errors.New("not entitled to create jobs")

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, ownerID string, status models.JobStatus, limit, offset int) ([]models.Job, error)
	CountJobs(ctx context.Context, ownerID string, status models.JobStatus) (int, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// Entitlements decides whether an owner may create a job with the given params.
type Entitlements interface {
	Allow(ctx context.Context, ownerID string, params models.JobParams) error
}

// AllowAll grants every request.
type AllowAll struct{}

func (AllowAll) Allow(ctx context.Context, ownerID string, params models.JobParams) error {
	return nil
}

type Handler struct {
	store        JobStore
	queue        JobQueue
	entitlements Entitlements
}

func NewHandler(store JobStore, q JobQueue, ent Entitlements) *Handler {
	if ent == nil {
		ent = AllowAll{}
	}
	return &Handler{
		store:        store,
		queue:        q,
		entitlements: ent,
	}
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validSourceURL(req.URL) {
		respondError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	h.createAndEnqueue(w, r, req.OwnerID, models.JobTypeURL, req.URL, req.RawJobParams)
}

// RegisterUpload handles POST /v1/jobs/upload-path
func (h *Handler) RegisterUpload(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := checkUploadPath(req.Path); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	h.createAndEnqueue(w, r, req.OwnerID, models.JobTypeUpload, req.Path, req.RawJobParams)
}

func (h *Handler) createAndEnqueue(w http.ResponseWriter, r *http.Request, ownerID string, jobType models.JobType, source string, raw models.RawJobParams) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	params, err := models.NormalizeParams(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.entitlements.Allow(r.Context(), ownerID, params); err != nil {
		if errors.Is(err, ErrNotEntitled) {
			respondError(w, http.StatusPaymentRequired, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to check entitlements")
		return
	}

	job := &models.Job{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Type:             jobType,
		Source:           source,
		Status:           models.JobStatusPending,
		Stage:            models.JobStageQueued,
		Aspect:           params.Aspect,
		ClipDurationSec:  params.ClipDurationSec,
		MaxClips:         params.MaxClips,
		CaptionsEnabled:  params.CaptionsEnabled,
		CaptionStyle:     params.CaptionStyle,
		JobGoal:          params.JobGoal,
		SummaryTargetSec: params.SummaryTargetSec,
	}
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		log.Printf("[API] Failed to create job: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	enqueued, err := h.queue.Enqueue(r.Context(), job.ID)
	if err != nil {
		log.Printf("[API] Failed to enqueue job %s: %v", job.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateJobResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Enqueued: enqueued,
	})
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - owner_id: required
//   - status:   pending, processing, done or failed
//   - limit:    max results per page (default 20, max 100)
//   - offset:   number of results to skip (default 0)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := q.Get("owner_id")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	status := models.JobStatus(q.Get("status"))
	switch status {
	case "", models.JobStatusPending, models.JobStatusProcessing, models.JobStatusDone, models.JobStatusFailed:
	default:
		respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: pending, processing, done, failed")
		return
	}

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.store.CountJobs(r.Context(), ownerID, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}
	jobs, err := h.store.ListJobs(r.Context(), ownerID, status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// EnqueueJob handles POST /v1/jobs/{id}/enqueue. Enqueueing an admitted job is a no-op.
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status.Terminal() {
		respondError(w, http.StatusConflict, "Job already "+string(job.Status))
		return
	}

	enqueued, err := h.queue.Enqueue(r.Context(), job.ID)
	if err != nil {
		log.Printf("[API] Failed to enqueue job %s: %v", job.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}
	respondJSON(w, http.StatusAccepted, models.EnqueueJobResponse{JobID: job.ID, Enqueued: enqueued})
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return nil, false
	}
	job, err := h.store.GetJob(r.Context(), id)
	if errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return nil, false
	}
	return job, true
}

func validSourceURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func checkUploadPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "path is required"
	}
	key := strings.TrimPrefix(p, worker.StoragePrefix)
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "path must not contain '..'"
		}
	}
	if !videoExtensions[strings.ToLower(path.Ext(key))] {
		return "path must be a video file (.mp4, .mov, .avi, .mkv, .webm)"
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
