package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bobarin/clipforge/internal/models"
	"github.com/bobarin/clipforge/internal/render"
	"github.com/google/uuid"
)

type progressEvent struct {
	stage    models.JobStage
	progress int
}

type fakeStore struct {
	mu      sync.Mutex
	job     *models.Job
	getErr  error
	events  []progressEvent
	clips   []string
	videos  []string
	thumbs  []string
	done    bool
	failMsg string
	resets  int
}

func (s *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	j := *s.job
	return &j, nil
}

func (s *fakeStore) PatchJob(ctx context.Context, id uuid.UUID, patch models.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Status != nil {
		s.job.Status = *patch.Status
	}
	return nil
}

func (s *fakeStore) UpdateJobStage(ctx context.Context, id uuid.UUID, stage models.JobStage, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, progressEvent{stage, progress})
	return nil
}

func (s *fakeStore) SetJobClips(ctx context.Context, id uuid.UUID, clips []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = clips
	return nil
}

func (s *fakeStore) SetJobResults(ctx context.Context, id uuid.UUID, videos, thumbs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos, s.thumbs = videos, thumbs
	return nil
}

func (s *fakeStore) MarkJobDone(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.job.Status = models.JobStatusDone
	s.events = append(s.events, progressEvent{models.JobStageFinished, 100})
	return nil
}

func (s *fakeStore) MarkJobFailed(ctx context.Context, id uuid.UUID, msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Status.Terminal() {
		return false, nil
	}
	s.job.Status = models.JobStatusFailed
	s.failMsg = msg
	s.events = append(s.events, progressEvent{models.JobStageFinished, 100})
	return true, nil
}

func (s *fakeStore) ResetJobForRetry(ctx context.Context, id uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

type fakeMedia struct {
	mu         sync.Mutex
	duration   float64
	probeErr   error
	silences   []models.TimeRange
	silenceErr error
	extractErr map[string]error
	extracted  map[string]models.TimeRange
	concatIn   []string
}

func (m *fakeMedia) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return m.duration, m.probeErr
}

func (m *fakeMedia) ExtractAudio(ctx context.Context, input, output string) error { return nil }

func (m *fakeMedia) ExtractRange(ctx context.Context, input string, r models.TimeRange, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.extractErr[filepath.Base(output)]; err != nil {
		return err
	}
	if m.extracted == nil {
		m.extracted = make(map[string]models.TimeRange)
	}
	m.extracted[filepath.Base(output)] = r
	return nil
}

func (m *fakeMedia) ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concatIn = append([]string(nil), clipPaths...)
	return nil
}

func (m *fakeMedia) DetectSilence(ctx context.Context, input string, noiseDB, minSilenceSec float64) ([]models.TimeRange, error) {
	return m.silences, m.silenceErr
}

type fakeTranscriber struct {
	transcript *models.Transcript
	err        error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*models.Transcript, error) {
	return f.transcript, f.err
}

type fakeDownloader struct{}

func (fakeDownloader) Fetch(ctx context.Context, url, destDir string) (string, error) {
	return filepath.Join(destDir, "source.mp4"), nil
}

type fakeObjects struct {
	keys []string
}

func (f *fakeObjects) DownloadFile(ctx context.Context, objectKey, localPath string) error {
	f.keys = append(f.keys, objectKey)
	return nil
}

type fakeEnergy struct{}

func (fakeEnergy) Analyze(ctx context.Context, audioPath string) ([]models.EnergyFrame, error) {
	return []models.EnergyFrame{{TStart: 0, TEnd: 0.25, Energy: 1}}, nil
}

type fakeCaptions struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCaptions) Generate(ctx context.Context, audioPath, outPath string, style models.CaptionStyle, aspect models.Aspect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakeFaces struct {
	calls int
	paths []string
}

func (f *fakeFaces) Analyze(ctx context.Context, clipPaths []string) ([]models.ClipFaceAnalysis, error) {
	f.calls++
	f.paths = clipPaths
	return nil, errors.New("no detector")
}

type fakeRenderer struct {
	mu   sync.Mutex
	reqs []render.Request
	err  error
}

func (f *fakeRenderer) RenderClip(ctx context.Context, req render.Request) (*render.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return &render.Result{
		VideoPath: filepath.Join(req.OutputDir, fmt.Sprintf("short-%d.mp4", req.Index+1)),
		ThumbPath: filepath.Join(req.OutputDir, fmt.Sprintf("thumb-%d.jpg", req.Index+1)),
	}, nil
}

type fakeUploader struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (f *fakeUploader) UploadFile(ctx context.Context, localPath, objectKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = make(map[string]bool)
	}
	f.keys[objectKey] = true
	return "https://cdn.test/" + objectKey, nil
}

type harness struct {
	workDir     string
	store       *fakeStore
	media       *fakeMedia
	transcriber *fakeTranscriber
	objects     *fakeObjects
	captions    *fakeCaptions
	faces       *fakeFaces
	renderer    *fakeRenderer
	uploader    *fakeUploader
}

func newHarness(t *testing.T, job *models.Job) *harness {
	t.Helper()
	return &harness{
		workDir:     t.TempDir(),
		store:       &fakeStore{job: job},
		media:       &fakeMedia{duration: 120},
		transcriber: &fakeTranscriber{transcript: &models.Transcript{Duration: 120}},
		objects:     &fakeObjects{},
		captions:    &fakeCaptions{},
		faces:       &fakeFaces{},
		renderer:    &fakeRenderer{},
		uploader:    &fakeUploader{},
	}
}

func (h *harness) pipeline() *Pipeline {
	return NewPipeline(Config{WorkDir: h.workDir}, Deps{
		Store:       h.store,
		Downloader:  fakeDownloader{},
		Objects:     h.objects,
		Transcriber: h.transcriber,
		Faces:       h.faces,
		Captions:    h.captions,
		Energy:      fakeEnergy{},
		Media:       h.media,
		Renderer:    h.renderer,
		Uploader:    h.uploader,
	})
}

func testJob(goal models.JobGoal, aspect models.Aspect) *models.Job {
	return &models.Job{
		ID:               uuid.New(),
		OwnerID:          "owner-1",
		Type:             models.JobTypeURL,
		Source:           "https://example.com/watch?v=abc",
		Status:           models.JobStatusPending,
		Stage:            models.JobStageQueued,
		Aspect:           aspect,
		ClipDurationSec:  30,
		MaxClips:         3,
		CaptionsEnabled:  true,
		CaptionStyle:     models.CaptionStyleKaraoke,
		JobGoal:          goal,
		SummaryTargetSec: 60,
	}
}
