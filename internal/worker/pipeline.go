package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bobarin/clipforge/internal/db"
	"github.com/bobarin/clipforge/internal/highlights"
	"github.com/bobarin/clipforge/internal/models"
	"github.com/bobarin/clipforge/internal/render"
	"github.com/bobarin/clipforge/internal/services"
	"github.com/bobarin/clipforge/internal/smartcrop"
	"github.com/bobarin/clipforge/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StoragePrefix marks an upload source that lives in object storage rather than on local disk.
const StoragePrefix = "storage://"

const maxErrorMessage = 1000

type Config struct {
	WorkDir           string
	ClipParallelism   int
	UploadConcurrency int
	ShortsPadSec      float64
	SummaryPadSec     float64
	SummarySegmentSec float64
	SummaryMinGapSec  float64
	SilenceNoiseDB    float64
	SilenceMinSec     float64
	SmartCrop         smartcrop.Params
}

func (c Config) withDefaults() Config {
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "clipforge")
	}
	if c.ClipParallelism <= 0 {
		c.ClipParallelism = 2
	}
	if c.UploadConcurrency <= 0 {
		c.UploadConcurrency = 2
	}
	if c.ShortsPadSec <= 0 {
		c.ShortsPadSec = 2.0
	}
	if c.SummaryPadSec <= 0 {
		c.SummaryPadSec = 0.1
	}
	if c.SummarySegmentSec <= 0 {
		c.SummarySegmentSec = 8
	}
	if c.SummaryMinGapSec <= 0 {
		c.SummaryMinGapSec = 1
	}
	if c.SilenceNoiseDB == 0 {
		c.SilenceNoiseDB = services.DefaultSilenceNoiseDB
	}
	if c.SilenceMinSec <= 0 {
		c.SilenceMinSec = services.DefaultSilenceMinSec
	}
	if c.SmartCrop == (smartcrop.Params{}) {
		c.SmartCrop = smartcrop.DefaultParams()
	}
	return c
}

// Deps are the collaborators of a pipeline. Faces and Transcriber may be nil, in which
// case face tracking and transcript scoring are skipped.
type Deps struct {
	Store       JobStore
	Downloader  Downloader
	Objects     ObjectFetcher
	Transcriber Transcriber
	Faces       FaceDetector
	Captions    CaptionGenerator
	Energy      EnergyAnalyzer
	Media       Media
	Renderer    Renderer
	Uploader    Uploader
}

// Pipeline turns one job into rendered, uploaded clips.
type Pipeline struct {
	cfg       Config
	deps      Deps
	uploadSem chan struct{}
}

var _ Runner = (*Pipeline)(nil)

func NewPipeline(cfg Config, deps Deps) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:       cfg,
		deps:      deps,
		uploadSem: make(chan struct{}, cfg.UploadConcurrency),
	}
}

// runState carries the artifacts of one run between stages.
type runState struct {
	job        *models.Job
	params     models.JobParams
	ws         *workspace
	sourcePath string
	duration   float64
	candidates []models.ClipCandidate
	clips      []string
	lengths    []float64
	energy     [][]models.EnergyFrame
	subtitles  []string
	crops      []*models.SmartCropBox
	rendered   []*render.Result
}

type stage struct {
	name     models.JobStage
	progress int
	run      func(context.Context, *runState) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{models.JobStageDownloading, 10, p.fetchSource},
		{models.JobStageScoring, 25, p.scoreCandidates},
		{models.JobStageClipping, 35, p.extractClips},
		{models.JobStageCaptioning, 50, p.analyzeClips},
		{models.JobStageCaptioning, 60, p.planCrops},
		{models.JobStageRendering, 70, p.renderClips},
		{models.JobStageRendering, 90, p.uploadResults},
	}
}

// Run executes every stage for the job. Returned errors are retryable unless IsPermanent.
func (p *Pipeline) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.deps.Store.GetJob(ctx, jobID)
	if errors.Is(err, db.ErrJobNotFound) {
		log.Printf("[Worker] Job %s not found, dropping", jobID)
		return permanent(err)
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.Terminal() {
		log.Printf("[Worker] Job %s already %s, skipping", jobID, job.Status)
		return nil
	}

	processing := models.JobStatusProcessing
	if err := p.deps.Store.PatchJob(ctx, jobID, models.JobPatch{Status: &processing}); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	ws, err := newWorkspace(p.cfg.WorkDir, jobID)
	if err != nil {
		return err
	}
	defer ws.cleanup()

	st := &runState{job: job, params: job.Params(), ws: ws}
	tracker := newProgressTracker(p.deps.Store, jobID)
	start := time.Now()

	for _, s := range p.stages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := tracker.advance(ctx, s.name, s.progress); err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		log.Printf("[Worker] Job %s: %s (%d%%)", jobID, s.name, s.progress)
		if err := s.run(ctx, st); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	if err := p.deps.Store.MarkJobDone(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	log.Printf("[Worker] Job %s done: %d clips in %s", jobID, len(st.rendered), time.Since(start).Round(time.Second))
	return nil
}

// Fail finishes the job as failed unless it already reached a terminal status.
func (p *Pipeline) Fail(ctx context.Context, jobID uuid.UUID, cause error) {
	changed, err := p.deps.Store.MarkJobFailed(ctx, jobID, errorMessage(cause))
	if err != nil {
		log.Printf("[Worker] Job %s: failed to record failure: %v", jobID, err)
		return
	}
	if !changed {
		log.Printf("[Worker] Job %s already terminal, failure not recorded", jobID)
	}
}

// ResetForRetry puts the job back to the start so the next attempt reports from stage one.
func (p *Pipeline) ResetForRetry(ctx context.Context, jobID uuid.UUID, cause error) {
	if err := p.deps.Store.ResetJobForRetry(ctx, jobID, errorMessage(cause)); err != nil {
		log.Printf("[Worker] Job %s: failed to reset for retry: %v", jobID, err)
	}
}

func (p *Pipeline) fetchSource(ctx context.Context, st *runState) error {
	switch st.job.Type {
	case models.JobTypeURL:
		path, err := p.deps.Downloader.Fetch(ctx, st.job.Source, st.ws.dir)
		if err != nil {
			return fmt.Errorf("failed to download source: %w", err)
		}
		st.sourcePath = path

	case models.JobTypeUpload:
		if key, ok := strings.CutPrefix(st.job.Source, StoragePrefix); ok {
			if p.deps.Objects == nil {
				return permanent(fmt.Errorf("no object storage configured for %s", st.job.Source))
			}
			local := st.ws.path("source%s", filepath.Ext(key))
			if err := p.deps.Objects.DownloadFile(ctx, key, local); err != nil {
				return fmt.Errorf("failed to fetch upload: %w", err)
			}
			st.sourcePath = local
			break
		}
		if _, err := os.Stat(st.job.Source); err != nil {
			return permanent(fmt.Errorf("%w: %s", ErrSourceMissing, st.job.Source))
		}
		st.sourcePath = st.job.Source

	default:
		return permanent(fmt.Errorf("unknown job type %q", st.job.Type))
	}
	return nil
}

// scoreCandidates never fails the job; without a transcript the clipping stage falls back.
func (p *Pipeline) scoreCandidates(ctx context.Context, st *runState) error {
	duration, err := p.deps.Media.ProbeDuration(ctx, st.sourcePath)
	if err != nil {
		log.Printf("[Worker] Job %s: probe failed, no candidates: %v", st.job.ID, err)
		return nil
	}
	st.duration = duration

	if p.deps.Transcriber == nil {
		return nil
	}
	audio := st.ws.path("source.mp3")
	if err := p.deps.Media.ExtractAudio(ctx, st.sourcePath, audio); err != nil {
		log.Printf("[Worker] Job %s: audio extraction failed, no candidates: %v", st.job.ID, err)
		return nil
	}
	transcript, err := p.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		log.Printf("[Worker] Job %s: transcription failed, no candidates: %v", st.job.ID, err)
		return nil
	}

	if st.params.JobGoal == models.JobGoalSummary {
		st.candidates = highlights.SelectSummary(transcript.Segments, duration, highlights.SummaryOptions{
			TargetSec:     float64(st.params.SummaryTargetSec),
			SegmentLenSec: p.cfg.SummarySegmentSec,
			MinGapSec:     p.cfg.SummaryMinGapSec,
		})
	} else {
		st.candidates = highlights.Select(transcript.Segments, duration,
			highlights.OptionsForClipDuration(st.params.ClipDurationSec, st.params.MaxClips))
	}
	log.Printf("[Worker] Job %s: %d segments, %d candidates", st.job.ID, len(transcript.Segments), len(st.candidates))
	return nil
}

func (p *Pipeline) extractClips(ctx context.Context, st *runState) error {
	pad := p.cfg.ShortsPadSec
	if st.params.JobGoal == models.JobGoalSummary {
		pad = p.cfg.SummaryPadSec
	}

	var ranges []models.TimeRange
	if len(st.candidates) > 0 {
		ranges = highlights.PadRanges(st.candidates, pad, st.duration)
	} else {
		ranges = highlights.PadRanges(p.fallbackCandidates(ctx, st), 0, st.duration)
	}

	clips, lengths, err := p.cutRanges(ctx, st, ranges)
	if err != nil {
		return err
	}
	if st.params.JobGoal == models.JobGoalSummary && len(clips) > 1 {
		reel := st.ws.path("summary.mp4")
		if err := p.deps.Media.ConcatenateClips(ctx, clips, reel); err != nil {
			return fmt.Errorf("failed to build summary: %w", err)
		}
		total := 0.0
		for _, l := range lengths {
			total += l
		}
		clips, lengths = []string{reel}, []float64{total}
	}
	if len(clips) == 0 {
		return permanent(ErrNoClips)
	}

	st.clips = clips
	st.lengths = lengths
	if err := p.deps.Store.SetJobClips(ctx, st.job.ID, clips); err != nil {
		return fmt.Errorf("failed to save clips: %w", err)
	}
	return nil
}

// fallbackCandidates cuts windows around loud stretches, or evenly spaced windows when
// the audio yields none.
func (p *Pipeline) fallbackCandidates(ctx context.Context, st *runState) []models.ClipCandidate {
	if st.duration <= 0 {
		d, err := p.deps.Media.ProbeDuration(ctx, st.sourcePath)
		if err != nil {
			log.Printf("[Worker] Job %s: source unreadable: %v", st.job.ID, err)
			return nil
		}
		st.duration = d
	}

	clipSec := float64(st.params.ClipDurationSec)
	silences, err := p.deps.Media.DetectSilence(ctx, st.sourcePath, p.cfg.SilenceNoiseDB, p.cfg.SilenceMinSec)
	if err == nil {
		loud := highlights.LoudSegments(silences, st.duration)
		if windows := highlights.LoudWindows(loud, clipSec, st.params.MaxClips); len(windows) > 0 {
			log.Printf("[Worker] Job %s: using %d loud windows", st.job.ID, len(windows))
			return windows
		}
	} else {
		log.Printf("[Worker] Job %s: silence detection failed: %v", st.job.ID, err)
	}

	windows := highlights.EvenWindows(st.duration, clipSec, st.params.MaxClips)
	log.Printf("[Worker] Job %s: using %d evenly spaced windows", st.job.ID, len(windows))
	return windows
}

// cutRanges extracts each range; ranges that fail to extract are skipped. When every
// range fails the first extraction error is returned so the queue retries the job.
func (p *Pipeline) cutRanges(ctx context.Context, st *runState, ranges []models.TimeRange) ([]string, []float64, error) {
	out := make([]string, len(ranges))
	errs := make([]error, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ClipParallelism)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			path := st.ws.path("clip-%d.mp4", i)
			if err := p.deps.Media.ExtractRange(gctx, st.sourcePath, r, path); err != nil {
				log.Printf("[Worker] Clip %d: extract %.2f-%.2f failed: %v", i, r.Start, r.End, err)
				errs[i] = err
				return nil
			}
			out[i] = path
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var clips []string
	var lengths []float64
	for i, c := range out {
		if c != "" {
			clips = append(clips, c)
			lengths = append(lengths, ranges[i].End-ranges[i].Start)
		}
	}
	if len(clips) == 0 && len(ranges) > 0 {
		return nil, nil, fmt.Errorf("failed to extract any of %d clips: %w", len(ranges), errs[0])
	}
	return clips, lengths, nil
}

// analyzeClips derives per-clip audio energy and captions. Failures leave nil entries.
func (p *Pipeline) analyzeClips(ctx context.Context, st *runState) error {
	st.energy = make([][]models.EnergyFrame, len(st.clips))
	st.subtitles = make([]string, len(st.clips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ClipParallelism)
	for i, clip := range st.clips {
		i, clip := i, clip
		g.Go(func() error {
			audio := st.ws.path("clip-%d.mp3", i)
			if err := p.deps.Media.ExtractAudio(gctx, clip, audio); err != nil {
				log.Printf("[Worker] Clip %d: audio extraction failed: %v", i, err)
				return nil
			}

			if frames, err := p.deps.Energy.Analyze(gctx, audio); err != nil {
				log.Printf("[Worker] Clip %d: energy analysis failed: %v", i, err)
			} else {
				st.energy[i] = frames
			}

			if !st.params.CaptionsEnabled || p.deps.Captions == nil {
				return nil
			}
			subs := st.ws.path("clip-%d.ass", i)
			err := p.deps.Captions.Generate(gctx, audio, subs, st.params.CaptionStyle, st.params.Aspect)
			switch {
			case errors.Is(err, services.ErrNoWords):
				log.Printf("[Worker] Clip %d: no speech, rendering without captions", i)
			case err != nil:
				log.Printf("[Worker] Clip %d: caption generation failed: %v", i, err)
			default:
				st.subtitles[i] = subs
			}
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

// planCrops runs face tracking for vertical output only. Any failure means a center crop.
func (p *Pipeline) planCrops(ctx context.Context, st *runState) error {
	st.crops = make([]*models.SmartCropBox, len(st.clips))
	if st.params.Aspect != models.AspectVertical || p.deps.Faces == nil {
		return nil
	}

	analyses, err := p.deps.Faces.Analyze(ctx, st.clips)
	if err != nil {
		log.Printf("[Worker] Job %s: face analysis failed, using center crop: %v", st.job.ID, err)
		return nil
	}
	for i, a := range analyses {
		if i >= len(st.crops) {
			break
		}
		if a.Error != "" {
			log.Printf("[Worker] Clip %d: face analysis error: %s", i, a.Error)
			continue
		}
		st.crops[i] = smartcrop.AnalyzeClip(a, st.energy[i], p.cfg.SmartCrop)
	}
	return nil
}

func (p *Pipeline) renderClips(ctx context.Context, st *runState) error {
	st.rendered = make([]*render.Result, len(st.clips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ClipParallelism)
	for i, clip := range st.clips {
		i, clip := i, clip
		g.Go(func() error {
			res, err := p.deps.Renderer.RenderClip(gctx, render.Request{
				Index:           i,
				ClipPath:        clip,
				DurationSec:     st.lengths[i],
				SubtitlePath:    st.subtitles[i],
				CaptionsEnabled: st.params.CaptionsEnabled,
				Aspect:          st.params.Aspect,
				Crop:            st.crops[i],
				OutputDir:       st.ws.dir,
			})
			if err != nil {
				return fmt.Errorf("clip %d: %w", i, err)
			}
			st.rendered[i] = res
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) uploadResults(ctx context.Context, st *runState) error {
	videos := make([]string, len(st.rendered))
	thumbs := make([]string, len(st.rendered))
	jobID := st.job.ID.String()

	g, gctx := errgroup.WithContext(ctx)
	for i, res := range st.rendered {
		i, res := i, res
		g.Go(func() error {
			videoKey := storage.ObjectKey(jobID, fmt.Sprintf("short-%d.mp4", i+1))
			url, err := p.uploadWithLimit(gctx, videoKey, func() (string, error) {
				return p.deps.Uploader.UploadFile(gctx, res.VideoPath, videoKey)
			})
			if err != nil {
				return fmt.Errorf("failed to upload clip %d: %w", i, err)
			}
			videos[i] = url

			thumbKey := storage.ObjectKey(jobID, fmt.Sprintf("thumb-%d.jpg", i+1))
			url, err = p.uploadWithLimit(gctx, thumbKey, func() (string, error) {
				return p.deps.Uploader.UploadFile(gctx, res.ThumbPath, thumbKey)
			})
			if err != nil {
				return fmt.Errorf("failed to upload thumbnail %d: %w", i, err)
			}
			thumbs[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := p.deps.Store.SetJobResults(ctx, st.job.ID, videos, thumbs); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	return nil
}

// uploadWithLimit wraps an upload call with the shared upload semaphore.
func (p *Pipeline) uploadWithLimit(ctx context.Context, label string, fn func() (string, error)) (string, error) {
	select {
	case p.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-p.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if len(msg) > maxErrorMessage {
		cut := maxErrorMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return strings.ToValidUTF8(msg, "")
}
