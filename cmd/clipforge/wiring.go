package main

import (
	"fmt"
	"log"

	"github.com/bobarin/clipforge/internal/config"
	"github.com/bobarin/clipforge/internal/db"
	"github.com/bobarin/clipforge/internal/energy"
	"github.com/bobarin/clipforge/internal/queue"
	"github.com/bobarin/clipforge/internal/render"
	"github.com/bobarin/clipforge/internal/services"
	"github.com/bobarin/clipforge/internal/storage"
	"github.com/bobarin/clipforge/internal/worker"
)

// objectStore is what the pipeline needs from a storage backend.
type objectStore interface {
	worker.Uploader
	worker.ObjectFetcher
}

var (
	_ objectStore        = (*storage.Storage)(nil)
	_ objectStore        = (*storage.COSStorage)(nil)
	_ worker.Media       = (*services.FFmpegService)(nil)
	_ render.Transcoder  = (*services.FFmpegService)(nil)
	_ worker.Transcriber = (*services.OpenAIService)(nil)
	_ worker.Transcriber = (*services.GeminiTranscriber)(nil)
	_ worker.JobStore    = (*db.DB)(nil)
)

func buildStorage(cfg *config.Config) (objectStore, error) {
	switch cfg.StorageProvider {
	case config.StorageCOS:
		cos, err := storage.NewCOS(cfg.COSBucketURL, cfg.COSSecretID, cfg.COSSecretKey)
		if err != nil {
			return nil, err
		}
		log.Println("Initialized COS storage")
		return cos, nil
	default:
		log.Println("Initialized Supabase storage")
		return storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket), nil
	}
}

func buildTranscriber(cfg *config.Config) worker.Transcriber {
	if cfg.Transcriber == config.TranscriberGemini {
		log.Printf("Transcriber: Gemini (model: %s)", cfg.GeminiModel)
		return services.NewGeminiTranscriber(cfg.GeminiKey, cfg.GeminiModel)
	}
	log.Println("Transcriber: OpenAI Whisper")
	return services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.TranscribeLanguage)
}

func buildWorker(cfg *config.Config, database *db.DB, q *queue.Queue) (*worker.Worker, error) {
	ffmpegSvc, err := services.NewFFmpegService(services.FFmpegConfig{
		TempDir:       cfg.WorkDir,
		FFmpegPath:    cfg.FFmpegPath,
		FFprobePath:   cfg.FFprobePath,
		Threads:       cfg.FFmpegThreads,
		MaxConcurrent: int64(cfg.MaxConcurrentTranscodes),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	store, err := buildStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps := worker.Deps{
		Store:       database,
		Downloader:  services.NewYtDlp(cfg.YtDlpPath, cfg.YtDlpCookiesPath, cfg.YtDlpUserAgent),
		Objects:     store,
		Transcriber: buildTranscriber(cfg),
		Energy:      energy.NewExtractor(ffmpegSvc),
		Media:       ffmpegSvc,
		Renderer: render.NewCompositor(ffmpegSvc, render.Config{
			FontsDir: cfg.FontsDir,
			Encoding: render.DefaultEncoding(cfg.FFmpegThreads),
		}),
		Uploader: store,
	}

	// Word timing for captions always comes from Whisper.
	if cfg.OpenAIKey != "" {
		deps.Captions = services.NewCaptionService(services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.TranscribeLanguage))
	} else {
		log.Println("WARNING: No OPENAI_API_KEY set, clips will render without captions")
	}

	if cfg.FaceAnalyzerScript != "" {
		deps.Faces = services.NewFaceAnalyzer(cfg.PythonPath, cfg.FaceAnalyzerScript, cfg.FaceSampleStride)
		log.Printf("Face tracking enabled (%s)", cfg.FaceAnalyzerScript)
	} else {
		log.Println("Face tracking disabled, vertical clips use a center crop")
	}

	pipeline := worker.NewPipeline(worker.Config{
		WorkDir:           cfg.WorkDir,
		ClipParallelism:   cfg.ClipParallelism,
		UploadConcurrency: cfg.UploadConcurrency,
		SilenceNoiseDB:    cfg.SilenceNoiseDB,
		SilenceMinSec:     cfg.SilenceMinSec,
	}, deps)

	return worker.New(q, pipeline, queue.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}), nil
}
