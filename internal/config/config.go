package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageSupabase = "supabase"
	StorageCOS      = "cos"

	TranscriberOpenAI = "openai"
	TranscriberGemini = "gemini"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // empty = no auth, dev mode
	CorsAllowedOrigins string // comma-separated, empty = *

	// Database
	DatabaseURL string

	// Redis
	RedisURL       string
	QueueActiveTTL time.Duration

	// Storage
	StorageProvider       string
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	COSBucketURL          string
	COSSecretID           string
	COSSecretKey          string

	// Transcription
	Transcriber        string
	OpenAIKey          string
	OpenAIBaseURL      string
	TranscribeLanguage string
	GeminiKey          string
	GeminiModel        string

	// Media tools
	FFmpegPath         string
	FFprobePath        string
	FFmpegThreads      int
	YtDlpPath          string
	YtDlpCookiesPath   string
	YtDlpUserAgent     string
	PythonPath         string
	FaceAnalyzerScript string
	FaceSampleStride   int
	FontsDir           string
	WorkDir            string

	// Selection
	SilenceNoiseDB float64
	SilenceMinSec  float64

	// Worker
	MaxConcurrentJobs       int
	MaxConcurrentTranscodes int
	ClipParallelism         int
	UploadConcurrency       int
	MaxAttempts             int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		QueueActiveTTL:     getEnvDuration("QUEUE_ACTIVE_TTL", 6*time.Hour),

		StorageProvider:       getEnv("STORAGE_PROVIDER", StorageSupabase),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "clips"),
		COSBucketURL:          getEnv("COS_BUCKET_URL", ""),
		COSSecretID:           getEnv("COS_SECRET_ID", ""),
		COSSecretKey:          getEnv("COS_SECRET_KEY", ""),

		Transcriber:        getEnv("TRANSCRIBER", TranscriberOpenAI),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		TranscribeLanguage: getEnv("TRANSCRIBE_LANGUAGE", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		FFmpegThreads:      getEnvInt("FFMPEG_THREADS", 2),
		YtDlpPath:          getEnv("YTDLP_PATH", "yt-dlp"),
		YtDlpCookiesPath:   getEnv("YTDLP_COOKIES_PATH", ""),
		YtDlpUserAgent:     getEnv("YTDLP_USER_AGENT", ""),
		PythonPath:         getEnv("PYTHON_PATH", "python3"),
		FaceAnalyzerScript: getEnv("FACE_ANALYZER_SCRIPT", ""),
		FaceSampleStride:   getEnvInt("FACE_SAMPLE_STRIDE", 2),
		FontsDir:           getEnv("FONTS_DIR", "assets/fonts"),
		WorkDir:            getEnv("WORK_DIR", "/tmp/clipforge"),

		SilenceNoiseDB: getEnvFloat("SILENCE_NOISE_DB", -35),
		SilenceMinSec:  getEnvFloat("SILENCE_MIN_SEC", 0.5),

		MaxConcurrentJobs:       getEnvInt("MAX_CONCURRENT_JOBS", 2),
		MaxConcurrentTranscodes: getEnvInt("MAX_CONCURRENT_TRANSCODES", 2),
		ClipParallelism:         getEnvInt("CLIP_PARALLELISM", 2),
		UploadConcurrency:       getEnvInt("UPLOAD_CONCURRENCY", 2),
		MaxAttempts:             getEnvInt("MAX_ATTEMPTS", 5),
		RetryBaseDelay:          getEnvDuration("RETRY_BASE_DELAY", 10*time.Second),
		RetryMaxDelay:           getEnvDuration("RETRY_MAX_DELAY", 10*time.Minute),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.StorageProvider {
	case StorageSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
		}
	case StorageCOS:
		if cfg.COSBucketURL == "" || cfg.COSSecretID == "" || cfg.COSSecretKey == "" {
			return nil, fmt.Errorf("COS_BUCKET_URL, COS_SECRET_ID and COS_SECRET_KEY are required")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_PROVIDER %q", cfg.StorageProvider)
	}

	switch cfg.Transcriber {
	case TranscriberOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
	case TranscriberGemini:
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required")
		}
	default:
		return nil, fmt.Errorf("unknown TRANSCRIBER %q", cfg.Transcriber)
	}

	if cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
