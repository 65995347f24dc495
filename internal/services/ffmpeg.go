package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/clipforge/internal/models"
	"github.com/bobarin/clipforge/internal/render"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ---------------------------------------------------------------------------
// FFmpegService
//
// Every encode goes through one weighted semaphore so the number of concurrent
// ffmpeg encoder processes stays bounded no matter how many jobs are running.
// Light invocations (probe, silence scan, PCM decode, thumbnails) skip it.
// ---------------------------------------------------------------------------

const (
	// Silence detection defaults for the loud-segment fallback
	DefaultSilenceNoiseDB = -35.0
	DefaultSilenceMinSec  = 0.5

	// Tail of ffmpeg output kept in error messages
	maxErrOutput = 2000
)

type FFmpegConfig struct {
	TempDir       string
	FFmpegPath    string
	FFprobePath   string
	Threads       int
	MaxConcurrent int64
}

type FFmpegService struct {
	tempDir     string
	ffmpegPath  string
	ffprobePath string
	threads     int
	encodeSem   *semaphore.Weighted
}

func NewFFmpegService(cfg FFmpegConfig) (*FFmpegService, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "clipforge")
	}
	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	return &FFmpegService{
		tempDir:     cfg.TempDir,
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		threads:     cfg.Threads,
		encodeSem:   semaphore.NewWeighted(cfg.MaxConcurrent),
	}, nil
}

// run executes ffmpeg and returns its combined output. Encodes wait for a slot first.
func (s *FFmpegService) run(ctx context.Context, label string, encode bool, args ...string) ([]byte, error) {
	if encode {
		if err := s.encodeSem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("ffmpeg %s: waiting for encoder slot: %w", label, err)
		}
		defer s.encodeSem.Release(1)
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("ffmpeg %s: %w\n%s", label, err, tail(out, maxErrOutput))
	}
	return out, nil
}

// ProbeDuration returns the container duration in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(output)), err)
	}
	return d, nil
}

// ExtractRange cuts [r.Start, r.End) out of input into a standalone clip.
func (s *FFmpegService) ExtractRange(ctx context.Context, input string, r models.TimeRange, output string) error {
	args := []string{
		"-y",
		"-ss", fmtSeconds(r.Start),
		"-i", input,
		"-t", fmtSeconds(r.Duration()),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "128k",
		"-threads", strconv.Itoa(s.threads),
		"-movflags", "+faststart",
		output,
	}

	if _, err := s.run(ctx, "extract range", true, args...); err != nil {
		return err
	}
	return nil
}

// ExtractAudio writes a mono 16kHz 64k mp3 track, small enough for transcription uploads.
func (s *FFmpegService) ExtractAudio(ctx context.Context, input, output string) error {
	args := []string{
		"-y",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "libmp3lame",
		"-b:a", "64k",
		output,
	}

	if _, err := s.run(ctx, "extract audio", false, args...); err != nil {
		return err
	}
	return nil
}

// DecodePCM decodes input to mono signed 16-bit samples at sampleRate.
func (s *FFmpegService) DecodePCM(ctx context.Context, input string, sampleRate int) ([]int16, error) {
	args := []string{
		"-v", "error",
		"-i", input,
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode pcm: %w\n%s", err, tail(stderr.Bytes(), maxErrOutput))
	}

	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}

// DetectSilence runs silencedetect over the audio of input and returns the silent intervals.
func (s *FFmpegService) DetectSilence(ctx context.Context, input string, noiseDB, minSilenceSec float64) ([]models.TimeRange, error) {
	filter := fmt.Sprintf("silencedetect=noise=%sdB:d=%s", fmtSeconds(noiseDB), fmtSeconds(minSilenceSec))
	args := []string{
		"-hide_banner",
		"-nostats",
		"-i", input,
		"-af", filter,
		"-f", "null",
		"-",
	}

	out, err := s.run(ctx, "silencedetect", false, args...)
	if err != nil {
		return nil, err
	}
	return parseSilenceDetect(string(out)), nil
}

var (
	reSilenceStart = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	reSilenceEnd   = regexp.MustCompile(`silence_end:\s*(-?[\d.]+)`)
)

// parseSilenceDetect pairs silence_start/silence_end lines in order. An end without a
// preceding start is a silence from 0; a trailing start without an end is dropped.
func parseSilenceDetect(output string) []models.TimeRange {
	var out []models.TimeRange
	var pending *float64

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if m := reSilenceStart.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if v < 0 {
				v = 0
			}
			pending = &v
			continue
		}
		if m := reSilenceEnd.FindStringSubmatch(line); m != nil {
			end, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			start := 0.0
			if pending != nil {
				start = *pending
			}
			if end > start {
				out = append(out, models.TimeRange{Start: start, End: end})
			}
			pending = nil
		}
	}
	return out
}

// ConcatenateClips joins clips in the given order. Inputs share encoding parameters,
// so streams are copied without re-encoding.
func (s *FFmpegService) ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(filepath.Dir(outputPath), fmt.Sprintf("concat-%s.txt", uuid.NewString()))
	var sb strings.Builder
	for _, p := range clipPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}

	if _, err := s.run(ctx, "concatenate", true, args...); err != nil {
		return err
	}
	return nil
}

// Transcode runs one encode pass with an optional -vf filter chain.
func (s *FFmpegService) Transcode(ctx context.Context, input, filter, output string, enc render.Encoding) error {
	threads := enc.Threads
	if threads <= 0 {
		threads = s.threads
	}

	args := []string{"-y", "-i", input}
	if filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", strconv.Itoa(enc.CRF),
		"-maxrate", enc.MaxRate,
		"-bufsize", enc.BufSize,
		"-c:a", enc.AudioCodec,
		"-b:a", enc.AudioBitrate,
		"-threads", strconv.Itoa(threads),
	)
	if enc.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, output)

	log.Printf("[FFmpeg] Transcoding %s -> %s (filter=%d chars)", filepath.Base(input), filepath.Base(output), len(filter))
	if _, err := s.run(ctx, "transcode", true, args...); err != nil {
		return err
	}
	return nil
}

// ExtractFrame writes a single JPEG frame taken atSec into input.
func (s *FFmpegService) ExtractFrame(ctx context.Context, input string, atSec float64, output string) error {
	args := []string{
		"-y",
		"-ss", fmtSeconds(atSec),
		"-i", input,
		"-vframes", "1",
		"-q:v", "2",
		output,
	}

	if _, err := s.run(ctx, "thumbnail", false, args...); err != nil {
		return err
	}
	return nil
}

// TempDir is the root directory for job workspaces.
func (s *FFmpegService) TempDir() string {
	return s.tempDir
}

func fmtSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// tail keeps the last n bytes of subprocess output, starting on a rune boundary.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return strings.ToValidUTF8(string(b), "")
	}
	start := len(b) - n
	for start < len(b) && !utf8.RuneStart(b[start]) {
		start++
	}
	return "..." + strings.ToValidUTF8(string(b[start:]), "")
}
