package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bobarin/clipforge/internal/models"
)

// Encoding holds the fixed output encoding parameters.
type Encoding struct {
	VideoCodec   string
	Preset       string
	CRF          int
	MaxRate      string
	BufSize      string
	AudioCodec   string
	AudioBitrate string
	Threads      int
	FastStart    bool
}

func DefaultEncoding(threads int) Encoding {
	if threads <= 0 {
		threads = 1
	}
	return Encoding{
		VideoCodec:   "libx264",
		Preset:       "superfast",
		CRF:          24,
		MaxRate:      "4M",
		BufSize:      "7M",
		AudioCodec:   "aac",
		AudioBitrate: "128k",
		Threads:      threads,
		FastStart:    true,
	}
}

// Transcoder runs the external encoder.
type Transcoder interface {
	Transcode(ctx context.Context, input, filter, output string, enc Encoding) error
	ExtractFrame(ctx context.Context, input string, atSec float64, output string) error
}

type Config struct {
	FontsDir       string
	ThumbnailAtSec float64
	Encoding       Encoding
}

type Compositor struct {
	transcoder Transcoder
	cfg        Config
}

func NewCompositor(transcoder Transcoder, cfg Config) *Compositor {
	if cfg.ThumbnailAtSec <= 0 {
		cfg.ThumbnailAtSec = 2
	}
	if cfg.Encoding.VideoCodec == "" {
		cfg.Encoding = DefaultEncoding(cfg.Encoding.Threads)
	}
	return &Compositor{transcoder: transcoder, cfg: cfg}
}

type Request struct {
	Index           int
	ClipPath        string
	DurationSec     float64
	SubtitlePath    string
	CaptionsEnabled bool
	Aspect          models.Aspect
	Crop            *models.SmartCropBox
	OutputDir       string
}

type Result struct {
	VideoPath string
	ThumbPath string
}

// RenderClip encodes one clip with its filter chain and grabs a thumbnail from the output.
func (c *Compositor) RenderClip(ctx context.Context, req Request) (*Result, error) {
	subs := ""
	if req.CaptionsEnabled && req.SubtitlePath != "" {
		if _, err := os.Stat(req.SubtitlePath); err != nil {
			log.Printf("[Render] Clip %d: subtitle file %s missing, rendering without captions: %v", req.Index, req.SubtitlePath, err)
		} else {
			subs = req.SubtitlePath
		}
	}

	filter := BuildFilterChain(req.Aspect, req.Crop, subs, c.cfg.FontsDir)

	res := &Result{
		VideoPath: filepath.Join(req.OutputDir, fmt.Sprintf("short-%d.mp4", req.Index+1)),
		ThumbPath: filepath.Join(req.OutputDir, fmt.Sprintf("thumb-%d.jpg", req.Index+1)),
	}

	log.Printf("[Render] Clip %d: aspect=%s smartCrop=%v captions=%v", req.Index, req.Aspect, req.Crop != nil, subs != "")
	if err := c.transcoder.Transcode(ctx, req.ClipPath, filter, res.VideoPath, c.cfg.Encoding); err != nil {
		return nil, fmt.Errorf("render clip %d: %w", req.Index, err)
	}

	if err := c.transcoder.ExtractFrame(ctx, res.VideoPath, c.thumbnailAt(req.DurationSec), res.ThumbPath); err != nil {
		return nil, fmt.Errorf("thumbnail clip %d: %w", req.Index, err)
	}

	return res, nil
}

// thumbnailAt keeps the seek inside clips shorter than the configured offset.
func (c *Compositor) thumbnailAt(durationSec float64) float64 {
	if durationSec > 0 && c.cfg.ThumbnailAtSec >= durationSec {
		return durationSec / 2
	}
	return c.cfg.ThumbnailAtSec
}
