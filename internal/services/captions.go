package services

import (
	"context"
	"fmt"
	"log"

	"github.com/bobarin/clipforge/internal/models"
)

// WordTranscriber returns word-level timings for an audio file.
type WordTranscriber interface {
	TranscribeWords(ctx context.Context, audioPath string) ([]models.WordTimestamp, error)
}

// CaptionService turns a clip's audio track into a styled ASS caption file.
type CaptionService struct {
	words WordTranscriber
}

func NewCaptionService(words WordTranscriber) *CaptionService {
	return &CaptionService{words: words}
}

// Generate writes captions for audioPath to outPath. ErrNoWords is returned when the
// clip has no speech, in which case no file is written.
func (c *CaptionService) Generate(ctx context.Context, audioPath, outPath string, style models.CaptionStyle, aspect models.Aspect) error {
	words, err := c.words.TranscribeWords(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("caption timing: %w", err)
	}
	if len(words) == 0 {
		return ErrNoWords
	}

	portrait := aspect == models.AspectVertical || aspect == models.AspectVerticalLetterbox
	if err := GenerateASSSubtitles(words, outPath, style, portrait, 0); err != nil {
		return err
	}

	log.Printf("[Captions] Wrote %d words to %s (style=%s portrait=%v)", len(words), outPath, style, portrait)
	return nil
}
