package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/clipforge/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIService transcribes audio with Whisper. It serves both the segment
// transcript used for highlight scoring and the word timings used for captions.
type OpenAIService struct {
	client   *openai.Client
	language string
}

func NewOpenAIService(apiKey, baseURL, language string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIService{
		client:   openai.NewClientWithConfig(cfg),
		language: language,
	}
}

// Transcribe returns timed transcript segments for the audio file. An empty transcript
// is not an error; callers treat it as "nothing to score".
func (s *OpenAIService) Transcribe(ctx context.Context, audioPath string) (*models.Transcript, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: s.language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	t := &models.Transcript{Duration: resp.Duration}
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		t.Segments = append(t.Segments, models.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}

	log.Printf("[Whisper] Transcribed %d segments (duration: %.1fs, text: %q)",
		len(t.Segments), resp.Duration, truncateString(resp.Text, 80))

	return t, nil
}

// TranscribeWords returns word-level timestamps for caption timing.
func (s *OpenAIService) TranscribeWords(ctx context.Context, audioPath string) ([]models.WordTimestamp, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: s.language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper word transcription failed: %w", err)
	}

	words := make([]models.WordTimestamp, 0, len(resp.Words))
	for _, w := range resp.Words {
		word := strings.TrimSpace(w.Word)
		if word == "" {
			continue
		}
		words = append(words, models.WordTimestamp{Word: word, Start: w.Start, End: w.End})
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs)", len(words), resp.Duration)
	return words, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
