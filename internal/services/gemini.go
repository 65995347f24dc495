package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/bobarin/clipforge/internal/models"
	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Transcriber
// Alternative to Whisper for the scoring transcript. Gemini is asked for a
// strict JSON document of timed segments which is then validated locally.
// ---------------------------------------------------------------------------

const (
	defaultGeminiModel = "gemini-2.5-flash"

	// Larger audio goes through the Files API instead of inline bytes
	geminiInlineLimit = 18 << 20
)

const geminiTranscribePrompt = `Transcribe the speech in this audio.
Return ONLY a JSON object of the form:
{"duration": <total seconds>, "segments": [{"start": <seconds>, "end": <seconds>, "text": "<spoken text>"}]}
Segments must be in chronological order, one sentence or phrase each, with timestamps in seconds
measured from the beginning of the audio. Return {"duration": 0, "segments": []} if nothing is spoken.`

type GeminiTranscriber struct {
	apiKey string
	model  string
}

func NewGeminiTranscriber(apiKey, model string) *GeminiTranscriber {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiTranscriber{apiKey: apiKey, model: model}
}

func (g *GeminiTranscriber) Transcribe(ctx context.Context, audioPath string) (*models.Transcript, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	audioPart, err := g.audioPart(ctx, client, audioPath)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			audioPart,
			genai.NewPartFromText(geminiTranscribePrompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini transcription failed: %w", err)
	}

	raw := resp.Text()
	t, err := parseGeminiTranscript(raw)
	if err != nil {
		log.Printf("[Gemini] raw response: %s", truncateString(raw, 2000))
		return nil, err
	}

	log.Printf("[Gemini] Transcribed %d segments (duration: %.1fs, model=%s)", len(t.Segments), t.Duration, g.model)
	return t, nil
}

func (g *GeminiTranscriber) audioPart(ctx context.Context, client *genai.Client, audioPath string) (*genai.Part, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}

	if info.Size() > geminiInlineLimit {
		f, err := client.Files.UploadFromPath(ctx, audioPath, &genai.UploadFileConfig{MIMEType: "audio/mpeg"})
		if err != nil {
			return nil, fmt.Errorf("gemini file upload failed: %w", err)
		}
		return genai.NewPartFromURI(f.URI, f.MIMEType), nil
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return genai.NewPartFromBytes(data, "audio/mpeg"), nil
}

type geminiTranscript struct {
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// parseGeminiTranscript decodes the model output, tolerating a markdown code fence.
// Invalid segments are dropped and the rest sorted by start.
func parseGeminiTranscript(raw string) (*models.Transcript, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var gt geminiTranscript
	if err := json.Unmarshal([]byte(raw), &gt); err != nil {
		return nil, fmt.Errorf("failed to parse gemini transcript: %w", err)
	}

	t := &models.Transcript{Duration: gt.Duration}
	for _, s := range gt.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.Start < 0 || s.End <= s.Start {
			continue
		}
		t.Segments = append(t.Segments, models.TranscriptSegment{Start: s.Start, End: s.End, Text: text})
	}
	sort.SliceStable(t.Segments, func(i, j int) bool { return t.Segments[i].Start < t.Segments[j].Start })

	if t.Duration <= 0 && len(t.Segments) > 0 {
		t.Duration = t.Segments[len(t.Segments)-1].End
	}
	return t, nil
}
