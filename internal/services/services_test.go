package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobarin/clipforge/internal/models"
)

func TestParseGeminiTranscript(t *testing.T) {
	raw := "```json\n" + `{"duration": 0, "segments": [
		{"start": 12, "end": 15.5, "text": " second "},
		{"start": 0, "end": 4, "text": "first"},
		{"start": 5, "end": 5, "text": "zero length"},
		{"start": 6, "end": 7, "text": "  "}
	]}` + "\n```"

	tr, err := parseGeminiTranscript(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 valid segments, got %+v", tr.Segments)
	}
	if tr.Segments[0].Text != "first" || tr.Segments[1].Text != "second" {
		t.Fatalf("segments not sorted/trimmed: %+v", tr.Segments)
	}
	if tr.Duration != 15.5 {
		t.Fatalf("duration should fall back to last segment end, got %v", tr.Duration)
	}
}

func TestParseGeminiTranscriptInvalid(t *testing.T) {
	if _, err := parseGeminiTranscript("I could not hear anything"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestYtDlpArgs(t *testing.T) {
	cookies := filepath.Join(t.TempDir(), "cookies.txt")

	y := NewYtDlp("", cookies, "")
	args := strings.Join(y.args("https://youtu.be/x", "/w/out.mp4"), " ")
	if strings.Contains(args, "--cookies") {
		t.Fatalf("missing cookie file must not be passed: %s", args)
	}
	want := "https://youtu.be/x -f " + ytDlpFormat + " --merge-output-format mp4 -o /w/out.mp4 --no-playlist"
	if !strings.HasPrefix(args, want) {
		t.Fatalf("got  %s\nwant prefix %s", args, want)
	}

	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0600); err != nil {
		t.Fatal(err)
	}
	args = strings.Join(y.args("https://youtu.be/x", "/w/out.mp4"), " ")
	if !strings.HasSuffix(args, "--cookies "+cookies) {
		t.Fatalf("expected cookies flag, got %s", args)
	}
}

func TestFaceAnalyzerArgs(t *testing.T) {
	f := NewFaceAnalyzer("", "/app/face.py", 0)
	got := strings.Join(f.args([]string{"a.mp4", "b.mp4"}), " ")
	if got != "/app/face.py --sample-stride 2 --clips a.mp4 b.mp4" {
		t.Fatalf("unexpected args: %s", got)
	}
}

func TestParseFaceAnalysis(t *testing.T) {
	out := []byte(`[
		{"clipPath": "b.mp4", "fps": 30, "duration": 12.5, "faces": [
			{"id": 0, "timeline": [{"t": 0, "x": 0.4, "y": 0.3, "w": 0.2, "h": 0.3, "mouth": 0.05}]}
		]},
		{"clipPath": "a.mp4", "fps": 25, "duration": 0, "faces": [], "error": "cannot open"}
	]`)

	got, err := parseFaceAnalysis(out, []string{"a.mp4", "b.mp4", "c.mp4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected a record per clip, got %d", len(got))
	}
	if got[0].ClipPath != "a.mp4" || got[0].Error != "cannot open" {
		t.Errorf("unexpected first record: %+v", got[0])
	}
	if len(got[1].Faces) != 1 || got[1].Faces[0].Timeline[0].Mouth == nil || *got[1].Faces[0].Timeline[0].Mouth != 0.05 {
		t.Errorf("face track not decoded: %+v", got[1])
	}
	if got[2].ClipPath != "c.mp4" || got[2].Error == "" {
		t.Errorf("missing clip should carry an error: %+v", got[2])
	}

	if _, err := parseFaceAnalysis([]byte("Traceback"), []string{"a.mp4"}); err == nil {
		t.Fatal("expected parse error")
	}
	empty, err := parseFaceAnalysis(nil, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty output should give no records, got %v %v", empty, err)
	}
}

type fakeWords struct {
	words []models.WordTimestamp
	err   error
}

func (f fakeWords) TranscribeWords(context.Context, string) ([]models.WordTimestamp, error) {
	return f.words, f.err
}

func TestCaptionServiceGenerate(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clip-1.ass")

	svc := NewCaptionService(fakeWords{words: []models.WordTimestamp{{Word: "hey", Start: 0, End: 0.4}}})
	if err := svc.Generate(context.Background(), "a.mp3", out, models.CaptionStyleSubtle, models.AspectHorizontal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "PlayResY: 1080") {
		t.Fatalf("horizontal clip should use the landscape canvas")
	}

	silent := NewCaptionService(fakeWords{})
	if err := silent.Generate(context.Background(), "a.mp3", filepath.Join(dir, "none.ass"), models.CaptionStyleKaraoke, models.AspectVertical); !errors.Is(err, ErrNoWords) {
		t.Fatalf("expected ErrNoWords, got %v", err)
	}

	broken := NewCaptionService(fakeWords{err: errors.New("429")})
	if err := broken.Generate(context.Background(), "a.mp3", out, models.CaptionStyleKaraoke, models.AspectVertical); err == nil {
		t.Fatal("expected transcription error")
	}
}
