package services

import (
	"testing"
	"unicode/utf8"

	"github.com/bobarin/clipforge/internal/models"
)

func TestParseSilenceDetect(t *testing.T) {
	output := `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':
[silencedetect @ 0x7f9] silence_end: 1.25 | silence_duration: 1.25
[silencedetect @ 0x7f9] silence_start: 10.5
[silencedetect @ 0x7f9] silence_end: 12.75 | silence_duration: 2.25
garbage line
[silencedetect @ 0x7f9] silence_start: -0.01
[silencedetect @ 0x7f9] silence_end: 0.8 | silence_duration: 0.81
[silencedetect @ 0x7f9] silence_start: 58.2
size=N/A time=00:01:00.00 bitrate=N/A speed= 512x`

	got := parseSilenceDetect(output)
	want := []models.TimeRange{
		{Start: 0, End: 1.25},
		{Start: 10.5, End: 12.75},
		{Start: 0, End: 0.8},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseSilenceDetectNoMatches(t *testing.T) {
	if got := parseSilenceDetect("no silence here"); len(got) != 0 {
		t.Fatalf("expected no ranges, got %+v", got)
	}
}

func TestFmtSeconds(t *testing.T) {
	tests := map[float64]string{
		0:      "0.000",
		1.5:    "1.500",
		-35:    "-35.000",
		12.345: "12.345",
	}
	for in, want := range tests {
		if got := fmtSeconds(in); got != want {
			t.Errorf("fmtSeconds(%v)=%q want %q", in, got, want)
		}
	}
}

func TestTail(t *testing.T) {
	if got := tail([]byte("abcdef"), 10); got != "abcdef" {
		t.Errorf("unexpected %q", got)
	}
	if got := tail([]byte("abcdef"), 3); got != "...def" {
		t.Errorf("unexpected %q", got)
	}
}

func TestTailKeepsRunesWhole(t *testing.T) {
	out := []byte("Metadata: title=café")
	if got := tail(out, 1); got != "..." {
		t.Errorf("split rune should be dropped, got %q", got)
	}
	if got := tail(out, 2); got != "...é" {
		t.Errorf("unexpected %q", got)
	}
	if got := tail([]byte{'o', 'k', 0xff}, 10); !utf8.ValidString(got) || got != "ok" {
		t.Errorf("invalid bytes should be dropped, got %q", got)
	}
}
