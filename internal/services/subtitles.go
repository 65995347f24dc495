package services

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bobarin/clipforge/internal/models"
)

// ---------------------------------------------------------------------------
// ASS Caption Writer
//
// Words are shown in small chunks. Each word gets its own dialogue line that
// redraws the whole chunk, so styles that emphasise the active word can change
// it per line. The canvas matches the rendered frame: 1080x1920 for vertical
// outputs and 1920x1080 for horizontal ones. libass scales to the real size.
// ---------------------------------------------------------------------------

const (
	wordsPerChunk = 4

	// Must match a font installed next to ffmpeg (see FONTS_DIR)
	subtitleFontName = "Noto Sans"

	// ASS colors are &HAABBGGRR
	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorPurple    = "&H00CC3299"
	assColorYellow    = "&H0000E5FF"
	assColorSemiBlack = "&H80000000"
)

var ErrNoWords = errors.New("no words to generate captions from")

// captionLook is one resolved caption style on a given canvas.
type captionLook struct {
	playResX, playResY int
	fontSize           int
	primary            string
	outline            string
	bold               bool
	outlineWidth       int
	shadow             int
	marginV            int
	uppercase          bool
	highlight          bool // per-word pill on the spoken word
	highlightOutline   int
}

func lookFor(style models.CaptionStyle, portrait bool) captionLook {
	l := captionLook{playResX: 1920, playResY: 1080}
	if portrait {
		l.playResX, l.playResY = 1080, 1920
	}
	// Sizes are tuned on the portrait canvas and scaled by height otherwise
	scale := func(v int) int { return v * l.playResY / 1920 }

	switch style {
	case models.CaptionStyleBoldYellow:
		l.fontSize = scale(78)
		l.primary = assColorYellow
		l.outline = assColorBlack
		l.bold = true
		l.outlineWidth = scale(5)
		l.shadow = scale(2)
		l.marginV = scale(260)
		l.uppercase = true
	case models.CaptionStyleSubtle:
		l.fontSize = scale(52)
		l.primary = assColorWhite
		l.outline = assColorSemiBlack
		l.outlineWidth = scale(2)
		l.marginV = scale(140)
	default:
		l.fontSize = scale(62)
		l.primary = assColorWhite
		l.outline = assColorBlack
		l.bold = true
		l.outlineWidth = scale(3)
		l.marginV = scale(220)
		l.uppercase = true
		l.highlight = true
		l.highlightOutline = scale(8)
	}
	if l.outlineWidth < 1 {
		l.outlineWidth = 1
	}
	return l
}

// GenerateASSSubtitles writes an ASS caption file for the given words. offsetSec is added
// to every timestamp.
func GenerateASSSubtitles(words []models.WordTimestamp, outputPath string, style models.CaptionStyle, portrait bool, offsetSec float64) error {
	if len(words) == 0 {
		return ErrNoWords
	}

	content := buildASS(words, lookFor(style, portrait), offsetSec)
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}
	return nil
}

func buildASS(words []models.WordTimestamp, look captionLook, offsetSec float64) string {
	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", look.playResX)
	fmt.Fprintf(&sb, "PlayResY: %d\n", look.playResY)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	bold := 0
	if look.bold {
		bold = -1
	}
	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb,
		"Style: Default,%s,%d,%s,%s,%s,%s,%d,0,0,0,100,100,1,0,1,%d,%d,2,40,40,%d,1\n\n",
		subtitleFontName, look.fontSize,
		look.primary, look.primary, look.outline, assColorSemiBlack,
		bold, look.outlineWidth, look.shadow, look.marginV,
	)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, chunk := range chunkWords(words, wordsPerChunk) {
		if !look.highlight {
			// Whole chunk on screen from its first word to its last
			fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(chunk[0].Start+offsetSec),
				formatASSTime(chunk[len(chunk)-1].End+offsetSec),
				chunkText(chunk, -1, look),
			)
			continue
		}

		for i, w := range chunk {
			end := w.End
			if i < len(chunk)-1 {
				end = chunk[i+1].Start
			}
			fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(w.Start+offsetSec),
				formatASSTime(end+offsetSec),
				chunkText(chunk, i, look),
			)
		}
	}

	return sb.String()
}

// chunkWords groups words into chunks of at most chunkSize, breaking early at sentence ends.
func chunkWords(words []models.WordTimestamp, chunkSize int) [][]models.WordTimestamp {
	var chunks [][]models.WordTimestamp
	var current []models.WordTimestamp

	for _, w := range words {
		if strings.TrimSpace(w.Word) == "" {
			continue
		}
		current = append(current, w)

		sentenceEnd := strings.ContainsAny(w.Word, ".!?")
		if len(current) >= chunkSize || (sentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// chunkText renders a chunk with the word at activeIdx highlighted. activeIdx -1 disables it.
//
// Example: "THE {\3c&H00CC3299\bord8}HISTORY{\r} OF COFFEE"
func chunkText(chunk []models.WordTimestamp, activeIdx int, look captionLook) string {
	parts := make([]string, 0, len(chunk))
	for i, w := range chunk {
		text := escapeASSText(strings.TrimSpace(w.Word))
		if look.uppercase {
			text = strings.ToUpper(text)
		}
		if i == activeIdx {
			text = fmt.Sprintf("{\\3c%s\\bord%d}%s{\\r}", assColorPurple, look.highlightOutline, text)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// escapeASSText keeps transcript text from opening override blocks.
func escapeASSText(s string) string {
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// formatASSTime converts seconds to H:MM:SS.CC
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	cs := int(seconds*100 + 0.5)
	hours := cs / 360000
	minutes := (cs % 360000) / 6000
	secs := (cs % 6000) / 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, cs%100)
}
