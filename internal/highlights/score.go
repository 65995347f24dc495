package highlights

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/bobarin/clipforge/internal/models"
)

var (
	reHook = regexp.MustCompile(`(?i)\b(secret|truth|the (?:real )?reason|here'?s (?:why|how)|let me explain|watch this|you (?:need|have) to|this is (?:how|why))\b`)

	reEmotion = regexp.MustCompile(`(?i)\b(crazy|insane|unbelievable|amazing|huge|massive|love|hate|worried|afraid)\b`)
)

const (
	lengthDivisor  = 50.0
	lengthScoreCap = 3.0
	hookBonus      = 4.0
	questionBonus  = 2.0
	emotionBonus   = 2.0
	flatBonus      = 0.5
	positionDecay  = 0.01
)

// ScoreSegment rates one transcript segment. index is the segment's position in the
// transcript; later segments get a slight penalty.
func ScoreSegment(text string, index int) (float64, string) {
	t := strings.TrimSpace(text)

	score := math.Min(float64(len([]rune(t)))/lengthDivisor, lengthScoreCap)
	var reasons []string

	if reHook.MatchString(t) {
		score += hookBonus
		reasons = append(reasons, "hook")
	}
	if strings.Contains(t, "?") {
		score += questionBonus
		reasons = append(reasons, "question")
	}
	if reEmotion.MatchString(t) {
		score += emotionBonus
		reasons = append(reasons, "emotion")
	}

	score += flatBonus
	score -= positionDecay * float64(index)

	if len(reasons) == 0 {
		return score, "dense speech"
	}
	return score, strings.Join(reasons, "+")
}

type scoredSegment struct {
	index  int
	score  float64
	reason string
}

// rank scores every segment and orders them best first. Ties keep transcript order.
func rank(segments []models.TranscriptSegment) []scoredSegment {
	out := make([]scoredSegment, 0, len(segments))
	for i, seg := range segments {
		if seg.End <= seg.Start {
			continue
		}
		score, reason := ScoreSegment(seg.Text, i)
		out = append(out, scoredSegment{index: i, score: score, reason: reason})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].score > out[b].score })
	return out
}
