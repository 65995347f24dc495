package highlights

import (
	"math"
	"sort"

	"github.com/bobarin/clipforge/internal/models"
)

// MinRangeSec is the shortest range worth extracting.
const MinRangeSec = 0.6

// LoudSegments returns the complement of the silence intervals within [0,duration].
func LoudSegments(silences []models.TimeRange, duration float64) []models.TimeRange {
	if duration <= 0 {
		return nil
	}

	sorted := make([]models.TimeRange, len(silences))
	copy(sorted, silences)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []models.TimeRange
	cursor := 0.0
	for _, s := range sorted {
		start := math.Max(0, s.Start)
		if start > cursor+epsilon {
			out = append(out, models.TimeRange{Start: cursor, End: math.Min(start, duration)})
		}
		cursor = math.Max(cursor, s.End)
		if cursor >= duration {
			break
		}
	}
	if cursor < duration-epsilon {
		out = append(out, models.TimeRange{Start: cursor, End: duration})
	}
	return out
}

// LoudWindows picks up to maxClips windows of clipSec, longest loud segment first,
// each centered within its segment. Segments shorter than clipSec are ignored.
func LoudWindows(loud []models.TimeRange, clipSec float64, maxClips int) []models.ClipCandidate {
	if clipSec <= 0 || maxClips <= 0 {
		return nil
	}

	sorted := make([]models.TimeRange, len(loud))
	copy(sorted, loud)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Duration() > sorted[j].Duration() })

	var out []models.ClipCandidate
	for _, seg := range sorted {
		if len(out) >= maxClips {
			break
		}
		if seg.Duration() < clipSec {
			continue
		}
		center := (seg.Start + seg.End) / 2
		start := math.Max(seg.Start, center-clipSec/2)
		end := math.Min(seg.End, start+clipSec)
		out = append(out, models.ClipCandidate{Start: start, End: end, Score: seg.Duration(), Reason: "loud segment"})
	}
	return out
}

// EvenWindows spaces maxClips fixed-length windows evenly over the source.
func EvenWindows(duration, clipSec float64, maxClips int) []models.ClipCandidate {
	if duration <= 0 || clipSec <= 0 || maxClips <= 0 {
		return nil
	}

	step := duration / float64(maxClips+1)
	var out []models.ClipCandidate
	for i := 0; i < maxClips; i++ {
		start := math.Max(0, step*float64(i+1)-clipSec/2)
		end := math.Min(duration, start+clipSec)
		if end-start < MinRangeSec {
			continue
		}
		out = append(out, models.ClipCandidate{Start: start, End: end, Reason: "evenly spaced"})
	}
	return out
}

// PadRanges widens candidates by pad seconds, clamps them to the source and returns
// them in chronological order. Overlap with the previous range is trimmed away and
// anything shorter than MinRangeSec is skipped. A non-positive duration disables
// the upper clamp.
func PadRanges(cands []models.ClipCandidate, pad, duration float64) []models.TimeRange {
	sorted := make([]models.ClipCandidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []models.TimeRange
	for _, c := range sorted {
		start := math.Max(0, c.Start-pad)
		end := c.End + pad
		if duration > 0 {
			end = math.Min(duration, end)
		}
		if n := len(out); n > 0 && start < out[n-1].End {
			start = out[n-1].End
		}
		if end-start < MinRangeSec {
			continue
		}
		out = append(out, models.TimeRange{Start: start, End: end})
	}
	return out
}
