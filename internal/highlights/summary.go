package highlights

import (
	"math"
	"sort"

	"github.com/bobarin/clipforge/internal/models"
)

// SummaryOptions configure highlight accumulation for a summary reel.
type SummaryOptions struct {
	TargetSec     float64
	SegmentLenSec float64
	MinGapSec     float64
	// Tolerance is the accepted relative distance from TargetSec, e.g. 0.08.
	Tolerance float64
}

func (o SummaryOptions) withDefaults() SummaryOptions {
	if o.SegmentLenSec <= 0 {
		o.SegmentLenSec = 8
	}
	if o.MinGapSec < 0 {
		o.MinGapSec = 0
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 0.08
	}
	return o
}

// SelectSummary accumulates fixed-length highlight windows in score order until their
// total length lands within Tolerance of TargetSec. The result is chronological.
func SelectSummary(segments []models.TranscriptSegment, duration float64, opts SummaryOptions) []models.ClipCandidate {
	if len(segments) == 0 || duration <= 0 || opts.TargetSec <= 0 {
		return nil
	}
	return summaryRanked(segments, rank(segments), duration, opts)
}

func summaryRanked(segments []models.TranscriptSegment, ranked []scoredSegment, duration float64, opts SummaryOptions) []models.ClipCandidate {
	opts = opts.withDefaults()
	lower := opts.TargetSec * (1 - opts.Tolerance)
	upper := opts.TargetSec * (1 + opts.Tolerance)
	length := math.Min(opts.SegmentLenSec, duration)

	var out []models.ClipCandidate
	total := 0.0
	for _, r := range ranked {
		if total >= lower {
			break
		}
		if total+length > upper {
			continue
		}

		seg := segments[r.index]
		mid := (seg.Start + seg.End) / 2
		start, end := clampInto(mid-length/2, mid+length/2, duration)
		cand := models.ClipCandidate{Start: start, End: end, Score: r.score, Reason: r.reason}

		if tooClose(out, cand, opts.MinGapSec) {
			continue
		}
		out = append(out, cand)
		total += cand.Duration()
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Start < out[b].Start })
	return out
}

// tooClose reports whether cand overlaps or sits within minGap of an accepted window.
func tooClose(accepted []models.ClipCandidate, cand models.ClipCandidate, minGap float64) bool {
	for _, c := range accepted {
		gap := math.Max(cand.Start-c.End, c.Start-cand.End)
		if gap < minGap {
			return true
		}
	}
	return false
}

// TotalDuration sums candidate lengths.
func TotalDuration(cands []models.ClipCandidate) float64 {
	total := 0.0
	for _, c := range cands {
		total += c.Duration()
	}
	return total
}
