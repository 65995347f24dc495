package highlights

import (
	"math"

	"github.com/bobarin/clipforge/internal/models"
)

const epsilon = 1e-6

// Options bound the candidate windows produced by Select.
type Options struct {
	MaxClips          int
	MinDurationSec    float64
	MaxDurationSec    float64
	TargetDurationSec float64
	MaxIoU            float64
}

func DefaultOptions() Options {
	return Options{
		MaxClips:          5,
		MinDurationSec:    20,
		MaxDurationSec:    30,
		TargetDurationSec: 25,
		MaxIoU:            0.4,
	}
}

// OptionsForClipDuration derives window bounds around the requested clip length.
func OptionsForClipDuration(clipSec, maxClips int) Options {
	d := float64(clipSec)
	return Options{
		MaxClips:          maxClips,
		MinDurationSec:    math.Max(10, d-5),
		MaxDurationSec:    d + 10,
		TargetDurationSec: d,
		MaxIoU:            0.4,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxClips <= 0 {
		o.MaxClips = def.MaxClips
	}
	if o.MinDurationSec <= 0 {
		o.MinDurationSec = def.MinDurationSec
	}
	if o.MaxDurationSec <= 0 {
		o.MaxDurationSec = def.MaxDurationSec
	}
	if o.MaxDurationSec < o.MinDurationSec {
		o.MaxDurationSec = o.MinDurationSec
	}
	if o.TargetDurationSec <= 0 {
		o.TargetDurationSec = (o.MinDurationSec + o.MaxDurationSec) / 2
	}
	if o.MaxIoU <= 0 {
		o.MaxIoU = def.MaxIoU
	}
	return o
}

// Select picks up to MaxClips non-duplicated windows around the best scoring segments.
// Candidates are returned in score order.
func Select(segments []models.TranscriptSegment, duration float64, opts Options) []models.ClipCandidate {
	if len(segments) == 0 || duration <= 0 {
		return nil
	}
	return selectRanked(segments, rank(segments), duration, opts)
}

func selectRanked(segments []models.TranscriptSegment, ranked []scoredSegment, duration float64, opts Options) []models.ClipCandidate {
	opts = opts.withDefaults()

	var out []models.ClipCandidate
	for _, r := range ranked {
		if len(out) >= opts.MaxClips {
			break
		}

		seg := segments[r.index]
		if covered(out, (seg.Start+seg.End)/2) {
			continue
		}

		start, end, ok := buildWindow(segments, r.index, duration, opts)
		if !ok {
			continue
		}

		cand := models.ClipCandidate{Start: start, End: end, Score: r.score, Reason: r.reason}
		if duplicates(out, cand, opts.MaxIoU) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func buildWindow(segments []models.TranscriptSegment, idx int, duration float64, opts Options) (float64, float64, bool) {
	seg := segments[idx]
	mid := (seg.Start + seg.End) / 2

	length := math.Min(opts.TargetDurationSec, duration)
	start, end := clampInto(mid-length/2, mid+length/2, duration)
	start, end = snapToSegments(segments, start, end, duration)

	if end-start < opts.MinDurationSec {
		need := opts.MinDurationSec - (end - start)
		start, end = clampInto(start-need/2, end+need/2, duration)
	}
	if end-start > opts.MaxDurationSec {
		start, end = capAround(start, end, mid, opts.MaxDurationSec)
	}

	length = end - start
	if length <= 0 || length < opts.MinDurationSec-epsilon || length > opts.MaxDurationSec+epsilon {
		return 0, 0, false
	}
	return start, end, true
}

// clampInto shifts [start,end] inside [0,duration], shrinking only when it cannot fit.
func clampInto(start, end, duration float64) (float64, float64) {
	if start < 0 {
		end -= start
		start = 0
	}
	if end > duration {
		start -= end - duration
		end = duration
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// snapToSegments moves a boundary that falls inside a segment out to that segment's edge.
func snapToSegments(segments []models.TranscriptSegment, start, end, duration float64) (float64, float64) {
	for _, s := range segments {
		if s.Start < start && start < s.End {
			start = s.Start
		}
		if s.Start < end && end < s.End {
			end = s.End
		}
	}
	return math.Max(0, start), math.Min(duration, end)
}

// capAround trims [start,end] to maxLen, keeping center inside when possible.
func capAround(start, end, center, maxLen float64) (float64, float64) {
	s := math.Max(start, center-maxLen/2)
	e := s + maxLen
	if e > end {
		e = end
		s = e - maxLen
	}
	return s, e
}

func covered(accepted []models.ClipCandidate, t float64) bool {
	for _, c := range accepted {
		if t >= c.Start && t <= c.End {
			return true
		}
	}
	return false
}

func duplicates(accepted []models.ClipCandidate, cand models.ClipCandidate, maxIoU float64) bool {
	for _, c := range accepted {
		if IoU(c, cand) > maxIoU {
			return true
		}
	}
	return false
}

// IoU is the intersection-over-union of two time ranges.
func IoU(a, b models.ClipCandidate) float64 {
	inter := math.Min(a.End, b.End) - math.Max(a.Start, b.Start)
	if inter <= 0 {
		return 0
	}
	union := a.Duration() + b.Duration() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
