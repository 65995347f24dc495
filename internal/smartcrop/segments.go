package smartcrop

import (
	"math"
	"sort"

	"github.com/bobarin/clipforge/internal/models"
)

const minSegmentSec = 1e-9

// compress merges consecutive samples on the same track whose position stays within
// maxDrift of the previous sample. Each sample spans until the next one.
func compress(samples []sample, duration, maxDrift float64) []models.SmartCropSegment {
	if len(samples) == 0 || duration <= 0 {
		return nil
	}

	type run struct {
		start, end float64
		track      int
		sumX       float64
		count      int
		lastX      float64
	}

	var runs []run
	for i, s := range samples {
		next := duration
		if i < len(samples)-1 {
			next = samples[i+1].t
		}

		if n := len(runs); n > 0 {
			cur := &runs[n-1]
			if cur.track == s.track && math.Abs(s.x-cur.lastX) <= maxDrift {
				cur.end = next
				cur.sumX += s.x
				cur.count++
				cur.lastX = s.x
				continue
			}
		}
		runs = append(runs, run{start: s.t, end: next, track: s.track, sumX: s.x, count: 1, lastX: s.x})
	}

	out := make([]models.SmartCropSegment, 0, len(runs))
	for _, r := range runs {
		out = append(out, models.SmartCropSegment{
			TStart:      r.start,
			TEnd:        r.end,
			CenterXNorm: clamp01(r.sumX / float64(r.count)),
			HasFace:     r.track != noTrack,
		})
	}
	return out
}

// fillGaps makes the segments cover [0,duration] exactly. Gaps wider than eps get a
// faceless segment holding the last known center; narrower ones are absorbed by
// the neighbouring segment.
func fillGaps(segments []models.SmartCropSegment, duration, eps, initialX float64) []models.SmartCropSegment {
	if duration <= 0 {
		return nil
	}

	sorted := make([]models.SmartCropSegment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TStart < sorted[j].TStart })

	lastX := initialX
	if len(sorted) > 0 {
		lastX = sorted[0].CenterXNorm
	}

	var out []models.SmartCropSegment
	cursor := 0.0
	for _, seg := range sorted {
		start := math.Max(seg.TStart, cursor)
		end := math.Min(seg.TEnd, duration)
		if end-start <= minSegmentSec {
			continue
		}

		switch {
		case start > cursor+eps:
			out = append(out, models.SmartCropSegment{TStart: cursor, TEnd: start, CenterXNorm: lastX})
		case start > cursor && len(out) > 0:
			out[len(out)-1].TEnd = start
		default:
			start = cursor
		}

		seg.TStart, seg.TEnd = start, end
		out = append(out, seg)
		cursor = end
		lastX = seg.CenterXNorm
	}

	switch {
	case cursor < duration-eps || len(out) == 0:
		out = append(out, models.SmartCropSegment{TStart: cursor, TEnd: duration, CenterXNorm: lastX})
	case cursor < duration:
		out[len(out)-1].TEnd = duration
	}
	return out
}

// limitSpeed caps each segment's move from its predecessor to maxDeltaPerSec times
// the segment's own duration.
func limitSpeed(segments []models.SmartCropSegment, maxDeltaPerSec float64) []models.SmartCropSegment {
	if len(segments) == 0 {
		return segments
	}

	out := make([]models.SmartCropSegment, 0, len(segments))
	prev := segments[0].CenterXNorm
	for _, s := range segments {
		dt := math.Max(1e-6, s.TEnd-s.TStart)
		maxDelta := maxDeltaPerSec * dt

		x := s.CenterXNorm
		if delta := x - prev; math.Abs(delta) > maxDelta {
			x = prev + math.Copysign(maxDelta, delta)
		}
		x = clamp01(x)

		s.CenterXNorm = x
		out = append(out, s)
		prev = x
	}
	return out
}
