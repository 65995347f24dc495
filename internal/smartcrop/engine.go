// Package smartcrop turns per-clip face tracks into a stable horizontal pan path
// for cropping landscape footage to 9:16.
package smartcrop

import (
	"log"
	"math"
	"sort"

	"github.com/bobarin/clipforge/internal/models"
)

// Params tune sampling, track scoring and switch hysteresis.
type Params struct {
	SampleStep            float64 // seconds between samples
	MaxPointGap           float64 // max distance to a track's nearest timeline point
	SpeechEnergyThreshold float64
	MouthWeight           float64
	StickyBonus           float64
	MinHoldSec            float64
	SwitchBoost           float64
	RequiredWins          int
	LostTrackGraceSec     float64
	MaxDriftPerSegment    float64
	GapEpsilon            float64
	MaxDeltaPerSec        float64
	InitialCenter         float64
}

func DefaultParams() Params {
	return Params{
		SampleStep:            0.25,
		MaxPointGap:           0.6,
		SpeechEnergyThreshold: 0.18,
		MouthWeight:           1.5,
		StickyBonus:           0.15,
		MinHoldSec:            1.0,
		SwitchBoost:           1.25,
		RequiredWins:          3,
		LostTrackGraceSec:     1.2,
		MaxDriftPerSegment:    0.12,
		GapEpsilon:            0.03,
		MaxDeltaPerSec:        0.22,
		InitialCenter:         0.5,
	}
}

// Analyze builds the pan path for one clip. It returns nil when there is nothing to
// follow, in which case the renderer uses a fixed center crop.
func Analyze(tracks []models.FaceTrack, energy []models.EnergyFrame, duration float64, p Params) *models.SmartCropBox {
	if len(tracks) == 0 || duration <= 0 {
		return nil
	}

	samples := buildSamples(tracks, energy, duration, p)
	segments := compress(samples, duration, p.MaxDriftPerSegment)
	segments = fillGaps(segments, duration, p.GapEpsilon, p.InitialCenter)
	segments = limitSpeed(segments, p.MaxDeltaPerSec)
	if len(segments) == 0 {
		return nil
	}
	return &models.SmartCropBox{Segments: segments}
}

// AnalyzeClip runs Analyze on an analyzer record. When the analyzer did not report a
// duration, the latest timeline point is used instead.
func AnalyzeClip(a models.ClipFaceAnalysis, energy []models.EnergyFrame, p Params) *models.SmartCropBox {
	if a.Error != "" || len(a.Faces) == 0 {
		return nil
	}
	duration := a.Duration
	if duration <= 0 {
		for _, tr := range a.Faces {
			for _, pt := range tr.Timeline {
				duration = math.Max(duration, pt.T)
			}
		}
	}
	return Analyze(a.Faces, energy, duration, p)
}

// EnergyAt returns the energy of the frame containing t, falling back to the last frame.
func EnergyAt(frames []models.EnergyFrame, t float64) float64 {
	if len(frames) == 0 {
		return 0
	}
	for _, f := range frames {
		if t >= f.TStart && t < f.TEnd {
			return f.Energy
		}
	}
	return frames[len(frames)-1].Energy
}

const noTrack = -1

type sample struct {
	t     float64
	track int
	x     float64
}

type trackScore struct {
	idx   int
	score float64
	x     float64
}

// switcher holds the per-clip hysteresis state.
type switcher struct {
	p          Params
	active     int
	x          float64
	lastSwitch float64
	lastSeen   float64
	pending    int
	wins       int
}

func buildSamples(tracks []models.FaceTrack, energy []models.EnergyFrame, duration float64, p Params) []sample {
	s := &switcher{
		p:          p,
		active:     noTrack,
		x:          p.InitialCenter,
		lastSwitch: math.Inf(-1),
		lastSeen:   math.Inf(-1),
		pending:    noTrack,
	}

	n := int(math.Floor(duration/p.SampleStep+1e-9)) + 1
	out := make([]sample, 0, n)
	for i := 0; i < n; i++ {
		t := math.Min(float64(i)*p.SampleStep, duration)
		speech := EnergyAt(energy, t) >= p.SpeechEnergyThreshold
		out = append(out, s.step(t, scoreTracks(tracks, t, speech, s.active, p)))
	}
	return out
}

func scoreTracks(tracks []models.FaceTrack, t float64, speech bool, active int, p Params) []trackScore {
	var out []trackScore
	for idx, tr := range tracks {
		pt, ok := nearestPoint(tr, t, p.MaxPointGap)
		if !ok {
			continue
		}
		score := pt.W * pt.H
		if speech && pt.Mouth != nil {
			score += *pt.Mouth * p.MouthWeight
		}
		if idx == active {
			score += p.StickyBonus
		}
		out = append(out, trackScore{idx: idx, score: score, x: clamp01(pt.X)})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].score > out[b].score })
	return out
}

func nearestPoint(tr models.FaceTrack, t, maxGap float64) (models.FaceTimelinePoint, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, pt := range tr.Timeline {
		if d := math.Abs(pt.T - t); d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 || bestDist > maxGap {
		return models.FaceTimelinePoint{}, false
	}
	return tr.Timeline[best], true
}

func (s *switcher) step(t float64, cands []trackScore) sample {
	if len(cands) == 0 {
		if s.active != noTrack && t-s.lastSeen <= s.p.LostTrackGraceSec {
			return sample{t: t, track: s.active, x: s.x}
		}
		return sample{t: t, track: noTrack, x: s.x}
	}

	best := cands[0]

	if s.active == noTrack {
		return s.follow(t, best)
	}

	var cur *trackScore
	for i := range cands {
		if cands[i].idx == s.active {
			cur = &cands[i]
			break
		}
	}
	if cur == nil {
		s.pending, s.wins = noTrack, 0
		return s.follow(t, best)
	}

	if t-s.lastSwitch < s.p.MinHoldSec {
		return s.follow(t, *cur)
	}

	if best.idx == s.active || best.score < cur.score*s.p.SwitchBoost {
		s.pending, s.wins = noTrack, 0
		return s.follow(t, *cur)
	}

	if s.pending != best.idx {
		s.pending, s.wins = best.idx, 1
	} else {
		s.wins++
	}

	if s.wins >= s.p.RequiredWins {
		log.Printf("[SmartCrop] switch at t=%.2fs to track %d", t, best.idx)
		s.lastSwitch = t
		s.pending, s.wins = noTrack, 0
		return s.follow(t, best)
	}
	return s.follow(t, *cur)
}

func (s *switcher) follow(t float64, c trackScore) sample {
	s.active = c.idx
	s.x = c.x
	s.lastSeen = t
	return sample{t: t, track: c.idx, x: c.x}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
