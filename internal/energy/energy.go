// Package energy computes a normalized loudness envelope for a clip's audio.
package energy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bobarin/clipforge/internal/models"
)

const (
	DefaultSampleRate = 16000
	DefaultHop        = 250 * time.Millisecond
)

// PCMDecoder decodes an audio file into mono signed 16-bit samples.
type PCMDecoder interface {
	DecodePCM(ctx context.Context, input string, sampleRate int) ([]int16, error)
}

type Extractor struct {
	decoder    PCMDecoder
	sampleRate int
	hop        time.Duration
}

func NewExtractor(decoder PCMDecoder) *Extractor {
	return &Extractor{decoder: decoder, sampleRate: DefaultSampleRate, hop: DefaultHop}
}

// Analyze returns one energy frame per hop covering the whole file.
func (e *Extractor) Analyze(ctx context.Context, audioPath string) ([]models.EnergyFrame, error) {
	samples, err := e.decoder.DecodePCM(ctx, audioPath, e.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("decode audio: no samples in %s", audioPath)
	}
	return Frames(samples, e.sampleRate, e.hop), nil
}

// Frames computes RMS over windows of two hops centered on each hop boundary, with zero
// padding at both ends, and scales the result so the loudest frame is 1.
func Frames(samples []int16, sampleRate int, hop time.Duration) []models.EnergyFrame {
	hopLen := int(float64(sampleRate) * hop.Seconds())
	if hopLen <= 0 || len(samples) == 0 {
		return nil
	}
	hopSec := hop.Seconds()

	n := len(samples)/hopLen + 1
	rms := make([]float64, n)
	maxRMS := 0.0
	for i := range rms {
		center := i * hopLen
		var sum float64
		for j := center - hopLen; j < center+hopLen; j++ {
			if j < 0 || j >= len(samples) {
				continue
			}
			v := float64(samples[j])
			sum += v * v
		}
		rms[i] = math.Sqrt(sum / float64(2*hopLen))
		if rms[i] > maxRMS {
			maxRMS = rms[i]
		}
	}
	if maxRMS == 0 {
		maxRMS = 1
	}

	frames := make([]models.EnergyFrame, n)
	for i, v := range rms {
		start := float64(i*hopLen) / float64(sampleRate)
		frames[i] = models.EnergyFrame{
			TStart: start,
			TEnd:   start + hopSec,
			Energy: v / maxRMS,
		}
	}
	return frames
}
