package smartcrop

import (
	"testing"

	"github.com/bobarin/clipforge/internal/models"
)

func TestCompressMergesSmallDrift(t *testing.T) {
	samples := []sample{
		{t: 0, track: 0, x: 0.50},
		{t: 0.25, track: 0, x: 0.55},
		{t: 0.5, track: 0, x: 0.60},
		{t: 0.75, track: 0, x: 0.90},
		{t: 1.0, track: noTrack, x: 0.90},
	}

	got := compress(samples, 1.25, 0.12)
	if len(got) != 3 {
		t.Fatalf("expected 3 segments, got %+v", got)
	}
	if got[0].TStart != 0 || got[0].TEnd != 0.75 {
		t.Errorf("first segment = [%v,%v]", got[0].TStart, got[0].TEnd)
	}
	if c := got[0].CenterXNorm; c < 0.5499 || c > 0.5501 {
		t.Errorf("first segment center = %v, want mean 0.55", c)
	}
	if got[2].HasFace || got[2].TEnd != 1.25 {
		t.Errorf("unexpected tail segment %+v", got[2])
	}
}

func TestFillGapsHoldsLastCenter(t *testing.T) {
	segs := []models.SmartCropSegment{
		{TStart: 0.5, TEnd: 2, CenterXNorm: 0.4, HasFace: true},
		{TStart: 2.02, TEnd: 4, CenterXNorm: 0.6, HasFace: true},
	}

	got := fillGaps(segs, 5, 0.03, 0.5)
	want := []models.SmartCropSegment{
		{TStart: 0, TEnd: 0.5, CenterXNorm: 0.4},
		{TStart: 0.5, TEnd: 2.02, CenterXNorm: 0.4, HasFace: true},
		{TStart: 2.02, TEnd: 4, CenterXNorm: 0.6, HasFace: true},
		{TStart: 4, TEnd: 5, CenterXNorm: 0.6},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFillGapsEmptyInputCoversDuration(t *testing.T) {
	got := fillGaps(nil, 3, 0.03, 0.5)
	if len(got) != 1 || got[0].TStart != 0 || got[0].TEnd != 3 || got[0].CenterXNorm != 0.5 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestLimitSpeedClampsJumps(t *testing.T) {
	segs := []models.SmartCropSegment{
		{TStart: 0, TEnd: 1, CenterXNorm: 0.2},
		{TStart: 1, TEnd: 2, CenterXNorm: 0.9},
		{TStart: 2, TEnd: 12, CenterXNorm: 0.9},
	}

	got := limitSpeed(segs, 0.22)
	if got[0].CenterXNorm != 0.2 {
		t.Errorf("first segment moved: %v", got[0].CenterXNorm)
	}
	if c := got[1].CenterXNorm; c < 0.4199 || c > 0.4201 {
		t.Errorf("second segment = %v, want 0.42", c)
	}
	if got[2].CenterXNorm != 0.9 {
		t.Errorf("long segment should reach target, got %v", got[2].CenterXNorm)
	}
}
