package models

import (
	"testing"
)

func TestJobStageOrder(t *testing.T) {
	stages := []JobStage{
		JobStageQueued,
		JobStageDownloading,
		JobStageScoring,
		JobStageClipping,
		JobStageCaptioning,
		JobStageRendering,
		JobStageFinished,
	}

	for i, stage := range stages {
		if stage.Index() != i {
			t.Errorf("expected %s at index %d, got %d", stage, i, stage.Index())
		}
	}

	if !JobStageScoring.CanAdvance(JobStageClipping) {
		t.Error("expected scoring -> clipping to be allowed")
	}
	if !JobStageCaptioning.CanAdvance(JobStageCaptioning) {
		t.Error("expected staying on a stage to be allowed")
	}
	if JobStageRendering.CanAdvance(JobStageScoring) {
		t.Error("expected rendering -> scoring to be rejected")
	}
	if JobStage("bogus").CanAdvance(JobStageFinished) {
		t.Error("expected unknown stage to be rejected")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if JobStatusPending.Terminal() || JobStatusProcessing.Terminal() {
		t.Error("pending/processing must not be terminal")
	}
	if !JobStatusDone.Terminal() || !JobStatusFailed.Terminal() {
		t.Error("done/failed must be terminal")
	}
}

func TestNormalizeParamsDefaults(t *testing.T) {
	p, err := NormalizeParams(RawJobParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Aspect != AspectHorizontal {
		t.Errorf("expected horizontal aspect, got %s", p.Aspect)
	}
	if p.ClipDurationSec != 30 || p.MaxClips != 3 {
		t.Errorf("unexpected defaults: duration=%d maxClips=%d", p.ClipDurationSec, p.MaxClips)
	}
	if !p.CaptionsEnabled || p.CaptionStyle != CaptionStyleKaraoke {
		t.Errorf("expected karaoke captions enabled, got %v %s", p.CaptionsEnabled, p.CaptionStyle)
	}
	if p.JobGoal != JobGoalShorts {
		t.Errorf("expected shorts goal, got %s", p.JobGoal)
	}
}

func TestNormalizeParamsValidation(t *testing.T) {
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }

	tests := []struct {
		name    string
		raw     RawJobParams
		wantErr bool
	}{
		{name: "vertical", raw: RawJobParams{Aspect: str("vertical")}},
		{name: "letterbox", raw: RawJobParams{Aspect: str("verticalLetterbox")}},
		{name: "bad aspect", raw: RawJobParams{Aspect: str("square")}, wantErr: true},
		{name: "bold yellow", raw: RawJobParams{CaptionStyle: str("boldYellow")}},
		{name: "bad style", raw: RawJobParams{CaptionStyle: str("comic")}, wantErr: true},
		{name: "summary", raw: RawJobParams{JobGoal: str("summary"), SummaryTargetSec: num(90)}},
		{name: "bad goal", raw: RawJobParams{JobGoal: str("trailer")}, wantErr: true},
		{name: "short clip", raw: RawJobParams{ClipDurationSec: num(5)}, wantErr: true},
		{name: "too many clips", raw: RawJobParams{MaxClips: num(50)}, wantErr: true},
		{name: "summary too long", raw: RawJobParams{SummaryTargetSec: num(5000)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeParams(tt.raw)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
