package models

import (
	"fmt"
	"strings"
)

const (
	DefaultClipDurationSec  = 30
	DefaultMaxClips         = 3
	DefaultSummaryTargetSec = 60

	MinClipDurationSec  = 10
	MaxClipDurationSec  = 120
	MaxClipsLimit       = 10
	MinSummaryTargetSec = 20
	MaxSummaryTargetSec = 600
)

// RawJobParams holds processing parameters as supplied by a caller. Every field is optional.
type RawJobParams struct {
	Aspect           *string `json:"aspect,omitempty"`
	ClipDurationSec  *int    `json:"clip_duration_sec,omitempty"`
	MaxClips         *int    `json:"max_clips,omitempty"`
	CaptionsEnabled  *bool   `json:"captions_enabled,omitempty"`
	CaptionStyle     *string `json:"caption_style,omitempty"`
	JobGoal          *string `json:"job_goal,omitempty"`
	SummaryTargetSec *int    `json:"summary_target_sec,omitempty"`
}

// JobParams are validated processing parameters.
type JobParams struct {
	Aspect           Aspect
	ClipDurationSec  int
	MaxClips         int
	CaptionsEnabled  bool
	CaptionStyle     CaptionStyle
	JobGoal          JobGoal
	SummaryTargetSec int
}

// NormalizeParams validates raw parameters against the fixed enumerations and fills defaults.
func NormalizeParams(raw RawJobParams) (JobParams, error) {
	p := JobParams{
		Aspect:           AspectHorizontal,
		ClipDurationSec:  DefaultClipDurationSec,
		MaxClips:         DefaultMaxClips,
		CaptionsEnabled:  true,
		CaptionStyle:     CaptionStyleKaraoke,
		JobGoal:          JobGoalShorts,
		SummaryTargetSec: DefaultSummaryTargetSec,
	}

	var err error
	if raw.Aspect != nil {
		if p.Aspect, err = ParseAspect(*raw.Aspect); err != nil {
			return JobParams{}, err
		}
	}
	if raw.CaptionStyle != nil {
		if p.CaptionStyle, err = ParseCaptionStyle(*raw.CaptionStyle); err != nil {
			return JobParams{}, err
		}
	}
	if raw.JobGoal != nil {
		if p.JobGoal, err = ParseJobGoal(*raw.JobGoal); err != nil {
			return JobParams{}, err
		}
	}
	if raw.CaptionsEnabled != nil {
		p.CaptionsEnabled = *raw.CaptionsEnabled
	}

	if raw.ClipDurationSec != nil {
		d := *raw.ClipDurationSec
		if d < MinClipDurationSec || d > MaxClipDurationSec {
			return JobParams{}, fmt.Errorf("clip_duration_sec must be between %d and %d", MinClipDurationSec, MaxClipDurationSec)
		}
		p.ClipDurationSec = d
	}
	if raw.MaxClips != nil {
		n := *raw.MaxClips
		if n < 1 || n > MaxClipsLimit {
			return JobParams{}, fmt.Errorf("max_clips must be between 1 and %d", MaxClipsLimit)
		}
		p.MaxClips = n
	}
	if raw.SummaryTargetSec != nil {
		s := *raw.SummaryTargetSec
		if s < MinSummaryTargetSec || s > MaxSummaryTargetSec {
			return JobParams{}, fmt.Errorf("summary_target_sec must be between %d and %d", MinSummaryTargetSec, MaxSummaryTargetSec)
		}
		p.SummaryTargetSec = s
	}

	return p, nil
}

func ParseAspect(s string) (Aspect, error) {
	switch Aspect(strings.TrimSpace(s)) {
	case "", AspectHorizontal:
		return AspectHorizontal, nil
	case AspectVertical:
		return AspectVertical, nil
	case AspectVerticalLetterbox:
		return AspectVerticalLetterbox, nil
	}
	return "", fmt.Errorf("invalid aspect %q", s)
}

func ParseCaptionStyle(s string) (CaptionStyle, error) {
	switch CaptionStyle(strings.TrimSpace(s)) {
	case "", CaptionStyleKaraoke:
		return CaptionStyleKaraoke, nil
	case CaptionStyleBoldYellow:
		return CaptionStyleBoldYellow, nil
	case CaptionStyleSubtle:
		return CaptionStyleSubtle, nil
	}
	return "", fmt.Errorf("invalid caption_style %q", s)
}

func ParseJobGoal(s string) (JobGoal, error) {
	switch JobGoal(strings.TrimSpace(s)) {
	case "", JobGoalShorts:
		return JobGoalShorts, nil
	case JobGoalSummary:
		return JobGoalSummary, nil
	}
	return "", fmt.Errorf("invalid job_goal %q", s)
}
