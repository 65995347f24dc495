// Package render assembles per-clip ffmpeg filter chains and drives the transcoder.
package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bobarin/clipforge/internal/models"
)

const (
	letterboxFilter = "scale=1080:1920:force_original_aspect_ratio=decrease:flags=bicubic,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black"
	centerCrop      = "crop=in_h*(9/16):in_h:(in_w-oh*(9/16))/2:0"
	verticalScale   = "scale=1080:1920:flags=bicubic"

	cropWidth = "in_h*(9/16)"

	// BlendHalfWidth is half the cross-fade window around a pan boundary, in seconds.
	BlendHalfWidth = 0.45
	// MinPanMove is the smallest center change that gets its own transition.
	MinPanMove = 0.035
)

// BuildFilterChain returns the -vf value for one clip. An empty string means the clip
// needs no filtering.
func BuildFilterChain(aspect models.Aspect, crop *models.SmartCropBox, subtitlePath, fontsDir string) string {
	var filters []string

	switch aspect {
	case models.AspectVerticalLetterbox:
		filters = append(filters, letterboxFilter)
	case models.AspectVertical:
		if crop != nil && len(crop.Segments) > 0 {
			filters = append(filters, fmt.Sprintf("crop=%s:in_h:%s:0", cropWidth, CropXExpr(crop.Segments)))
		} else {
			filters = append(filters, centerCrop)
		}
		filters = append(filters, verticalScale)
	}

	if subtitlePath != "" {
		f := fmt.Sprintf("subtitles='%s'", escapeFilterPath(subtitlePath))
		if fontsDir != "" {
			f += fmt.Sprintf(":fontsdir='%s'", escapeFilterPath(fontsDir))
		}
		filters = append(filters, f)
	}

	return strings.Join(filters, ",")
}

// CropXExpr builds a time-varying crop x offset from pan segments. Every boundary
// between distinct centers is eased with a smoothstep over 2*BlendHalfWidth seconds.
func CropXExpr(segments []models.SmartCropSegment) string {
	if len(segments) == 0 {
		return xForCenter(0.5)
	}

	sorted := make([]models.SmartCropSegment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TStart < sorted[j].TStart })

	expr := xForCenter(sorted[len(sorted)-1].CenterXNorm)
	for i := len(sorted) - 2; i >= 0; i-- {
		prev, next := sorted[i], sorted[i+1]
		if math.Abs(next.CenterXNorm-prev.CenterXNorm) < MinPanMove {
			continue
		}

		x0 := xForCenter(prev.CenterXNorm)
		x1 := xForCenter(next.CenterXNorm)
		from := next.TStart - BlendHalfWidth
		to := next.TStart + BlendHalfWidth

		u := fmt.Sprintf("clip((t-%.3f)/%.3f\\,0\\,1)", from, 2*BlendHalfWidth)
		eased := fmt.Sprintf("(%s*%s*(3-2*%s))", u, u, u)
		blend := fmt.Sprintf("(%s+(%s-%s)*%s)", x0, x1, x0, eased)

		expr = fmt.Sprintf("if(lt(t\\,%.3f)\\,%s\\,if(lt(t\\,%.3f)\\,%s\\,%s))", from, x0, to, blend, expr)
	}
	return expr
}

// xForCenter maps a normalized face center to a crop x offset kept inside the frame.
func xForCenter(cx float64) string {
	cx = math.Max(0, math.Min(1, cx))
	return fmt.Sprintf("min(max(in_w*%.4f-%s/2\\,0)\\,in_w-%s)", cx, cropWidth, cropWidth)
}

// escapeFilterPath escapes characters that ffmpeg's filter parser treats specially.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "\\'")
	return path
}
