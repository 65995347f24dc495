package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bobarin/clipforge/internal/models"
)

// FaceAnalyzer runs the external face tracking script over a batch of clips.
// The script prints a JSON array with one record per clip on stdout.
type FaceAnalyzer struct {
	python       string
	scriptPath   string
	sampleStride int
}

func NewFaceAnalyzer(python, scriptPath string, sampleStride int) *FaceAnalyzer {
	if python == "" {
		python = "python3"
	}
	if sampleStride <= 0 {
		sampleStride = 2
	}
	return &FaceAnalyzer{python: python, scriptPath: scriptPath, sampleStride: sampleStride}
}

// Analyze returns one record per input clip, in input order. Clips the script did not
// report get a record carrying an error.
func (f *FaceAnalyzer) Analyze(ctx context.Context, clipPaths []string) ([]models.ClipFaceAnalysis, error) {
	if len(clipPaths) == 0 {
		return nil, nil
	}

	args := f.args(clipPaths)
	log.Printf("[FaceAnalyzer] Running %s on %d clips", f.python, len(clipPaths))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.python, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("face analyzer: %w\n%s", err, tail(stderr.Bytes(), maxErrOutput))
	}

	return parseFaceAnalysis(stdout.Bytes(), clipPaths)
}

func (f *FaceAnalyzer) args(clipPaths []string) []string {
	args := []string{f.scriptPath, "--sample-stride", strconv.Itoa(f.sampleStride), "--clips"}
	return append(args, clipPaths...)
}

func parseFaceAnalysis(out []byte, clipPaths []string) ([]models.ClipFaceAnalysis, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		trimmed = "[]"
	}

	var records []models.ClipFaceAnalysis
	if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
		return nil, fmt.Errorf("failed to parse face analyzer output: %w", err)
	}

	byPath := make(map[string]models.ClipFaceAnalysis, len(records))
	for _, r := range records {
		byPath[r.ClipPath] = r
	}

	results := make([]models.ClipFaceAnalysis, len(clipPaths))
	for i, p := range clipPaths {
		if r, ok := byPath[p]; ok {
			results[i] = r
			continue
		}
		results[i] = models.ClipFaceAnalysis{ClipPath: p, Error: "no analysis returned"}
	}
	return results, nil
}
