package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

const ytDlpFormat = "bv*[height<=1080]+ba/b[ext=mp4][height<=1080]/best"

// YtDlp downloads remote videos with the yt-dlp binary.
type YtDlp struct {
	binary      string
	cookiesPath string
	userAgent   string
}

func NewYtDlp(binary, cookiesPath, userAgent string) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlp{binary: binary, cookiesPath: cookiesPath, userAgent: userAgent}
}

// Fetch downloads url into destDir as a single mp4 and returns its path.
func (y *YtDlp) Fetch(ctx context.Context, url, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}
	out := filepath.Join(destDir, uuid.NewString()+".mp4")

	args := y.args(url, out)
	log.Printf("[YtDlp] Downloading %s (cookies=%v)", url, y.hasCookies())

	cmd := exec.CommandContext(ctx, y.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w\n%s", err, tail(output, maxErrOutput))
	}

	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("yt-dlp finished but %s is missing: %w", filepath.Base(out), err)
	}

	log.Printf("[YtDlp] Download finished: %s", out)
	return out, nil
}

func (y *YtDlp) args(url, out string) []string {
	args := []string{
		url,
		"-f", ytDlpFormat,
		"--merge-output-format", "mp4",
		"-o", out,
		"--no-playlist",
		"--no-progress",
	}
	if y.userAgent != "" {
		args = append(args, "--user-agent", y.userAgent)
	}
	if y.hasCookies() {
		args = append(args, "--cookies", y.cookiesPath)
	}
	return args
}

func (y *YtDlp) hasCookies() bool {
	if y.cookiesPath == "" {
		return false
	}
	_, err := os.Stat(y.cookiesPath)
	return err == nil
}
