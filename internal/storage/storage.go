package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Per-attempt timeout, sized for rendered clips of a few hundred MB
	uploadTimeout   = 10 * time.Minute
	downloadTimeout = 10 * time.Minute

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Storage uploads artifacts to a Supabase Storage bucket over its REST API.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client

	// overridable in tests
	retryDelay func(attempt int) time.Duration
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryDelay: retryDelay,
	}
}

// ObjectKey is the bucket key for a job artifact, e.g. jobs/<id>/short-1.mp4.
func ObjectKey(jobID, name string) string {
	return path.Join("jobs", jobID, name)
}

// ContentType picks the MIME type from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".ass":
		return "text/x-ssa"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// UploadFile streams localPath to objectKey with retries and returns the public URL.
// Each attempt reopens the file so a failed attempt never leaves a half-read body.
func (s *Storage) UploadFile(ctx context.Context, localPath, objectKey string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectKey)
	contentType := ContentType(localPath)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Printf("[Storage] Upload retry %d/%d for %s (waiting %v)...", attempt, maxRetries, objectKey, delay)

			select {
			case <-ctx.Done():
				return "", fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		status, body, err := s.putOnce(ctx, url, localPath, info.Size(), contentType)
		if err != nil {
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				log.Printf("[Storage] Upload attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return "", lastErr
		}

		if status == http.StatusOK || status == http.StatusCreated {
			if attempt > 0 {
				log.Printf("[Storage] Upload succeeded on attempt %d for %s", attempt+1, objectKey)
			}
			return s.GetPublicURL(objectKey), nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", status, truncate(body, 500))
		if isRetryableStatus(status) {
			log.Printf("[Storage] Upload attempt %d returned status %d (retryable): %s", attempt+1, status, truncate(body, 200))
			continue
		}
		return "", lastErr
	}

	return "", fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (s *Storage) putOnce(ctx context.Context, url, localPath string, size int64, contentType string) (int, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, f)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}

// DownloadFile fetches objectKey into localPath with retries.
func (s *Storage) DownloadFile(ctx context.Context, objectKey, localPath string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectKey)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Printf("[Storage] Download retry %d/%d for %s (waiting %v)...", attempt, maxRetries, objectKey, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		status, err := s.getOnce(ctx, url, localPath)
		if err != nil {
			lastErr = fmt.Errorf("failed to download: %w", err)
			if isRetryableError(err) {
				log.Printf("[Storage] Download attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return lastErr
		}
		if status == http.StatusOK {
			return nil
		}

		lastErr = fmt.Errorf("download failed with status %d", status)
		if isRetryableStatus(status) {
			log.Printf("[Storage] Download attempt %d returned status %d (retryable)", attempt+1, status)
			continue
		}
		return lastErr
	}

	return fmt.Errorf("download failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (s *Storage) getOnce(ctx context.Context, url, localPath string) (int, error) {
	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", localPath, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", localPath, err)
	}
	return resp.StatusCode, nil
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(objectKey string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, objectKey)
}

// retryDelay calculates exponential backoff with jitter: base * 2^(attempt-1) + 0-25% jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
