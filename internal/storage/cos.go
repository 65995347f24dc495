package storage

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"
)

const cosAttempts = 3

// COSStorage stores artifacts in a Tencent Cloud COS bucket.
type COSStorage struct {
	client *cos.Client
}

func NewCOS(bucketURL, secretID, secretKey string) (*COSStorage, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("invalid COS bucket url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid COS bucket url %q", bucketURL)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Timeout: uploadTimeout,
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	})
	return &COSStorage{client: client}, nil
}

// UploadFile puts localPath under objectKey and returns the object URL.
func (c *COSStorage) UploadFile(ctx context.Context, localPath, objectKey string) (string, error) {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: ContentType(localPath),
		},
	}

	var err error
	for attempt := 0; attempt < cosAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(retryDelay(attempt)):
			}
		}
		if _, err = c.client.Object.PutFromFile(ctx, objectKey, localPath, opt); err == nil {
			return c.client.Object.GetObjectURL(objectKey).String(), nil
		}
		log.Printf("[COS] Upload attempt %d for %s failed: %v", attempt+1, objectKey, err)
	}
	return "", fmt.Errorf("cos upload %s: %w", objectKey, err)
}

// DownloadFile writes objectKey to localPath.
func (c *COSStorage) DownloadFile(ctx context.Context, objectKey, localPath string) error {
	if _, err := c.client.Object.GetToFile(ctx, objectKey, localPath, nil); err != nil {
		return fmt.Errorf("cos download %s: %w", objectKey, err)
	}
	return nil
}
