package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/shared/logging"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectClient is the subset of *minio.Client used by ObjectStore.
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes hosted object keys; defaults to the endpoint.
	PublicURL string
	Timeout   time.Duration
}

// ObjectStore hosts images in an S3-compatible bucket.
type ObjectStore struct {
	client    ObjectClient
	bucket    string
	publicURL string
	timeout   time.Duration
	log       *slog.Logger
	newKey    func() string
}

func NewObjectStore(cfg ObjectStoreConfig, log *slog.Logger) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	if cfg.PublicURL == "" {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		cfg.PublicURL = scheme + cfg.Endpoint
	}
	return NewObjectStoreWithClient(client, cfg, log), nil
}

func NewObjectStoreWithClient(client ObjectClient, cfg ObjectStoreConfig, log *slog.Logger) *ObjectStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ObjectStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		timeout:   cfg.Timeout,
		log:       logging.OrDefault(log),
		newKey:    func() string { return "posts/" + uuid.NewString() + ".jpg" },
	}
}

func (s *ObjectStore) Upload(ctx context.Context, img imaging.NormalizedImage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.newKey()
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(img.Data), int64(len(img.Data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		s.log.Warn("object upload failed", "bucket", s.bucket, "key", key, "error", err)
		return "", classifyObjectError(err)
	}
	return s.publicURL + "/" + s.bucket + "/" + key, nil
}

func classifyObjectError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		body := resp.Code
		if resp.Message != "" {
			body += ": " + resp.Message
		}
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return networkError("put object", err)
}
