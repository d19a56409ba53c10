package upload

import (
	"fmt"
	"log/slog"

	"backend-lacakair/internal/config"
)

// NewFromConfig builds the uploader selected by UPLOAD_BACKEND.
func NewFromConfig(cfg config.Config, log *slog.Logger) (Uploader, error) {
	switch cfg.UploadBackend {
	case config.BackendS3:
		store, err := NewObjectStore(ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
			Timeout:   cfg.UploadTimeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("object store uploader: %w", err)
		}
		return store, nil
	case config.BackendImgbb, "":
		client, err := NewClient(Config{
			Endpoint: cfg.UploadEndpoint,
			APIKey:   cfg.UploadAPIKey,
			Timeout:  cfg.UploadTimeout,
		}, WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("image host uploader: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.UploadBackend)
	}
}
