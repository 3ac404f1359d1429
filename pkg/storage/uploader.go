package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ArtifactUploader pushes analysis outputs to an S3 bucket under a key
// prefix.
type ArtifactUploader struct {
	client S3Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewArtifactUploader creates an uploader for the bucket and prefix.
func NewArtifactUploader(client S3Client, bucket, prefix string, logger *zap.Logger) *ArtifactUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactUploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// UploadFile stores one local file under the configured prefix.
func (u *ArtifactUploader) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	key := filepath.Base(path)
	if u.prefix != "" {
		key = u.prefix + "/" + key
	}

	if err := u.client.Upload(ctx, u.bucket, key, f); err != nil {
		return "", err
	}
	u.logger.Info("uploaded artifact",
		zap.String("bucket", u.bucket),
		zap.String("key", key))
	return key, nil
}

// UploadDirectory stores every JSON artifact in a directory. Files that
// fail to upload are reported but do not stop the remaining uploads.
func (u *ArtifactUploader) UploadDirectory(ctx context.Context, dir string) (uploaded int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := u.UploadFile(ctx, filepath.Join(dir, entry.Name())); err != nil {
			u.logger.Error("artifact upload failed",
				zap.String("file", entry.Name()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uploaded++
	}
	return uploaded, firstErr
}
