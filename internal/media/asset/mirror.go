// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package asset

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/metrics"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MirrorConfig configures an S3-compatible bucket.
type MirrorConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
}

// Mirror is a Store backed by an S3-compatible bucket. Paths are mapped to
// object keys with ObjectKey.
type Mirror struct {
	client *minio.Client
	bucket string
}

var _ Store = (*Mirror)(nil)

// NewMirror connects to the endpoint without contacting it. Call EnsureBucket
// before first use.
func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Mirror{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	logger := log.WithComponent("asset")
	logger.Info().Str(log.FieldEvent, "mirror.bucket_created").Str("bucket", m.bucket).Msg("created mirror bucket")
	return nil
}

// ObjectKey maps a filesystem path onto an object key.
func ObjectKey(p string) string {
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "/")
}

func (m *Mirror) Stat(ctx context.Context, p string) (Info, error) {
	oi, err := m.client.StatObject(ctx, m.bucket, ObjectKey(p), minio.StatObjectOptions{})
	if err != nil {
		return Info{}, translate(err, p)
	}
	return Info{Path: p, Size: oi.Size, ModTime: oi.LastModified}, nil
}

func (m *Mirror) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if _, err := m.Stat(ctx, p); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, ObjectKey(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, p)
	}
	return obj, nil
}

func (m *Mirror) Write(ctx context.Context, p string, r io.Reader, size int64, policy op.OverwritePolicy) error {
	if policy == op.OverwriteForbid {
		if _, err := m.Stat(ctx, p); err == nil {
			return op.Fail(op.FailPathConflict, p, "object exists and overwrite is forbidden")
		}
	}
	contentType := mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, ObjectKey(p), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		metrics.IncMirrorUpload("error")
		return fmt.Errorf("upload %s: %w", p, err)
	}
	metrics.IncMirrorUpload("ok")
	return nil
}

// Replace uploads the local file src under the key for dst.
func (m *Mirror) Replace(ctx context.Context, src, dst string, policy op.OverwritePolicy) error {
	f, err := os.Open(src) // #nosec G304 -- local output path
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	return m.Write(ctx, dst, f, fi.Size(), policy)
}

func translate(err error, p string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", p, fs.ErrNotExist)
	}
	return fmt.Errorf("%s: %w", p, err)
}
