package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection and upload settings.
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	UseSSL       bool
	Bucket       string
	Prefix       string
	SkipExisting bool
	DryRun       bool
}

// objectClient is the slice of the minio client the uploader needs.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, key, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Summary reports what an upload pass did.
type Summary struct {
	Total    int
	Uploaded int
	Skipped  int
	Bytes    int64
}

// Uploader copies collected files into a bucket.
type Uploader struct {
	client objectClient
	cfg    Config
	logger *slog.Logger
}

// NewUploader creates an uploader backed by a minio client.
func NewUploader(cfg Config, logger *slog.Logger) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object storage endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object storage credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return newUploader(client, cfg, logger), nil
}

func newUploader(client objectClient, cfg Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: client, cfg: cfg, logger: logger}
}

// Upload pushes the given files to the configured bucket. The bucket is
// created when missing. Each object carries sha256 and source size
// metadata; with SkipExisting, objects whose size and digest already
// match are left alone.
func (u *Uploader) Upload(ctx context.Context, files []File) (*Summary, error) {
	if !u.cfg.DryRun {
		if err := u.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}

	sum := &Summary{Total: len(files)}
	for _, f := range files {
		key := u.cfg.Prefix + f.Key

		sha, err := SHA256(f.Path)
		if err != nil {
			return sum, err
		}

		if u.cfg.SkipExisting {
			exists, err := u.objectMatches(ctx, key, f.Size, sha)
			if err != nil {
				return sum, err
			}
			if exists {
				u.logger.Info("skip", "key", key, "bytes", f.Size)
				sum.Skipped++
				continue
			}
		}

		u.logger.Info("upload", "key", key, "bytes", f.Size, "sha256", sha[:10], "dry_run", u.cfg.DryRun)
		if u.cfg.DryRun {
			sum.Uploaded++
			continue
		}

		_, err = u.client.FPutObject(ctx, u.cfg.Bucket, key, f.Path, minio.PutObjectOptions{
			UserMetadata: map[string]string{
				"sha256":    sha,
				"src-bytes": strconv.FormatInt(f.Size, 10),
			},
		})
		if err != nil {
			return sum, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		sum.Uploaded++
		sum.Bytes += f.Size
	}
	return sum, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", u.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.cfg.Bucket, minio.MakeBucketOptions{Region: u.cfg.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", u.cfg.Bucket, err)
	}
	return nil
}

// objectMatches reports whether the remote object already carries the
// same size and digest.
func (u *Uploader) objectMatches(ctx context.Context, key string, size int64, sha string) (bool, error) {
	info, err := u.client.StatObject(ctx, u.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	if info.Size != size {
		return false, nil
	}
	remote := info.UserMetadata["Sha256"]
	if remote == "" {
		remote = info.UserMetadata["sha256"]
	}
	return remote == sha, nil
}
