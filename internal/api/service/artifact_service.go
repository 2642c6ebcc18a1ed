package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"atelier/internal/comfy"
)

// ImageFetcher is the slice of the backend client artifact mirroring
// needs: download a produced image or point at it directly.
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref comfy.ImageRef) ([]byte, error)
	ViewURL(ref comfy.ImageRef) string
}

// ArtifactConfig configures the S3-compatible output store. An empty
// endpoint disables mirroring entirely.
type ArtifactConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// ArtifactService mirrors generation outputs from the serving deployment
// into object storage, so images survive backend restarts and cache
// eviction. Mirroring is best-effort: a failed upload falls back to the
// deployment's own view URL.
type ArtifactService struct {
	client *minio.Client
	cfg    ArtifactConfig
	logger zerolog.Logger
}

func NewArtifactService(cfg ArtifactConfig, logger zerolog.Logger) (*ArtifactService, error) {
	slf := &ArtifactService{cfg: cfg, logger: logger}
	if cfg.Endpoint == "" {
		logger.Info().Msg("Artifact mirroring disabled, outputs will reference deployment URLs")
		return slf, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	slf.client = client

	if err := slf.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	return slf, nil
}

// Enabled reports whether outputs are mirrored into object storage.
func (slf *ArtifactService) Enabled() bool {
	return slf.client != nil
}

// Mirror uploads each produced image under keyPrefix and returns one URL
// per image. Disabled or failed uploads yield the deployment's view URL
// instead so the caller always gets a usable link per image.
func (slf *ArtifactService) Mirror(ctx context.Context, fetcher ImageFetcher, refs []comfy.ImageRef, keyPrefix string) []string {
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !slf.Enabled() {
			urls = append(urls, fetcher.ViewURL(ref))
			continue
		}

		data, err := fetcher.FetchImage(ctx, ref)
		if err != nil {
			slf.logger.Warn().Err(err).Str("filename", ref.Filename).Msg("Failed to fetch output image, keeping deployment URL")
			urls = append(urls, fetcher.ViewURL(ref))
			continue
		}

		key := keyPrefix + "/" + ref.Filename
		_, err = slf.client.PutObject(ctx, slf.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "image/png"})
		if err != nil {
			slf.logger.Warn().Err(err).Str("key", key).Msg("Failed to upload output image, keeping deployment URL")
			urls = append(urls, fetcher.ViewURL(ref))
			continue
		}

		urls = append(urls, slf.publicURL(key))
	}
	return urls
}

func (slf *ArtifactService) publicURL(key string) string {
	if slf.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(slf.cfg.PublicBaseURL, "/"), slf.cfg.Bucket, key)
	}
	scheme := "http"
	if slf.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, slf.cfg.Endpoint, slf.cfg.Bucket, key)
}

func (slf *ArtifactService) ensureBucket(ctx context.Context) error {
	exists, err := slf.client.BucketExists(ctx, slf.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := slf.client.MakeBucket(ctx, slf.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", slf.cfg.Bucket, err)
	}

	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, slf.cfg.Bucket)
	if err := slf.client.SetBucketPolicy(ctx, slf.cfg.Bucket, policy); err != nil {
		slf.logger.Warn().Err(err).Msg("Failed to set public read policy on output bucket")
	}
	slf.logger.Info().Str("bucket", slf.cfg.Bucket).Msg("Created output bucket")
	return nil
}
