// Package blobstore writes crawled case documents to an S3-compatible
// bucket (AWS S3 or MinIO). Keys map to object keys directly.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Store struct {
	client *s3.Client
	bucket string
}

type Config struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	PathStyle bool   `json:"path_style"`
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Write stores contents under key. When overwrite is false and the key
// already exists, nothing is written and (false, nil) is returned: a
// re-fetch of unchanged content is a normal skip, not an error.
func (s *Store) Write(ctx context.Context, key string, contents []byte, overwrite bool) (bool, error) {
	if !overwrite {
		// emulate create-only via Head first
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err == nil {
			slog.DebugContext(ctx, "blob already exists, skipping", "key", key)
			return false, nil
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(contents),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
