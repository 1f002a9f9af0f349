// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func init() {
	Register(types.StorageTypeS3, NewS3)
}

// S3 implements BackendStorage for S3-compatible storage
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3 creates an S3 backend
func NewS3(cfg types.BackendConfig) (types.BackendStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required for S3 backend")
	}

	opts := []func(*config.LoadOptions) error{}

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

func (s *S3) Type() types.StorageType {
	return types.StorageTypeS3
}

func (s *S3) Write(ctx context.Context, key string, data io.Reader, size int64) error {
	// For simplicity, buffer the data (production should use multipart for large objects)
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *S3) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
	}
	return out.Body, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3) Size(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head object: %w", err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

func (s *S3) WriteChunk(ctx context.Context, uploadID string, index int64, data io.Reader, size int64) error {
	return s.Write(ctx, utils.ChunkKey(uploadID, index), data, size)
}

// MergeChunks downloads the staged chunks in index order and uploads the
// concatenation to destKey.
// For simplicity, the assembly is buffered (production should use S3
// multipart upload with UploadPartCopy for large objects).
func (s *S3) MergeChunks(ctx context.Context, uploadID string, totalChunks int64, destKey string) error {
	buf := utils.SyncPoolGetBuffer()
	defer utils.SyncPoolPutBuffer(buf)

	for i := int64(0); i < totalChunks; i++ {
		body, err := s.Read(ctx, utils.ChunkKey(uploadID, i))
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", i, err)
		}
		_, err = io.Copy(buf, body)
		body.Close()
		if err != nil {
			return fmt.Errorf("buffer chunk %d: %w", i, err)
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(destKey),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return fmt.Errorf("put merged object: %w", err)
	}
	return nil
}

func (s *S3) PurgeChunks(ctx context.Context, uploadID string) error {
	prefix := fmt.Sprintf("chunks/%s/", uploadID)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list chunks: %w", err)
		}
		for _, obj := range out.Contents {
			if err := s.Delete(ctx, *obj.Key); err != nil {
				return err
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (s *S3) FileURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

func (s *S3) Close() error {
	return nil
}
