package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3BlobStore keeps objects in a single bucket. Keys map one to one onto
// object keys.
type S3BlobStore struct {
	client *s3.Client
	bucket string
}

// NewS3BlobStore builds a client from the default AWS credential chain.
// endpoint overrides the service URL for S3-compatible stores such as MinIO.
func NewS3BlobStore(ctx context.Context, bucket, endpoint string) (*S3BlobStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	base := cfg.BaseEndpoint
	if endpoint != "" {
		base = aws.String(endpoint)
	}

	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: base,
		UsePathStyle: true,
	})
	return &S3BlobStore{client: client, bucket: bucket}, nil
}

func (s *S3BlobStore) Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}

	return &Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *S3BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}

	obj := &Object{
		Key:         key,
		ContentType: aws.ToString(resp.ContentType),
		Size:        aws.ToInt64(resp.ContentLength),
	}
	if resp.LastModified != nil {
		obj.CreatedAt = *resp.LastModified
	}
	return resp.Body, obj, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
