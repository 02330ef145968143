// Package s3blob stores signature images in an S3 bucket.
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/anggasct/inspectflow/pkg/awsconfig"
)

const scheme = "s3://"

// API is the subset of the S3 client the store uses
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store implements inspectflow.BlobStore on S3
type Store struct {
	client    API
	presigner *s3.PresignClient
	bucket    string
}

// New creates a store on an existing client
func New(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewFromConfig loads the AWS configuration and creates a store for bucket
func NewFromConfig(ctx context.Context, bucket string, opts awsconfig.Options) (*Store, error) {
	cfg, err := awsconfig.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := opts.BaseEndpoint(); ep != nil {
			o.BaseEndpoint = ep
			o.UsePathStyle = true
		}
	})
	s := New(client, bucket)
	s.presigner = s3.NewPresignClient(client)
	return s, nil
}

// Put uploads data under key and returns an s3:// reference
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put signature object %s: %w", key, err)
	}
	return scheme + s.bucket + "/" + key, nil
}

// Get downloads the object behind a reference returned by Put
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signature object %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// PresignGet returns a time-limited download URL for a signature reference.
// Only stores created with NewFromConfig can presign.
func (s *Store) PresignGet(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("s3blob: presigning requires a store created with NewFromConfig")
	}
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign get object: %w", err)
	}
	return req.URL, nil
}

// ParseRef splits an s3://bucket/key reference
func ParseRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, scheme)
	if !ok {
		return "", "", fmt.Errorf("s3blob: unsupported reference %q", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3blob: malformed reference %q", ref)
	}
	return bucket, key, nil
}
