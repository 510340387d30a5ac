package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	sc "github.com/dmitrijs2005/nocgateway/internal/server/config"
)

// PresignExpiry is the lifetime of signed download URLs.
const PresignExpiry = 15 * time.Minute

// objectClient is the part of *s3.Client the router uses.
type objectClient interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newObjectClient = func(c *s3.Client) objectClient {
		return c
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Object describes a stored object. Body is set only on download and must
// be closed by the caller.
type Object struct {
	Bucket      string        `json:"bucket"`
	Key         string        `json:"key"`
	Size        int64         `json:"size"`
	ContentType string        `json:"content_type,omitempty"`
	Body        io.ReadCloser `json:"-"`
}

// SignedURL is a time limited download link.
type SignedURL struct {
	URL       string    `json:"signedURL"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StorageService routes object reads and writes to S3 compatible storage.
// Every key is stored under the caller's tenant id.
type StorageService struct {
	config  *sc.Config
	buckets map[string]struct{}
	now     func() time.Time
}

func NewStorageService(cfg *sc.Config) *StorageService {
	buckets := make(map[string]struct{}, len(cfg.StorageBuckets))
	for _, b := range cfg.StorageBuckets {
		buckets[b] = struct{}{}
	}
	return &StorageService{config: cfg, buckets: buckets, now: time.Now}
}

func (s *StorageService) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// ObjectKey validates bucket and key and returns the tenant prefixed key.
func (s *StorageService) ObjectKey(id auth.Identity, bucket, key string) (string, error) {
	if _, ok := s.buckets[bucket]; !ok {
		return "", fmt.Errorf("%w: bucket %s", common.ErrRelationNotFound, bucket)
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: object key is required", common.ErrValidation)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("%w: invalid object key", common.ErrValidation)
		}
	}
	return path.Join(id.TenantID, key), nil
}

// Upload stores body under bucket/key.
func (s *StorageService) Upload(ctx context.Context, id auth.Identity, bucket, key, contentType string, body io.Reader) (*Object, error) {
	if id.Role == auth.RoleViewer {
		return nil, fmt.Errorf("%w: viewers cannot upload objects", common.ErrForbidden)
	}
	fullKey, err := s.ObjectKey(id, bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable body: %w", common.ErrValidation, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	_, err = newObjectClient(client).PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	return &Object{Bucket: bucket, Key: fullKey, Size: int64(len(data)), ContentType: contentType}, nil
}

// Download opens bucket/key for reading.
func (s *StorageService) Download(ctx context.Context, id auth.Identity, bucket, key string) (*Object, error) {
	fullKey, err := s.ObjectKey(id, bucket, key)
	if err != nil {
		return nil, err
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := newObjectClient(client).GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noKey) || errors.As(err, &notFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return &Object{
		Bucket:      bucket,
		Key:         fullKey,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Body:        out.Body,
	}, nil
}

// Sign returns a presigned GET URL for bucket/key.
func (s *StorageService) Sign(ctx context.Context, id auth.Identity, bucket, key string) (*SignedURL, error) {
	fullKey, err := s.ObjectKey(id, bucket, key)
	if err != nil {
		return nil, err
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(fullKey),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return nil, err
	}

	return &SignedURL{URL: req.URL, ExpiresAt: s.now().Add(PresignExpiry)}, nil
}
