// Package s3 stores uploaded images in an S3-compatible bucket and serves
// them from a public base URL.
package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Settings struct {
	Region        string
	Endpoint      string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type Store struct {
	client  ObjectAPI
	bucket  string
	baseURL string
	log     *zap.Logger
	now     func() time.Time
}

var _ repo.BlobStore = (*Store)(nil)

// New builds a client from s. A non-empty Endpoint switches to path-style
// addressing for MinIO and similar servers.
func New(ctx context.Context, s Settings, log *zap.Logger) (*Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if s.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, ""),
		))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
			o.UsePathStyle = true
		}
	})

	base := s.PublicBaseURL
	if base == "" {
		base = defaultBaseURL(s)
	}
	return NewWithClient(client, s.Bucket, base, log), nil
}

func NewWithClient(client ObjectAPI, bucket, publicBaseURL string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

// Upload never returns an error; failures are logged and reported via ok.
func (s *Store) Upload(ctx context.Context, src model.ImageSource) (model.Asset, bool) {
	body, err := src.Open()
	if err != nil {
		s.log.Warn("open upload source", zap.String("name", src.Name()), zap.Error(err))
		return model.Asset{}, false
	}
	defer body.Close()

	key := s.storageKey(src.Name())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(src.ContentType()),
	})
	if err != nil {
		s.log.Warn("s3 put object", zap.String("key", key), zap.Error(err))
		return model.Asset{}, false
	}
	return model.Asset{URL: s.baseURL + "/" + key}, true
}

func (s *Store) Delete(ctx context.Context, url string) error {
	key, ok := s.keyFromURL(url)
	if !ok {
		return fmt.Errorf("url %q is not served by bucket %s", url, s.bucket)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object %s: %w", key, err)
	}
	return nil
}

func (s *Store) storageKey(name string) string {
	d := s.now().UTC()
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("images/%d/%02d/%02d/%v%s", d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

func (s *Store) keyFromURL(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

func defaultBaseURL(s Settings) string {
	if s.Endpoint != "" {
		return strings.TrimRight(s.Endpoint, "/") + "/" + s.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.Bucket, s.Region)
}

var errNoBucket = errors.New("s3 bucket is not configured")

// Validate reports missing settings before any network call is made.
func (s Settings) Validate() error {
	if s.Bucket == "" {
		return errNoBucket
	}
	return nil
}
