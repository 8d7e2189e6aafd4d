package avatar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2beens/healthtracker/internal/telemetry/tracing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
)

var _ Storage = (*S3Storage)(nil)

// ability to replace the aws config loader (for unit testing)
var loadDefaultAWSConfig = config.LoadDefaultConfig

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Params struct {
	Region       string
	BaseEndpoint string
	Bucket       string
	AccessKey    string
	SecretKey    string
	// PublicBaseURL, when set, is the prefix of returned references; otherwise they are s3:// URIs.
	PublicBaseURL string
	HTTPClient    *http.Client
}

// S3Storage uploads pictures to an S3 compatible bucket (AWS, MinIO).
type S3Storage struct {
	client        objectPutter
	bucket        string
	publicBaseURL string
}

func NewS3Storage(ctx context.Context, params S3Params) (*S3Storage, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not set")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	if params.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.AccessKey, params.SecretKey, ""),
		))
	}

	if params.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(params.HTTPClient))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(params.BaseEndpoint)
			// MinIO and friends serve buckets under the path, not a subdomain
			o.UsePathStyle = true
		}
	})

	return newS3Storage(client, params.Bucket, params.PublicBaseURL), nil
}

func newS3Storage(client objectPutter, bucket, publicBaseURL string) *S3Storage {
	return &S3Storage{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *S3Storage) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "avatar.s3.put")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("avatar.key", key),
		attribute.Int64("avatar.size", size),
	)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("%w: put object %s: %w", ErrStorageUnavailable, key, err)
	}

	return s.ref(key), nil
}

func (s *S3Storage) ref(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return "s3://" + s.bucket + "/" + key
}
