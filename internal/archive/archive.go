// Package archive keeps a copy of every submitted interior PDF in an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/colormuse/print-api/internal/domain/order"
)

var _ order.Archiver = (*Store)(nil)

// Config describes the target bucket.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Store uploads documents with PutObject.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds a Store. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, httpClient *http.Client, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.Wrap(order.ErrConfiguration, "archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "orders"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if httpClient != nil {
		opts = append(opts, config.WithHTTPClient(httpClient))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &Store{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// Key returns the object key for a job.
func (s *Store) Key(paymentOrderID, jobID string) string {
	return path.Join(s.prefix, paymentOrderID, jobID+".pdf")
}

// Archive uploads doc under the payment and job identifiers.
func (s *Store) Archive(ctx context.Context, paymentOrderID string, job *order.PrintJob, doc *order.Document) error {
	key := s.Key(paymentOrderID, job.ID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc.Data),
		ContentType:   aws.String("application/pdf"),
		ContentLength: aws.Int64(int64(len(doc.Data))),
		Metadata: map[string]string{
			"payment-order-id": paymentOrderID,
			"lulu-job-id":      job.ID,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}

	zctx.From(ctx).Debug("Archived interior",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(doc.Data)),
	)
	return nil
}
