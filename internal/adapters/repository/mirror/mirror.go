// Package mirror copies each accepted telemetry row to secondary storage.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/okian/trialstats/internal/domain/model"
	"github.com/okian/trialstats/pkg/metrics"
)

const (
	defaultRegion  = "us-east-1"
	defaultPrefix  = "telemetry"
	defaultTimeout = 5 * time.Second
	contentType    = "application/json"
)

// ErrMissingBucket is returned when an S3 mirror has no bucket.
var ErrMissingBucket = errors.New("s3 bucket required")

// Mirror receives a copy of every row the primary store accepted.
type Mirror interface {
	Name() string
	Put(ctx context.Context, row model.Row) error
}

// ObjectAPI is the subset of the S3 client the mirror uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds S3 connection parameters.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional; set for MinIO or other S3-compatible services
	Prefix          string
	PathStyle       bool
	AccessKeyID     string // optional; falls back to the default credentials chain
	SecretAccessKey string
	Timeout         time.Duration
}

// S3 writes one JSON object per row.
type S3 struct {
	api     ObjectAPI
	bucket  string
	prefix  string
	timeout time.Duration

	now   func() time.Time
	newID func() string
}

// NewS3 builds an S3 mirror using the AWS default config chain.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithAPI(client, cfg), nil
}

// NewS3WithAPI builds an S3 mirror over an existing client.
func NewS3WithAPI(api ObjectAPI, cfg Config) *S3 {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &S3{
		api:     api,
		bucket:  cfg.Bucket,
		prefix:  prefix,
		timeout: timeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (m *S3) Name() string { return "s3" }

// Key returns the object key for a row written at t.
func (m *S3) Key(t time.Time, id string) string {
	t = t.UTC()
	return path.Join(m.prefix, t.Format("2006"), t.Format("01"), t.Format("02"),
		fmt.Sprintf("%d-%s.json", t.UnixNano(), id))
}

// Put uploads row as a JSON object keyed by canonical field name.
func (m *S3) Put(ctx context.Context, row model.Row) error {
	body, err := json.Marshal(row.Map())
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	key := m.Key(m.now(), m.newID())
	start := time.Now()
	_, err = m.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	metrics.RecordMirrorLatency(m.Name(), float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordMirrorError(m.Name())
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
