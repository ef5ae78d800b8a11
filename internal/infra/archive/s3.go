// Package archive copies published documents and exports to S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// Options configures an S3 archive.
type Options struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	Bucket         string
	ForcePathStyle bool
	URLTTL         time.Duration
}

// S3 stores objects in a single bucket.
type S3 struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// NewS3 builds a client with static credentials. Endpoint may be empty for
// AWS itself or a host[:port] / URL for compatible stores.
func NewS3(ctx context.Context, opts Options) (*S3, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("S3_BUCKET is required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	ttl := opts.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3{
		api:     client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		ttl:     ttl,
	}, nil
}

// CardKey is the object key of a published card document.
func CardKey(shareID string) string {
	return "cards/" + shareID + ".json"
}

// ExportKey is the object key of an export file.
func ExportKey(name string) string {
	return "exports/" + name
}

// PutCard stores the card document under CardKey.
func (a *S3) PutCard(ctx context.Context, card *domain.PublishedCard) error {
	if err := a.put(ctx, CardKey(card.ShareID), card.CardData, map[string]string{
		"customer-id": fmt.Sprint(card.CustomerID),
	}); err != nil {
		return fmt.Errorf("archive card %s: %w", card.ShareID, err)
	}
	return nil
}

// PutExport stores an export and returns a presigned download URL.
func (a *S3) PutExport(ctx context.Context, name string, body []byte) (string, error) {
	key := ExportKey(name)
	if err := a.put(ctx, key, body, nil); err != nil {
		return "", fmt.Errorf("archive export: %w", err)
	}

	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
	}, func(o *s3.PresignOptions) {
		o.Expires = a.ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign export: %w", err)
	}
	return req.URL, nil
}

func (a *S3) put(ctx context.Context, key string, body []byte, meta map[string]string) error {
	sum := sha256.Sum256(body)
	checksum := base64.StdEncoding.EncodeToString(sum[:])
	size := int64(len(body))

	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            &a.bucket,
		Key:               &key,
		Body:              bytes.NewReader(body),
		ContentLength:     &size,
		ContentType:       aws.String("application/json"),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    &checksum,
		Metadata:          meta,
	})
	return err
}

// Nop keeps nothing. Exports are then served inline only.
type Nop struct{}

func (Nop) PutCard(context.Context, *domain.PublishedCard) error { return nil }

func (Nop) PutExport(context.Context, string, []byte) (string, error) { return "", nil }
