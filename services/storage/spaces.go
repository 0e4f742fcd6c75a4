package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// SlipStore keeps uploaded bank-transfer slips in an S3-compatible bucket.
// The rest of the system treats a stored slip as an opaque key.
type SlipStore struct {
	s3Client *s3.S3
	bucket   string
}

// Config holds configuration for the slip store
type Config struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// NewSlipStore creates a new slip store over an S3-compatible endpoint
func NewSlipStore(config Config) (*SlipStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		),
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage session: %w", err)
	}

	return &SlipStore{
		s3Client: s3.New(sess),
		bucket:   config.Bucket,
	}, nil
}

// Upload stores one slip image and returns its storage key. Slips are
// payment evidence, so objects stay private; operators fetch them through
// presigned URLs.
func (s *SlipStore) Upload(ctx context.Context, paymentID string, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("slips/%s/%s", paymentID, uuid.NewString())

	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        aws.ReadSeekCloser(bytes.NewReader(data)),
		ACL:         aws.String("private"),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload slip: %w", err)
	}

	return key, nil
}

// PresignedURL returns a time-limited download URL for an operator viewing
// a slip in the reconciliation screen.
func (s *SlipStore) PresignedURL(key string, expiry time.Duration) (string, error) {
	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign slip url: %w", err)
	}
	return url, nil
}

// Delete removes a stored slip
func (s *SlipStore) Delete(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete slip: %w", err)
	}
	return nil
}
