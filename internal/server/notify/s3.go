package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectPutter is the subset of *s3.Client used by the mail drop.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// NewS3Client builds a client for an S3-compatible endpoint (MinIO in
// development) with static credentials and path-style addressing.
func NewS3Client(ctx context.Context, region, user, password, endpoint string) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(user, password, "")),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Notifier is a mail drop: every message is stored as an .eml object under
// outbox/<yyyy>/<mm>/<dd>/ for a separate relay to deliver.
type S3Notifier struct {
	client ObjectPutter
	bucket string
	from   string
	now    func() time.Time
}

func NewS3Notifier(client ObjectPutter, bucket, from string) *S3Notifier {
	return &S3Notifier{client: client, bucket: bucket, from: from, now: time.Now}
}

func outboxKey(t time.Time, id string) string {
	t = t.UTC()
	return fmt.Sprintf("outbox/%04d/%02d/%02d/%s.eml", t.Year(), t.Month(), t.Day(), id)
}

func (n *S3Notifier) Send(ctx context.Context, msg Message) error {
	now := n.now()
	id := uuid.NewString()

	body, err := rfc5322(n.from, msg, now, id+"@"+domainOf(n.from))
	if err != nil {
		return err
	}

	_, err = n.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(n.bucket),
		Key:         aws.String(outboxKey(now, id)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("message/rfc822"),
	})
	if err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}
