package s3archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FitLedger/FitLedger/app/models"
)

// Client wraps the S3 client with ledger-archive functionality
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new S3 archive client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
	}

	log.Infof("[S3Archive] Initialized S3 client for bucket: %s", cfg.GetBucketName())
	return client, nil
}

// ArchiveOrders renders the given completed orders as CSV and uploads them
// under the monthly object key. Re-running for the same month overwrites the
// previous export with the same content.
func (c *Client) ArchiveOrders(ctx context.Context, month time.Time, orders []models.PaymentOrder) (string, error) {
	body, err := renderOrdersCSV(orders)
	if err != nil {
		return "", fmt.Errorf("failed to render ledger CSV: %w", err)
	}

	objectKey := c.config.GetObjectKey(month)
	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.GetBucketName()),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload ledger export %s: %w", objectKey, err)
	}

	log.Infof("[S3Archive] Uploaded %d orders to %s", len(orders), objectKey)
	return objectKey, nil
}

func renderOrdersCSV(orders []models.PaymentOrder) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"public_id", "user_id", "purpose", "amount", "currency", "status", "provider_txn_id", "completed_at"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, o := range orders {
		completedAt := ""
		if o.CompletedAt != nil {
			completedAt = o.CompletedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			o.PublicID,
			strconv.FormatUint(uint64(o.UserID), 10),
			o.Purpose,
			strconv.FormatFloat(o.Amount, 'f', 2, 64),
			o.Currency,
			o.Status,
			o.ProviderTxnID,
			completedAt,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
