package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kthezelais/budget-tracker/internal/config"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/rs/zerolog/log"
)

// ObjectPutter is the subset of the S3 client used by the exporter
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Snapshot is the JSON document written for each backup
type Snapshot struct {
	ExportedAt     time.Time               `json:"exported_at"`
	Transactions   []*domain.Transaction   `json:"transactions"`
	MonthlyBudgets []*domain.MonthlyBudget `json:"monthly_budgets"`
	Settings       []*domain.Setting       `json:"settings"`
}

// Result describes a completed backup
type Result struct {
	Bucket         string    `json:"bucket"`
	Key            string    `json:"key"`
	Size           int       `json:"size"`
	Transactions   int       `json:"transactions"`
	MonthlyBudgets int       `json:"monthly_budgets"`
	ExportedAt     time.Time `json:"exported_at"`
}

// Exporter writes ledger snapshots to S3-compatible storage
type Exporter struct {
	client          ObjectPutter
	bucket          string
	prefix          string
	transactionRepo domain.TransactionRepository
	budgetRepo      domain.MonthlyBudgetRepository
	settingRepo     domain.SettingRepository
	now             func() time.Time
}

// NewExporter creates an Exporter over an existing S3 client
func NewExporter(client ObjectPutter, bucket, prefix string, transactionRepo domain.TransactionRepository, budgetRepo domain.MonthlyBudgetRepository, settingRepo domain.SettingRepository) *Exporter {
	return &Exporter{
		client:          client,
		bucket:          bucket,
		prefix:          prefix,
		transactionRepo: transactionRepo,
		budgetRepo:      budgetRepo,
		settingRepo:     settingRepo,
		now:             time.Now,
	}
}

// NewS3Client builds an S3 client from configuration, with optional endpoint
// override for MinIO/LocalStack
func NewS3Client(ctx context.Context, s3cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s3cfg.Region),
	}

	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if s3cfg.Endpoint != "" {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		}), nil
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Export snapshots the whole ledger and uploads it as
// <prefix>/ledger-<timestamp>.json. Secrets are left out of the snapshot.
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	transactions, err := e.transactionRepo.List(ctx, domain.TransactionFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	budgets, err := e.budgetRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly budgets: %w", err)
	}
	settings, err := e.settingRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	exportedAt := e.now().UTC()
	snapshot := Snapshot{
		ExportedAt:     exportedAt,
		Transactions:   transactions,
		MonthlyBudgets: budgets,
		Settings:       make([]*domain.Setting, 0, len(settings)),
	}
	for _, s := range settings {
		if s.Key == domain.SettingAPIKey {
			continue
		}
		snapshot.Settings = append(snapshot.Settings, s)
	}

	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := path.Join(e.prefix, fmt.Sprintf("ledger-%s.json", exportedAt.Format("20060102T150405Z")))
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}

	log.Info().
		Str("bucket", e.bucket).
		Str("key", key).
		Int("transactions", len(transactions)).
		Msg("Ledger backup uploaded")

	return &Result{
		Bucket:         e.bucket,
		Key:            key,
		Size:           len(body),
		Transactions:   len(transactions),
		MonthlyBudgets: len(budgets),
		ExportedAt:     exportedAt,
	}, nil
}
