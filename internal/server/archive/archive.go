// Package archive exports aged audit rows to object storage. The export
// is copy-only: the rows stay in the database, so a half-finished upload
// never loses audit history, and re-running the job re-exports at most
// one overlapping batch.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

const exportBatchSize = 1000

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
)

// Exporter writes audit batches as NDJSON objects.
type Exporter struct {
	store  repomanager.Store
	config *config.Config
	logger logging.Logger
	now    func() time.Time
}

// NewExporter constructs an Exporter.
func NewExporter(store repomanager.Store, cfg *config.Config, logger logging.Logger) *Exporter {
	return &Exporter{
		store:  store,
		config: cfg,
		logger: logger.With("module", "archive"),
		now:    time.Now,
	}
}

func (e *Exporter) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(e.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			e.config.S3RootUser, e.config.S3RootPassword, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading object storage config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if e.config.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(e.config.S3BaseEndpoint)
		}
		o.UsePathStyle = true
	})
	return client, nil
}

func objectKey(cutoff time.Time, afterID int64) string {
	return fmt.Sprintf("audit/%s/after-%d.ndjson", cutoff.UTC().Format("2006/01/02"), afterID)
}

// Export uploads every audit row older than the configured age, in
// batches keyed by their position in the log, and reports how many rows
// went out.
func (e *Exporter) Export(ctx context.Context) (int64, error) {
	client, err := e.getClient(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := e.now().Add(-e.config.AuditExportAge)
	repo := e.store.Audit(e.store.Handle())

	var exported int64
	var afterID int64
	for {
		batch, err := repo.SelectBefore(ctx, cutoff, afterID, exportBatchSize)
		if err != nil {
			return exported, fmt.Errorf("selecting audit batch: %w", err)
		}
		if len(batch) == 0 {
			return exported, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, event := range batch {
			if err := enc.Encode(event); err != nil {
				return exported, fmt.Errorf("encoding audit event %d: %w", event.ID, err)
			}
		}

		key := objectKey(cutoff, afterID)
		_, err = putObject(client, ctx, &s3.PutObjectInput{
			Bucket:      aws.String(e.config.S3Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return exported, fmt.Errorf("uploading %s: %w", key, err)
		}

		exported += int64(len(batch))
		afterID = batch[len(batch)-1].ID
		e.logger.Info(ctx, "exported audit batch", "key", key, "rows", len(batch))
	}
}
