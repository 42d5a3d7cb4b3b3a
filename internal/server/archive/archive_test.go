package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/models"
	"github.com/passlink/passlink/internal/server/repositories/memory"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type capturedPut struct {
	key  string
	body []byte
}

func withStubbedS3(t *testing.T, putErr error) *[]capturedPut {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	origPut := putObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
		putObject = origPut
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	var uploads []capturedPut
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		if putErr != nil {
			return nil, putErr
		}
		body, err := io.ReadAll(in.Body)
		if err != nil {
			t.Fatalf("reading upload body: %v", err)
		}
		uploads = append(uploads, capturedPut{key: aws.ToString(in.Key), body: body})
		return &s3.PutObjectOutput{}, nil
	}
	return &uploads
}

func seedAuditRows(t *testing.T, store *memory.Store, n int, ts time.Time) {
	t.Helper()
	repo := store.Audit(store.Handle())
	for i := 0; i < n; i++ {
		err := repo.Append(context.Background(), &models.AuditEvent{
			Timestamp: ts,
			Type:      "login_failed",
			Subject:   "alice@example.com",
			Metadata:  map[string]string{"ip": "203.0.113.0"},
		})
		require.NoError(t, err)
	}
}

func TestExport_UploadsAgedRowsAsNDJSON(t *testing.T) {
	store := memory.NewStore()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	old := time.Now().Add(-cfg.AuditExportAge - time.Hour)
	seedAuditRows(t, store, 3, old)
	// fresh rows stay out of the archive
	seedAuditRows(t, store, 2, time.Now())

	uploads := withStubbedS3(t, nil)

	n, err := NewExporter(store, cfg, testLogger()).Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, *uploads, 1)
	put := (*uploads)[0]
	assert.Contains(t, put.key, "audit/")
	assert.Contains(t, put.key, ".ndjson")

	var lines int
	scanner := bufio.NewScanner(bytes.NewReader(put.body))
	for scanner.Scan() {
		var event models.AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		assert.Equal(t, "login_failed", event.Type)
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestExport_NothingToExport(t *testing.T) {
	store := memory.NewStore()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	uploads := withStubbedS3(t, nil)

	n, err := NewExporter(store, cfg, testLogger()).Export(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, *uploads)
}

func TestExport_UploadFailureSurfaces(t *testing.T) {
	store := memory.NewStore()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	seedAuditRows(t, store, 1, time.Now().Add(-cfg.AuditExportAge-time.Hour))

	withStubbedS3(t, errors.New("bucket gone"))

	_, err := NewExporter(store, cfg, testLogger()).Export(context.Background())
	assert.Error(t, err)
}
