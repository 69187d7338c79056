package export

import (
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/warp/booking-engine/report"
)

const uploadTimeout = 2 * time.Minute

// GCSExporter uploads the CSV to a bucket.
type GCSExporter struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSExporter creates a storage client. An empty credentialsFile uses
// Application Default Credentials.
func NewGCSExporter(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSExporter, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSExporter{client: client, bucket: bucket, prefix: prefix}, nil
}

func (e *GCSExporter) Name() string { return "gcs" }

// Export uploads the summary and returns its gs:// URI.
func (e *GCSExporter) Export(ctx context.Context, s report.Summary) (string, error) {
	objectName := path.Join(e.prefix, ObjectName(s))

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := e.client.Bucket(e.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/csv"
	if err := WriteCSV(w, s); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write csv to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", e.bucket, objectName), nil
}

func (e *GCSExporter) Close() error { return e.client.Close() }
