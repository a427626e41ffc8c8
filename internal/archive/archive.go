// Package archive uploads finished runs to S3-compatible object storage so
// the approval flow outside the orchestrator can pick up final artifacts.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"missionflow/internal/config"
	"missionflow/internal/logging"
	"missionflow/internal/pipeline"
)

// Config locates the bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// FromSettings converts the archive section of the application config.
func FromSettings(c config.ArchiveConfig) Config {
	return Config{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Region:    c.Region,
		UseSSL:    c.UseSSL,
		Bucket:    c.Bucket,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// objectStore is the subset of *minio.Client the archiver uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver writes run artifacts under runs/<id>/.
type Archiver struct {
	client objectStore
	bucket string
	region string
}

// New creates an Archiver backed by a MinIO client.
func New(cfg Config) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Archiver{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func newWithClient(client objectStore, bucket, region string) *Archiver {
	return &Archiver{client: client, bucket: bucket, region: region}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	logging.Archive("Creating bucket %s", a.bucket)
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", a.bucket, err)
	}
	return nil
}

// RunKey returns the object key of a run's record.
func RunKey(runID string) string { return path.Join("runs", runID, "run.json") }

// FinalKey returns the object key of a run's final output.
func FinalKey(runID string) string { return path.Join("runs", runID, "final.md") }

// ArchiveRun uploads the run record and, for completed runs, the final
// output. It returns the keys written.
func (a *Archiver) ArchiveRun(ctx context.Context, run *pipeline.PipelineRun) ([]string, error) {
	if run == nil || run.ID == "" {
		return nil, errors.New("run has no id")
	}

	record, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}

	var keys []string
	if err := a.put(ctx, RunKey(run.ID), record, "application/json"); err != nil {
		return keys, err
	}
	keys = append(keys, RunKey(run.ID))

	if run.Status == pipeline.RunCompleted {
		if err := a.put(ctx, FinalKey(run.ID), []byte(FinalDocument(run)), "text/markdown; charset=utf-8"); err != nil {
			return keys, err
		}
		keys = append(keys, FinalKey(run.ID))
	}

	logging.Archive("Archived run %s to %s (%d objects)", run.ID, a.bucket, len(keys))
	return keys, nil
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		logging.ArchiveError("Failed to upload %s: %v", key, err)
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// FinalDocument renders the markdown handed to the approval flow.
func FinalDocument(run *pipeline.PipelineRun) string {
	var b strings.Builder
	title := run.Mission
	if title == "" {
		title = "Run " + run.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Run: `%s`\n", run.ID)
	fmt.Fprintf(&b, "- Agents: %s\n", strings.Join(run.RoleIDs(), " → "))
	if !run.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "- Completed: %s\n", run.CompletedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(run.FinalOutput()))
	b.WriteString("\n")
	return b.String()
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
