package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionflow/internal/config"
	"missionflow/internal/pipeline"
	"missionflow/internal/roles"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.failPut != nil {
		return minio.UploadInfo{}, f.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[bucket+"/"+key] = data
	f.types[bucket+"/"+key] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func completedRun() *pipeline.PipelineRun {
	return &pipeline.PipelineRun{
		ID:          "run-42",
		Mission:     "Generate 50 leads/month for a Montréal bistro",
		Status:      pipeline.RunCompleted,
		CompletedAt: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		Steps: []*pipeline.PipelineStep{
			{Position: 0, Role: roles.AgentRole{ID: "scraper"}, Status: pipeline.StepCompleted, Output: "leads"},
			{Position: 1, Role: roles.AgentRole{ID: "publisher"}, Status: pipeline.StepCompleted, Output: "Two posts scheduled."},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "runs"}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"no endpoint": func(c *Config) { c.Endpoint = " " },
		"scheme":      func(c *Config) { c.Endpoint = "http://localhost:9000" },
		"no access":   func(c *Config) { c.AccessKey = "" },
		"no secret":   func(c *Config) { c.SecretKey = "" },
		"no bucket":   func(c *Config) { c.Bucket = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.ArchiveConfig{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s", Region: "ca-central-1", UseSSL: true, Bucket: "b"})
	assert.Equal(t, Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s", Region: "ca-central-1", UseSSL: true, Bucket: "b"}, cfg)

	a, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "b", a.bucket)
}

func TestEnsureBucket(t *testing.T) {
	objects := newFakeObjects()
	a := newWithClient(objects, "missionflow-runs", "us-east-1")
	require.NoError(t, a.EnsureBucket(context.Background()))
	assert.True(t, objects.buckets["missionflow-runs"])
	require.NoError(t, a.EnsureBucket(context.Background()))
}

func TestArchiveCompletedRun(t *testing.T) {
	objects := newFakeObjects()
	a := newWithClient(objects, "runs", "")

	keys, err := a.ArchiveRun(context.Background(), completedRun())
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/run-42/run.json", "runs/run-42/final.md"}, keys)

	var decoded pipeline.PipelineRun
	require.NoError(t, json.Unmarshal(objects.objects["runs/runs/run-42/run.json"], &decoded))
	assert.Equal(t, "run-42", decoded.ID)
	assert.Equal(t, "application/json", objects.types["runs/runs/run-42/run.json"])

	final := string(objects.objects["runs/runs/run-42/final.md"])
	assert.Contains(t, final, "# Generate 50 leads/month for a Montréal bistro")
	assert.Contains(t, final, "scraper → publisher")
	assert.Contains(t, final, "Two posts scheduled.")
}

func TestArchiveFailedRunSkipsFinal(t *testing.T) {
	objects := newFakeObjects()
	a := newWithClient(objects, "runs", "")

	run := completedRun()
	run.Status = pipeline.RunFailed
	keys, err := a.ArchiveRun(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/run-42/run.json"}, keys)
	assert.NotContains(t, objects.objects, "runs/runs/run-42/final.md")
}

func TestArchiveUploadError(t *testing.T) {
	objects := newFakeObjects()
	objects.failPut = errors.New("connection refused")
	a := newWithClient(objects, "runs", "")

	keys, err := a.ArchiveRun(context.Background(), completedRun())
	assert.Error(t, err)
	assert.Empty(t, keys)

	_, err = a.ArchiveRun(context.Background(), &pipeline.PipelineRun{})
	assert.Error(t, err)
}
