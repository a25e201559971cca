package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage is the bucket interface used for corpus snapshots.
type ObjectStorage interface {
	UploadBytes(ctx context.Context, data []byte, key, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// MinIOConfig holds the S3-compatible endpoint and bucket.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// MinIOStorage is an ObjectStorage over one bucket of an S3-compatible server.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinIOStorage creates a client. No request is made until first use.
func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client for %s: %w", cfg.Endpoint, err)
	}
	return &MinIOStorage{client: client, bucket: cfg.BucketName, region: cfg.Region}, nil
}

// InitBucket creates the bucket unless it already exists.
func (s *MinIOStorage) InitBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	switch {
	case err != nil:
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	case exists:
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOStorage) UploadBytes(ctx context.Context, data []byte, key, contentType string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return info.Key, nil
}

func (s *MinIOStorage) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// List returns every object under prefix, recursively.
func (s *MinIOStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

// SnapshotPrefix is the object key prefix for raw corpus snapshots.
const SnapshotPrefix = "snapshots"

// SnapshotArchive writes raw fetched records as JSON objects keyed by run,
// corpus and unit (book slug or surah number).
type SnapshotArchive struct {
	store  ObjectStorage
	runID  string
	logger *slog.Logger
}

// NewSnapshotArchive creates an archive for one ingestion run.
func NewSnapshotArchive(store ObjectStorage, runID string, logger *slog.Logger) *SnapshotArchive {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotArchive{
		store:  store,
		runID:  runID,
		logger: logger.With("component", "snapshot_archive", "run_id", runID),
	}
}

// SnapshotPath builds the object key for one unit of a run.
func SnapshotPath(runID, corpus, unit string) string {
	return path.Join(SnapshotPrefix, runID, corpus, unit+".json")
}

// Archive stores records as JSON and returns the object key.
func (a *SnapshotArchive) Archive(ctx context.Context, corpus, unit string, records any) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode snapshot %s/%s: %w", corpus, unit, err)
	}
	key, err := a.store.UploadBytes(ctx, data, SnapshotPath(a.runID, corpus, unit), "application/json")
	if err != nil {
		return "", fmt.Errorf("upload snapshot %s/%s: %w", corpus, unit, err)
	}
	a.logger.Debug("snapshot archived", "key", key, "bytes", len(data))
	return key, nil
}

// ReadSnapshot decodes the snapshot stored at key into out.
func ReadSnapshot(ctx context.Context, store ObjectStorage, key string, out any) error {
	if !strings.HasPrefix(key, SnapshotPrefix+"/") {
		return fmt.Errorf("%s is not a snapshot key", key)
	}
	data, err := store.Download(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return nil
}

// ListSnapshots lists archived snapshots, optionally restricted to one run.
func ListSnapshots(ctx context.Context, store ObjectStorage, runID string) ([]ObjectInfo, error) {
	prefix := SnapshotPrefix + "/"
	if runID != "" {
		prefix += runID + "/"
	}
	return store.List(ctx, prefix)
}
