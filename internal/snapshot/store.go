package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/hemanttanawade-debug/drive-migration/internal/config"
)

// Store persists snapshot and report artifacts to a blob bucket.
type Store struct {
	bucket *blob.Bucket
	prefix string
}

// OpenStore opens the artifact bucket selected by config.
func OpenStore(ctx context.Context, cfg config.ArtifactsConfig) (*Store, error) {
	bucketURL, err := bucketURL(cfg)
	if err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open artifact bucket %s: %w", bucketURL, err)
	}
	return &Store{bucket: bucket, prefix: cfg.Prefix}, nil
}

func bucketURL(cfg config.ArtifactsConfig) (string, error) {
	switch cfg.Backend {
	case "local":
		abs, err := filepath.Abs(cfg.LocalDir)
		if err != nil {
			return "", fmt.Errorf("resolve artifact dir: %w", err)
		}
		return "file://" + abs + "?create_dir=true", nil
	case "gcs":
		return "gs://" + cfg.GCSBucket, nil
	case "s3":
		q := url.Values{}
		if cfg.S3Region != "" {
			q.Set("region", cfg.S3Region)
		}
		if cfg.S3Endpoint != "" {
			q.Set("endpoint", cfg.S3Endpoint)
			q.Set("s3ForcePathStyle", "true")
		}
		u := "s3://" + cfg.S3Bucket
		if enc := q.Encode(); enc != "" {
			u += "?" + enc
		}
		return u, nil
	default:
		return "", fmt.Errorf("unknown artifacts backend %q", cfg.Backend)
	}
}

func (s *Store) Close() error { return s.bucket.Close() }

// SnapshotKey builds the bucket key for one capture. kind is "source"
// or "dest".
func (s *Store) SnapshotKey(runID int64, principal, kind string) string {
	return fmt.Sprintf("%sruns/%d/%s/%s_snapshot.json.gz", s.prefix, runID, principal, kind)
}

// ReportKey builds the bucket key for a run-level report file.
func (s *Store) ReportKey(runID int64, name string) string {
	return fmt.Sprintf("%sruns/%d/%s", s.prefix, runID, name)
}

// WriteSnapshot persists a capture as gzipped JSON and returns its key.
func (s *Store) WriteSnapshot(ctx context.Context, runID int64, kind string, snap *Snapshot) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}

	key := s.SnapshotKey(runID, snap.Principal, kind)
	err := s.bucket.WriteAll(ctx, key, buf.Bytes(), &blob.WriterOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", key, err)
	}
	return key, nil
}

// ReadSnapshot loads a previously written capture.
func (s *Store) ReadSnapshot(ctx context.Context, key string) (*Snapshot, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", key, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// WriteDocument persists an uncompressed artifact (reports, inventories).
func (s *Store) WriteDocument(ctx context.Context, key string, data []byte, contentType string) error {
	err := s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	return nil
}

// ReadDocument loads an uncompressed artifact.
func (s *Store) ReadDocument(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return data, nil
}
