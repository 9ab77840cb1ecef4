package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig configures an S3-compatible transcript bucket.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// ObjectStore keeps artifacts as objects named like the file backend, under
// an optional prefix, and transitions as one JSON object per record.
type ObjectStore struct {
	mc     *minio.Client
	bucket string
	prefix string
	ext    Extensions
}

var _ Store = (*ObjectStore)(nil)

// NewObjectStore connects to the endpoint and makes sure the bucket exists.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig, ext Extensions) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store access_key and secret_key are required")
	}
	ext, err := ext.Normalize()
	if err != nil {
		return nil, err
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "codeloop"
	}
	s := &ObjectStore{mc: mc, bucket: bucket, prefix: cleanPrefix(cfg.Prefix), ext: ext}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("[transcript] Created bucket: %s", s.bucket)
	}
	return nil
}

// SaveCode implements Store.
func (s *ObjectStore) SaveCode(ctx context.Context, key Key, source string) (string, error) {
	return s.write(ctx, key, KindCode, source)
}

// SaveOutput implements Store.
func (s *ObjectStore) SaveOutput(ctx context.Context, key Key, output string) (string, error) {
	return s.write(ctx, key, KindOutput, output)
}

func (s *ObjectStore) write(ctx context.Context, key Key, kind Kind, content string) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	name := s.objectName(key.Name(s.ext.forKind(kind)))
	location := fmt.Sprintf("s3://%s/%s", s.bucket, name)

	existing, found, err := s.get(ctx, name)
	if err != nil {
		return "", err
	}
	if found {
		if existing != content {
			return "", fmt.Errorf("%s: %w", location, ErrConflict)
		}
		return location, nil
	}

	_, err = s.mc.PutObject(ctx, s.bucket, name, strings.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType(kind),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return location, nil
}

func (s *ObjectStore) get(ctx context.Context, name string) (string, bool, error) {
	if _, err := s.mc.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat %s: %w", name, err)
	}
	obj, err := s.mc.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return "", false, fmt.Errorf("download %s: %w", name, err)
	}
	defer func() { _ = obj.Close() }()
	data, err := io.ReadAll(obj)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), true, nil
}

// RecordTransition implements Store.
func (s *ObjectStore) RecordTransition(ctx context.Context, t Transition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}
	name := s.objectName(transitionObject(t))
	_, err = s.mc.PutObject(ctx, s.bucket, name, strings.NewReader(string(data)), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// List implements Store.
func (s *ObjectStore) List(ctx context.Context, runID string) ([]Artifact, error) {
	var arts []Artifact
	for info := range s.mc.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.objectName(runID + "_fdbk")}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list artifacts: %w", info.Err)
		}
		key, kind, ok := ParseName(path.Base(info.Key), s.ext.Output)
		if !ok || key.RunID != runID {
			continue
		}
		content, _, err := s.get(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		arts = append(arts, Artifact{
			Key:      key,
			Kind:     kind,
			Location: fmt.Sprintf("s3://%s/%s", s.bucket, info.Key),
			Content:  content,
		})
	}
	sortArtifacts(arts)
	return arts, nil
}

// Close implements Store. The minio client holds no resources to release.
func (s *ObjectStore) Close() error {
	return nil
}

func (s *ObjectStore) objectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func cleanPrefix(p string) string {
	return strings.Trim(p, "/")
}

func transitionObject(t Transition) string {
	return fmt.Sprintf("%s_transitions/%06d.json", t.RunID, t.Seq)
}

func contentType(kind Kind) string {
	if kind == KindOutput {
		return "text/plain; charset=utf-8"
	}
	return "text/x-source; charset=utf-8"
}
