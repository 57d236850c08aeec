package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"neodiag/internal/model"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3SessionRepo keeps one JSON object per session in an S3-compatible bucket.
type S3SessionRepo struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
	logger     *slog.Logger

	initMu      sync.Mutex
	initialized bool
}

var _ SessionRepo = (*S3SessionRepo)(nil)

func NewS3SessionRepo(cfg S3Config, opts ...Option) (*S3SessionRepo, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "sessions"
	}
	o := buildOptions(opts)
	return &S3SessionRepo{
		client:     client,
		bucketName: bucket,
		region:     region,
		prefix:     prefix + "/",
		logger:     o.logger,
	}, nil
}

// ensureBucket creates the bucket on first use. A failure is not remembered,
// so the next call tries again.
func (r *S3SessionRepo) ensureBucket(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.initialized {
		return nil
	}

	exists, err := r.client.BucketExists(ctx, r.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.client.MakeBucket(ctx, r.bucketName, minio.MakeBucketOptions{Region: r.region}); err != nil {
			return err
		}
	}
	r.initialized = true
	return nil
}

func (r *S3SessionRepo) objectKey(id string) string {
	return r.prefix + id + ".json"
}

func (r *S3SessionRepo) Save(ctx context.Context, session *model.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	if err := r.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err = r.client.PutObject(ctx, r.bucketName, r.objectKey(session.ID), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (r *S3SessionRepo) Load(ctx context.Context, id string) (*model.Session, error) {
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if err := r.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := r.client.GetObject(ctx, r.bucketName, r.objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession(id, data)
}

func (r *S3SessionRepo) ListAll(ctx context.Context) ([]*model.Session, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	type stamped struct {
		id      string
		modTime time.Time
	}
	var keys []stamped
	for obj := range r.client.ListObjects(ctx, r.bucketName, minio.ListObjectsOptions{Prefix: r.prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list sessions: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, r.prefix)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, stamped{id: strings.TrimSuffix(name, ".json"), modTime: obj.LastModified})
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].modTime.After(keys[j].modTime)
	})

	sessions := make([]*model.Session, 0, len(keys))
	for _, k := range keys {
		session, err := r.Load(ctx, k.id)
		if err != nil {
			r.logger.Warn("skipping unreadable session", "session_id", k.id, "error", err)
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Ping creates the bucket on first use and checks it is reachable.
func (r *S3SessionRepo) Ping(ctx context.Context) error {
	if err := r.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := r.client.BucketExists(ctx, r.bucketName)
	return err
}
