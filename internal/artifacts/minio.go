package artifacts

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithCredentials(accessKey, secretAccessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
		c.secretAccessKey = secretAccessKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL: false,
		bucket: "artifacts",
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type minioStore struct {
	cfg    *minioConfig
	client *minio.Client
}

// NewMinioStore stores artifacts as objects of an S3 compatible bucket.
func NewMinioStore(opts ...MinioOpts) (Store, error) {
	cfg := newConfig(opts...)

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &minioStore{cfg: cfg, client: minioClient}, nil
}

func (s *minioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (s *minioStore) Get(ctx context.Context, key string, w io.Writer) error {
	if err := validKey(key); err != nil {
		return err
	}
	object, err := s.client.GetObject(ctx, s.cfg.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer object.Close()

	if _, err := object.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrNotFound
		}
		return err
	}

	_, err = io.Copy(w, object)
	return err
}
