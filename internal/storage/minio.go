package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioBlobs хранит содержимое объектами "<kind>/<id>" в одном бакете.
type minioBlobs struct {
	client *minio.Client
	bucket string
}

// OpenMinio подключается к S3-совместимому хранилищу и создаёт бакет, если его нет.
func OpenMinio(ctx context.Context, cfg MinioConfig) (BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &minioBlobs{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(kind string, id int64) string {
	return kind + "/" + strconv.FormatInt(id, 10)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (m *minioBlobs) HasBlob(ctx context.Context, kind string, id int64) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, objectKey(kind, id), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, err
}

func (m *minioBlobs) PutBlob(ctx context.Context, kind string, id int64, data []byte) (bool, error) {
	ok, err := m.HasBlob(ctx, kind, id)
	if err != nil || ok {
		return false, err
	}
	_, err = m.client.PutObject(ctx, m.bucket, objectKey(kind, id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return false, fmt.Errorf("failed to upload payload: %w", err)
	}
	return true, nil
}

func (m *minioBlobs) GetBlob(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey(kind, id), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
