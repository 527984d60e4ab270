// krabbel/utils/storage.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// LocalStorage keeps backup artifacts in a directory on disk.
type LocalStorage struct {
	Dir string
}

func (ls *LocalStorage) SaveFile(_ context.Context, filename string, data []byte, _ string) (string, error) {
	if err := os.MkdirAll(ls.Dir, 0755); err != nil {
		return "", err
	}
	fullPath := filepath.Join(ls.Dir, filepath.Base(filename))
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", err
	}
	return fullPath, nil
}

func (ls *LocalStorage) DeleteFile(_ context.Context, path string) error {
	fullPath := filepath.Join(ls.Dir, filepath.Base(path))
	err := os.Remove(fullPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (ls *LocalStorage) ListFiles(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(ls.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// S3Storage uploads backup artifacts to S3-compatible object storage.
type S3Storage struct {
	Client     *minio.Client
	BucketName string
	PublicURL  string
}

func NewS3Storage(ctx context.Context, endpoint, accessKey, secretKey, bucket, region, publicURL string, useSSL bool) (*S3Storage, error) {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	var creds *credentials.Credentials
	if accessKey == "" || secretKey == "" {
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(accessKey, secretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	if publicURL == "" {
		protocol := "http"
		if useSSL {
			protocol = "https"
		}
		publicURL = fmt.Sprintf("%s://%s.%s", protocol, bucket, endpoint)
	}

	return &S3Storage{
		Client:     client,
		BucketName: bucket,
		PublicURL:  strings.TrimSuffix(publicURL, "/"),
	}, nil
}

func (s3 *S3Storage) SaveFile(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	key := "backups/" + filepath.Base(filename)
	_, err := s3.Client.PutObject(ctx, s3.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", s3.PublicURL, key), nil
}

// DeleteFile accepts either the object key or the URL returned by SaveFile.
func (s3 *S3Storage) DeleteFile(ctx context.Context, path string) error {
	key := strings.TrimPrefix(path, s3.PublicURL+"/")
	if key == "" {
		return nil
	}
	return s3.Client.RemoveObject(ctx, s3.BucketName, key, minio.RemoveObjectOptions{})
}

func (s3 *S3Storage) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s3.Client.ListObjects(ctx, s3.BucketName, minio.ListObjectsOptions{Prefix: "backups/" + prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// BackupStore is the part of a storage service that retention needs.
type BackupStore interface {
	ListFiles(ctx context.Context, prefix string) ([]string, error)
	DeleteFile(ctx context.Context, path string) error
}

// PruneBackups deletes all but the newest keep files starting with prefix.
// Names from BackupFileName sort chronologically. keep <= 0 deletes nothing.
func PruneBackups(ctx context.Context, store BackupStore, prefix string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	names, err := store.ListFiles(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	if len(names) <= keep {
		return nil, nil
	}
	stale := names[:len(names)-keep]
	for _, name := range stale {
		if err := store.DeleteFile(ctx, name); err != nil {
			return nil, fmt.Errorf("deleting backup %s: %w", name, err)
		}
	}
	return stale, nil
}
