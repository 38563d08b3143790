package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Storage(client *s3.Client, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *S3Storage) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	return &s3Writer{
		ctx:    ctx,
		client: s.client,
		bucket: s.bucket,
		key:    path.Join(s.prefix, name),
		buf:    NewBuffer(),
	}, nil
}

func (s *S3Storage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath := path.Join(s.prefix, name)

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullPath),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("getting object %s: %w", fullPath, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("getting object: %w", err)
	}

	return output.Body, nil
}

func (s *S3Storage) Delete(ctx context.Context, name string) error {
	fullPath := path.Join(s.prefix, name)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullPath),
	})
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}

	return nil
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := path.Join(s.prefix, prefix)
	var files []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects: %w", err)
		}

		for _, obj := range page.Contents {
			files = append(files, strings.TrimPrefix(*obj.Key, s.prefix+"/"))
		}
	}

	return files, nil
}

// s3Writer accumulates writes in memory and uploads the object on Close.
// S3 has no partial-append primitive, so the upload is all-or-nothing.
type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    *Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed s3 writer for %s", w.key)
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   w.buf.Reader(),
	})
	if err != nil {
		return fmt.Errorf("putting object: %w", err)
	}

	return nil
}
