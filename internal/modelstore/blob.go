package modelstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore holds serialized model weights outside the database
type BlobStore interface {
	Put(ctx context.Context, key string, body io.ReadSeeker) error
	Get(ctx context.Context, key string, w io.Writer) error
	Delete(ctx context.Context, key string) error
}

// S3Blobs stores blobs in one S3 bucket
type S3Blobs struct {
	client *s3.Client
	bucket string
}

// NewS3Blobs creates an S3 backed BlobStore
func NewS3Blobs(client *s3.Client, bucket string) *S3Blobs {
	return &S3Blobs{client: client, bucket: bucket}
}

// Put uploads body under key
func (b *S3Blobs) Put(ctx context.Context, key string, body io.ReadSeeker) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", b.bucket, key, err)
	}
	return nil
}

// Get copies the object under key into w
func (b *S3Blobs) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 get %s/%s: %w", b.bucket, key, err)
	}
	defer out.Body.Close()
	_, err = io.Copy(w, out.Body)
	return err
}

// Delete removes the object under key
func (b *S3Blobs) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", b.bucket, key, err)
	}
	return nil
}
