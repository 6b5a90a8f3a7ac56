package server

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3BlobStore implements the BlobStore interface using AWS S3. The client is
// bucket-agnostic; callers name the bucket per operation.
type S3BlobStore struct {
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewS3BlobStore creates an S3-backed blob store on an existing session.
func NewS3BlobStore(sess *session.Session) (*S3BlobStore, error) {
	return &S3BlobStore{
		s3Client: s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Put uploads an object, overwriting any prior content.
func (s *S3BlobStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error) {
	if bucket == "" || key == "" {
		return "", &ValidationError{Message: "bucket and key are required"}
	}
	if contentType == "" {
		contentType = "binary/octet-stream"
	}

	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %v", err)
	}
	return aws.StringValue(out.ETag), nil
}

// Get retrieves an object. Missing buckets and keys surface as typed
// NotFoundError values so the router can map them to 404s.
func (s *S3BlobStore) Get(ctx context.Context, bucket, key string) (*Object, error) {
	output, err := s.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchBucket:
				return nil, &NotFoundError{Kind: KindNoSuchBucket, Bucket: bucket, Key: key}
			case s3.ErrCodeNoSuchKey:
				return nil, &NotFoundError{Kind: KindNoSuchKey, Bucket: bucket, Key: key}
			}
		}
		return nil, fmt.Errorf("failed to get blob: %v", err)
	}
	defer output.Body.Close()

	body, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob body: %v", err)
	}

	obj := &Object{
		Key:         key,
		Body:        body,
		ContentType: aws.StringValue(output.ContentType),
		Size:        aws.Int64Value(output.ContentLength),
	}
	if output.LastModified != nil {
		obj.LastModified = *output.LastModified
	} else {
		obj.LastModified = time.Now().UTC()
	}
	return obj, nil
}

// List returns the keys in the bucket that start with prefix, up to maxKeys.
// A missing bucket yields an empty listing to match the simulator: listing is
// a query over a namespace, not a targeted read.
func (s *S3BlobStore) List(ctx context.Context, bucket, prefix string, maxKeys int) (*ListResult, error) {
	if maxKeys <= 0 {
		maxKeys = defaultListMaxKeys
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int64(int64(maxKeys)),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	output, err := s.s3Client.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchBucket {
			return &ListResult{Objects: []ObjectInfo{}}, nil
		}
		return nil, fmt.Errorf("failed to list blobs: %v", err)
	}

	objects := make([]ObjectInfo, 0, len(output.Contents))
	for _, obj := range output.Contents {
		info := ObjectInfo{
			Key:          aws.StringValue(obj.Key),
			Size:         aws.Int64Value(obj.Size),
			StorageClass: aws.StringValue(obj.StorageClass),
		}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		objects = append(objects, info)
	}

	return &ListResult{
		Objects:  objects,
		KeyCount: int(aws.Int64Value(output.KeyCount)),
	}, nil
}

// Delete removes the object. Deleting a missing key succeeds.
func (s *S3BlobStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob: %v", err)
	}
	return nil
}
