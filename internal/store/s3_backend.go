package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	blackbox "reach/blackbox/internal/errors"
)

// s3Client is the subset of *s3.Client this package uses, so tests can
// substitute a fake.
type s3Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend is a Backend storing every key as an object under a bucket and
// key prefix.
type S3Backend struct {
	client s3Client
	bucket string
	prefix string
}

// NewS3Backend returns a Backend backed by an S3 bucket, storing objects
// under prefix (trailing "/" optional).
func NewS3Backend(client *s3.Client, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *S3Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *S3Backend) PutBytes(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return blackbox.Classify(err)
	}
	return nil
}

func (b *S3Backend) GetBytes(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(key)
		}
		return nil, blackbox.Classify(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, blackbox.Classify(err)
	}
	return data, nil
}

func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, blackbox.Classify(err)
}

func (b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	full := b.objectKey(prefix)
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, blackbox.Classify(err)
		}
		for _, obj := range out.Contents {
			k := aws.ToString(obj.Key)
			if b.prefix != "" {
				k = strings.TrimPrefix(k, b.prefix+"/")
			}
			keys = append(keys, k)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *S3Backend) ListChildren(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return childrenFromKeys(keys, prefix), nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var rerr *smithyhttp.ResponseError
	if errors.As(err, &rerr) && rerr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}
