package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3Options configures S3Client. Empty keys select the default AWS credential chain
// (environment, shared config, instance role).
type S3Options struct {
	Region          string
	Endpoint        string // S3-compatible services (R2, Spaces, MinIO)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Client implements Client on aws-sdk-go-v2.
type S3Client struct {
	client *s3.Client
	region string
	logger zerolog.Logger
}

var _ Client = (*S3Client)(nil)

// NewS3Client loads the AWS config and builds the S3 client.
func NewS3Client(ctx context.Context, opts S3Options, logger zerolog.Logger) (*S3Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Client{
		client: client,
		region: opts.Region,
		logger: logger.With().Str("backend", "s3").Logger(),
	}, nil
}

func (c *S3Client) Name() string { return "s3" }

func (c *S3Client) EnsureContainer(ctx context.Context, container string) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(container)})
	if err == nil {
		return nil
	}
	if !errors.Is(mapS3Error(err), ErrContainerNotFound) {
		return fmt.Errorf("head bucket %s: %w", container, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(container)}
	// us-east-1 rejects an explicit location constraint.
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", container, err)
	}
	c.logger.Info().Str("container", container).Msg("created bucket")
	return nil
}

// Upload puts the object. Without Overwrite the write is conditional on the key
// not existing (If-None-Match: *).
func (c *S3Client) Upload(ctx context.Context, container, key string, r io.Reader, size int64, opts UploadOptions) (UploadResult, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(container),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentTypeOrDefault(opts.ContentType)),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if !opts.Overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	out, err := c.client.PutObject(ctx, input)
	if err != nil {
		return UploadResult{}, fmt.Errorf("put object %s/%s: %w", container, key, mapS3Error(err))
	}

	return UploadResult{
		ETag:      normalizeETag(aws.ToString(out.ETag)),
		VersionID: aws.ToString(out.VersionId),
		Size:      size,
	}, nil
}

func (c *S3Client) Download(ctx context.Context, container, key string, w io.Writer) error {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object %s/%s: %w", container, key, mapS3Error(err))
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("read object %s/%s: %w", container, key, err)
	}
	return nil
}

// Delete removes the object. S3 reports success for missing keys.
func (c *S3Client) Delete(ctx context.Context, container, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", container, key, mapS3Error(err))
	}
	return nil
}

func (c *S3Client) List(ctx context.Context, container, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(container)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", container, mapS3Error(err))
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         normalizeETag(aws.ToString(obj.ETag)),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func mapS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrNotFound
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return ErrContainerNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey":
			return ErrNotFound
		case "NotFound", "NoSuchBucket":
			// HeadBucket has no body, so a missing bucket surfaces as a bare NotFound.
			return ErrContainerNotFound
		case "PreconditionFailed", "ConditionalRequestConflict":
			return ErrAlreadyExists
		}
	}
	return err
}
