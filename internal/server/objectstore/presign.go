// Package objectstore mirrors ready files to an S3-compatible backend and
// issues presigned GET URLs against the mirrored objects. Offload is
// optional: with no base endpoint configured the client reports itself
// disabled and downloads stream from the local chunk store instead.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "sharefile/internal/server/config"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// Client mirrors blobs into the configured bucket and builds presigned GET
// URLs for them.
type Client struct {
	config *sc.Config
}

// New constructs a Client from server configuration.
func New(config *sc.Config) *Client {
	return &Client{config: config}
}

// Enabled reports whether object-storage offload is configured.
func (c *Client) Enabled() bool {
	return c.config.S3BaseEndpoint != ""
}

// StorageKey returns the object key under which a file's blob is mirrored.
func StorageKey(fileID string) string {
	return fmt.Sprintf("files/%s/data", fileID)
}

func (c *Client) s3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(c.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.config.S3RootUser,
			c.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.config.S3BaseEndpoint)
	}), nil
}

// Mirror uploads a file's blob under its storage key, overwriting any
// previous object so redelivered finalize jobs stay idempotent.
func (c *Client) Mirror(ctx context.Context, fileID string, body io.Reader) error {
	client, err := c.s3Client(ctx)
	if err != nil {
		return err
	}

	bucket := c.config.S3Bucket
	key := StorageKey(fileID)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   body,
	})
	return err
}

// PresignGetURL returns a temporary GET URL for the file's mirrored blob.
func (c *Client) PresignGetURL(ctx context.Context, fileID string) (string, error) {
	client, err := c.s3Client(ctx)
	if err != nil {
		return "", err
	}

	bucket := c.config.S3Bucket
	key := StorageKey(fileID)

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
