package s3client

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appConfig "hexmirror/config"
	"hexmirror/internal/mirror"
	"hexmirror/internal/models"
	"hexmirror/pkg/utils"
)

type Client struct {
	s3Client   *s3.Client
	uploader   *manager.Uploader
	config     *appConfig.Config
	bucketName string
}

func New(cfg *appConfig.Config) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, &models.ConfigurationError{Field: "bucket", Reason: "must not be empty"}
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if cfg.ApiURL != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ApiURL)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	return &Client{
		s3Client:   s3Client,
		uploader:   manager.NewUploader(s3Client),
		config:     cfg,
		bucketName: cfg.BucketName,
	}, nil
}

// ListObjects returns object sizes under prefix keyed by the key with the
// prefix stripped.
func (c *Client) ListObjects(ctx context.Context, prefix string) (map[string]int64, error) {
	prefix = normalizePrefix(prefix)
	objects := make(map[string]int64)

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			objects[strings.TrimPrefix(*obj.Key, prefix)] = aws.ToInt64(obj.Size)
		}
	}

	return objects, nil
}

type PublishOptions struct {
	Prefix      string
	Concurrency int
	Retry       mirror.RetryPolicy
	DryRun      bool
}

// PublishMirror uploads every local mirror file that is missing from the
// bucket or whose size differs. It reuses the mirror pool: the "fetch" step
// reads the local file and the "write" step uploads it.
func (c *Client) PublishMirror(ctx context.Context, root string, opts PublishOptions) (*models.PublishResult, error) {
	startTime := time.Now()

	local, err := mirror.Scan(root)
	if err != nil {
		return nil, err
	}
	remote, err := c.ListObjects(ctx, opts.Prefix)
	if err != nil {
		return nil, err
	}

	items := mirror.Plan(localManifest(root, local), remotePresence(local, remote))

	result := &models.PublishResult{
		BucketName:    c.bucketName,
		Prefix:        opts.Prefix,
		Source:        root,
		LocalFiles:    local.Len(),
		RemoteObjects: len(remote),
		Pending:       len(items),
		OperationTime: utils.FormatTime(startTime),
	}

	if opts.DryRun {
		for _, item := range items {
			size, _ := local.Size(item.RemotePath)
			result.TotalSizeBytes += size
		}
		result.TotalSizeHuman = utils.FormatBytes(result.TotalSizeBytes)
		result.UploadDuration = time.Since(startTime).String()
		return result, nil
	}

	pool := &mirror.Pool{
		Concurrency: opts.Concurrency,
		Retry:       opts.Retry,
		Fetch:       readLocalFile,
		Write:       c.uploadFunc(opts.Prefix),
	}
	summary := pool.Run(ctx, items)

	result.Uploaded = summary.Succeeded
	result.Failed = summary.Failed + summary.Cancelled
	result.Failures = summary.Failures
	result.TotalSizeBytes = summary.TotalBytes
	result.TotalSizeHuman = utils.FormatBytes(summary.TotalBytes)
	result.UploadDuration = time.Since(startTime).String()
	return result, nil
}

// localManifest describes local files as artifacts whose source location is
// the file on disk.
func localManifest(root string, local *mirror.LocalIndex) *models.Manifest {
	paths := local.Paths()
	descriptors := make([]models.ArtifactDescriptor, 0, len(paths))
	for _, p := range paths {
		descriptors = append(descriptors, models.ArtifactDescriptor{
			Name:       filepath.Base(p),
			RemotePath: p,
			RemoteURL:  filepath.Join(root, filepath.FromSlash(p)),
		})
	}
	return models.NewManifest(descriptors)
}

// remotePresence keeps only remote objects that match the local size, so
// rewritten package index files are uploaded again.
func remotePresence(local *mirror.LocalIndex, remote map[string]int64) *mirror.LocalIndex {
	same := make(map[string]int64, len(remote))
	for key, size := range remote {
		if localSize, ok := local.Size(key); ok && localSize == size {
			same[key] = size
		}
	}
	return mirror.NewPresenceSet(same)
}

func readLocalFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ArtifactFetchError{URL: path, Err: err}
	}
	return data, nil
}

func (c *Client) uploadFunc(prefix string) mirror.WriteFunc {
	return func(ctx context.Context, relPath string, data []byte) (int64, error) {
		if err := c.uploadSingleFile(ctx, data, c.buildRemotePath(prefix, relPath)); err != nil {
			return 0, &models.ArtifactWriteError{Path: relPath, Err: err}
		}
		return int64(len(data)), nil
	}
}

func (c *Client) uploadSingleFile(ctx context.Context, data []byte, remotePath string) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(remotePath),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(c.detectContentType(remotePath)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func (c *Client) buildRemotePath(destinationPath, filename string) string {
	return normalizePrefix(destinationPath) + filename
}

// Package index files have no extension and are served as octet-stream.
func (c *Client) detectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	contentTypes := map[string]string{
		".tar":  "application/x-tar",
		".gz":   "application/gzip",
		".json": "application/json",
		".html": "text/html",
		".txt":  "text/plain",
	}

	if contentType, exists := contentTypes[ext]; exists {
		return contentType
	}

	return "application/octet-stream"
}
