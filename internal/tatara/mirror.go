package tatara

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorClient wraps the S3 client for the Cloudflare R2 artifact mirror.
type MirrorClient struct {
	Client     *s3.Client
	BucketName string
}

// NewMirrorClient initializes a mirror client using configuration values.
func NewMirrorClient(cfg *Config) (*MirrorClient, error) {
	accountID := cfg.Values["R2_ACCOUNT_ID"]
	accessKey := cfg.Values["R2_ACCESS_KEY_ID"]
	secretKey := cfg.Values["R2_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["R2_BUCKET_NAME"]

	if accountID == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("mirror credentials missing in configuration (R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME)")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
		}, nil
	})

	options := []func(*config.LoadOptions) error{
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("auto"),
	}

	if Debug {
		options = append(options, config.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &MirrorClient{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// UploadLocalFile uploads a file from disk to the mirror.
func (m *MirrorClient) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(key, ".zst"):
		contentType = "application/zstd"
	case strings.HasSuffix(key, ".gz"):
		contentType = "application/gzip"
	case strings.HasSuffix(key, ".xz"):
		contentType = "application/x-xz"
	}

	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// handleUploadCommand pushes locally built artifacts (and their digest
// files) to the mirror. With no arguments every artifact in the store is
// uploaded, otherwise only the named assets'.
func handleUploadCommand(ctx context.Context, cfg *Config, assets []string) error {
	client, err := NewMirrorClient(cfg)
	if err != nil {
		return err
	}

	patterns := []string{filepath.Join(ArtifactDir, "*@*.tar.*")}
	if len(assets) > 0 {
		patterns = patterns[:0]
		for _, asset := range assets {
			patterns = append(patterns, filepath.Join(ArtifactDir, asset+"@*.tar.*"))
		}
	}
	var matches []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		matches = append(matches, found...)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no artifacts found in %s", ArtifactDir)
	}

	for _, path := range matches {
		key := "artifacts/" + filepath.Base(path)
		colArrow.Print("-> ")
		colSuccess.Printf("Uploading %s\n", key)
		if err := client.UploadLocalFile(ctx, key, path); err != nil {
			return fmt.Errorf("upload of %s failed: %w", key, err)
		}
	}
	return nil
}
