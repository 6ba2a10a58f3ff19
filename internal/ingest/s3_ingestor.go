package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// S3API is the subset of *s3.Client the ingestor uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

// S3Ingestor loads documents under an s3://bucket/prefix.
type S3Ingestor struct {
	client   S3API
	MaxBytes int64
	logger   *slog.Logger
}

// NewS3Client builds an S3 client from the default AWS chain, with static credentials when set.
func NewS3Client(ctx context.Context, cfg common.S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, common.NewConfigError("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together", nil)
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

func NewS3Ingestor(client S3API, maxBytes int64, logger *slog.Logger) *S3Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Ingestor{client: client, MaxBytes: maxBytes, logger: logger}
}

// IsS3URI reports whether s names an S3 location.
func IsS3URI(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "s3://")
}

// ParseS3URI splits s3://bucket/prefix into its parts.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	if !IsS3URI(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	rest := uri[len("s3://"):]
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", uri)
	}
	return bucket, prefix, nil
}

// IngestDirectory lists every object under root (an s3:// URI) and downloads the allowed ones.
// Keys ending in "/" are folder markers. skipHidden drops keys with a dot-prefixed segment.
func (i *S3Ingestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	bucket, prefix, err := ParseS3URI(root)
	if err != nil {
		return nil, DirStats{}, err
	}

	var results []IngestionResult
	var stats DirStats
	seen := dedup{}
	downloader := manager.NewDownloader(i.client, func(d *manager.Downloader) { d.Concurrency = 1 })

	p := s3.NewListObjectsV2Paginator(i.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return results, stats, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			stats.Scanned++
			if key == "" || strings.HasSuffix(key, "/") || (skipHidden && hiddenKey(key)) {
				continue
			}
			if !AllowedExt(path.Ext(key)) {
				continue
			}
			stats.Matched++

			r, err := i.download(ctx, downloader, bucket, key, aws.ToInt64(obj.Size))
			if err != nil {
				if ctx.Err() != nil {
					return results, stats, ctx.Err()
				}
				i.logger.Warn("ingest.s3.object.failed", "bucket", bucket, "key", key, "error", err)
				results = append(results, IngestionResult{SourcePath: r.SourcePath, Err: err.Error()})
				stats.Failed++
				continue
			}
			if seen.seen(r.HashHex, r.Document.ID) {
				r.Deduplicated = true
				r.Document.Content = nil
				stats.Deduplicated++
			}
			results = append(results, r)
			stats.Succeeded++
		}
	}

	i.logger.Info("ingest.s3.ok",
		"bucket", bucket,
		"prefix", prefix,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

func (i *S3Ingestor) download(ctx context.Context, d *manager.Downloader, bucket, key string, size int64) (IngestionResult, error) {
	uri := "s3://" + bucket + "/" + key
	out := IngestionResult{SourcePath: uri, FileExt: constants.NormalizeExt(path.Ext(key))}
	if size <= 0 {
		return out, errors.New("empty object")
	}
	if i.MaxBytes > 0 && size > i.MaxBytes {
		return out, fmt.Errorf("object is %d bytes, limit is %d", size, i.MaxBytes)
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	n, err := d.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return out, fmt.Errorf("download: %w", err)
	}
	data := buf.Bytes()[:n]

	out.Size = n
	out.HashHex = hashHex(data)
	out.Document = extract.Document{
		ID:       uri,
		Name:     path.Base(key),
		MIMEType: constants.MIMEByExt(out.FileExt),
		Content:  data,
	}
	return out, nil
}

func hiddenKey(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
