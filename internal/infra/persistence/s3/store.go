// Package s3 stores one JSON object per document in an S3-compatible bucket
// (AWS S3 or MinIO).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"doccore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

const (
	defaultRegion      = "us-east-1"
	defaultApplyFanout = 8
	objectSuffix       = ".json"
)

// Config holds explicit construction parameters.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string // optional key prefix, e.g. "tenant-a/"
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
	PageSize        int32 // ListObjectsV2 page size; zero keeps the service default
}

// Store maps documents to objects named <prefix><type>/<escaped id>.json.
// Queries yield documents in key order. Apply is not atomic: a failed
// change set may leave some of its writes behind.
type Store struct {
	client   *s3.Client
	bucket   string
	prefix   string
	pageSize int32
}

// New creates an S3 document store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(client, cfg), nil
}

func newStore(client *s3.Client, cfg Config) *Store {
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, pageSize: cfg.PageSize}
}

func (s *Store) typePrefix(docType string) string {
	return s.prefix + docType + "/"
}

func (s *Store) objectKey(docType, id string) string {
	return s.typePrefix(docType) + url.PathEscape(id) + objectSuffix
}

func (s *Store) idFromKey(docType, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.typePrefix(docType))
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, objectSuffix)
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return id, true
}

// Load returns the stored payload, or nil when the object does not exist.
func (s *Store) Load(ctx context.Context, docType, id string) ([]byte, error) {
	payload, err := s.get(ctx, s.objectKey(docType, id))
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", docType, id, err)
	}
	return payload, nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}

// Query lists the objects of docType page by page and fetches each one only
// when the consumer asks for the next candidate.
func (s *Store) Query(ctx context.Context, docType string, filter domain.Filter) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		prefix := s.typePrefix(docType)
		input := &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix}
		if s.pageSize > 0 {
			input.MaxKeys = aws.Int32(s.pageSize)
		}
		pages := s3.NewListObjectsV2Paginator(s.client, input)
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				yield(domain.Document{}, fmt.Errorf("list %s: %w", docType, err))
				return
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				id, ok := s.idFromKey(docType, key)
				if !ok {
					continue
				}
				payload, err := s.get(ctx, key)
				if err != nil {
					yield(domain.Document{}, fmt.Errorf("fetch %s: %w", key, err))
					return
				}
				if payload == nil {
					// deleted between list and fetch
					continue
				}
				match, err := domain.Matches(filter, payload)
				if err != nil {
					yield(domain.Document{}, err)
					return
				}
				if match && !yield(domain.Document{Type: docType, ID: id, Payload: payload}, nil) {
					return
				}
			}
		}
	}
}

// Apply writes upserts, then deletes, with bounded parallelism inside each phase.
func (s *Store) Apply(ctx context.Context, changes domain.ChangeSet) error {
	puts, gctx := errgroup.WithContext(ctx)
	puts.SetLimit(defaultApplyFanout)
	for _, doc := range changes.Upserts {
		puts.Go(func() error {
			key := s.objectKey(doc.Type, doc.ID)
			_, err := s.client.PutObject(gctx, &s3.PutObjectInput{
				Bucket:      &s.bucket,
				Key:         &key,
				Body:        bytes.NewReader(doc.Payload),
				ContentType: aws.String("application/json"),
			})
			if err != nil {
				return fmt.Errorf("upsert %s %s: %w", doc.Type, doc.ID, err)
			}
			return nil
		})
	}
	if err := puts.Wait(); err != nil {
		return err
	}
	deletes, gctx := errgroup.WithContext(ctx)
	deletes.SetLimit(defaultApplyFanout)
	for _, ref := range changes.Deletes {
		deletes.Go(func() error {
			key := s.objectKey(ref.Type, ref.ID)
			if _, err := s.client.DeleteObject(gctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
				return fmt.Errorf("delete %s %s: %w", ref.Type, ref.ID, err)
			}
			return nil
		})
	}
	return deletes.Wait()
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }
