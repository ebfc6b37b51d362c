package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"photopool/internal/pool"
)

// URL policies for S3Store.
const (
	URLPolicyPublic    = "public"
	URLPolicyPresigned = "presigned"
)

// DefaultPresignExpiry applies when presigned URLs are enabled without an expiry.
const DefaultPresignExpiry = 7 * 24 * time.Hour

// S3Settings configures an S3Store. It works against AWS S3 and against
// S3-compatible services (MinIO, R2, Spaces) through Endpoint and PathStyle.
type S3Settings struct {
	Endpoint  string // empty for AWS
	Region    string
	Bucket    string
	Prefix    string // key prefix, e.g. "photos/"
	AccessKey string // empty to use the default credential chain
	SecretKey string
	PathStyle bool

	URLPolicy     string // URLPolicyPublic (default) or URLPolicyPresigned
	PublicBaseURL string // public URL base; defaults to <endpoint>/<bucket>
	PresignExpiry time.Duration
}

// S3Store is an S3-backed implementation of the Store interface.
type S3Store struct {
	name     string
	settings S3Settings
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	idgen    pool.IDGenerator
}

// NewS3Store creates an S3 client from settings. No request is made until the
// store is used; call ValidateSetup to check connectivity and create the bucket.
func NewS3Store(ctx context.Context, name string, settings S3Settings, idgen pool.IDGenerator) (*S3Store, error) {
	if settings.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}
	if settings.Region == "" {
		settings.Region = "us-east-1"
	}
	if settings.URLPolicy == "" {
		settings.URLPolicy = URLPolicyPublic
	}
	switch settings.URLPolicy {
	case URLPolicyPublic:
		if settings.PublicBaseURL == "" {
			if settings.Endpoint == "" {
				return nil, fmt.Errorf("s3 store with public urls requires public_base_url or an endpoint")
			}
			settings.PublicBaseURL = strings.TrimRight(settings.Endpoint, "/") + "/" + settings.Bucket
		}
		settings.PublicBaseURL = strings.TrimRight(settings.PublicBaseURL, "/")
	case URLPolicyPresigned:
		if settings.PresignExpiry <= 0 {
			settings.PresignExpiry = DefaultPresignExpiry
		}
	default:
		return nil, fmt.Errorf("unknown url policy: %s", settings.URLPolicy)
	}
	if idgen == nil {
		idgen = pool.UUIDGenerator{}
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.Region),
	}
	if settings.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
		o.UsePathStyle = settings.PathStyle
		// S3-compatible services do not all accept the newer default checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Store{
		name:     name,
		settings: settings,
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		idgen:    idgen,
	}, nil
}

func (s *S3Store) key(id string) string {
	return s.settings.Prefix + id
}

// Put uploads data under a new identifier.
func (s *S3Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	id := s.idgen.New()
	if err := checkID(id); err != nil {
		return "", err
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.settings.Bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to s3: %w", id, err)
	}
	return id, nil
}

// List returns the identifiers of every object under the prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.settings.Bucket),
		Prefix: aws.String(s.settings.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), s.settings.Prefix)
			if checkID(id) != nil {
				continue // nested keys and folder markers
			}
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// URL returns the photo's public URL, or a presigned GET URL valid for the
// configured expiry when the presigned policy is set.
func (s *S3Store) URL(ctx context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}

	if s.settings.URLPolicy == URLPolicyPresigned {
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.settings.Bucket),
			Key:    aws.String(s.key(id)),
		}, s3.WithPresignExpires(s.settings.PresignExpiry))
		if err != nil {
			return "", fmt.Errorf("presigning %s: %w", id, err)
		}
		return req.URL, nil
	}

	segments := strings.Split(s.key(id), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.settings.PublicBaseURL + "/" + strings.Join(segments, "/"), nil
}

// Open streams the stored bytes of a photo.
func (s *S3Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.settings.Bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", pool.ErrPhotoNotFound, id)
		}
		return nil, fmt.Errorf("fetching %s from s3: %w", id, err)
	}
	return out.Body, nil
}

// ValidateSetup verifies the bucket is reachable, creating it if it does not exist.
func (s *S3Store) ValidateSetup(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.settings.Bucket),
	})
	if err == nil {
		return nil
	}

	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return fmt.Errorf("checking bucket %s: %w", s.settings.Bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.settings.Bucket)}
	if s.settings.Region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.settings.Region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.settings.Bucket, err)
	}
	return nil
}

// Compile-time check that S3Store implements pool.Store interface
var _ pool.Store = (*S3Store)(nil)
