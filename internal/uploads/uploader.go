package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"linkup-client/internal/domain"
)

// Prefixes mirror the two buckets the conversation media lives in: voice
// notes in one, everything else in the other.
const (
	audioPrefix = "recordings/"
	mediaPrefix = "message-img/"
)

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
}

// Store uploads conversation attachments to object storage and deletes the
// ones the user discards before sending. An uploaded file is known to the
// rest of the client only by its public URL.
type Store struct {
	cfg S3Config
	s3  *s3.Client
}

func NewStore(ctx context.Context, cfg S3Config) (*Store, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &Store{cfg: cfg, s3: client}, nil
}

// Upload stores one attachment and returns its public URL. Progress is
// reported through onProgress as a 0-100 percentage when the size is known;
// the callback may be nil.
func (s *Store) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64, onProgress func(percent int)) (string, error) {
	if filename == "" {
		return "", errors.New("file name is required")
	}

	key := keyFor(filename)
	body := r
	if onProgress != nil && size > 0 {
		body = &progressReader{inner: r, total: size, onProgress: onProgress}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.s3.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if onProgress != nil {
		onProgress(100)
	}
	return s.FileURL(key), nil
}

// Delete removes one uploaded attachment by its public URL.
func (s *Store) Delete(ctx context.Context, fileURL string) error {
	key := s.keyFromURL(fileURL)
	if key == "" {
		return fmt.Errorf("delete: unrecognized file url %q", fileURL)
	}
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	return err
}

// DeleteAll removes every given attachment in one batch call.
func (s *Store) DeleteAll(ctx context.Context, fileURLs []string) error {
	if len(fileURLs) == 0 {
		return nil
	}
	objects := make([]types.ObjectIdentifier, 0, len(fileURLs))
	for _, fileURL := range fileURLs {
		key := s.keyFromURL(fileURL)
		if key == "" {
			return fmt.Errorf("delete all: unrecognized file url %q", fileURL)
		}
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}
	_, err := s.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.cfg.Bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	return err
}

// FileURL maps an object key to its public URL.
func (s *Store) FileURL(key string) string {
	if key == "" {
		return ""
	}
	if s.cfg.PublicBase != "" {
		return strings.TrimSuffix(s.cfg.PublicBase, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

func (s *Store) keyFromURL(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return ""
	}
	p := strings.TrimPrefix(parsed.Path, "/")
	if strings.HasPrefix(p, audioPrefix) || strings.HasPrefix(p, mediaPrefix) {
		return p
	}
	// Path-style endpoints carry the bucket as the first segment.
	if rest, ok := strings.CutPrefix(p, s.cfg.Bucket+"/"); ok {
		return rest
	}
	return ""
}

func keyFor(filename string) string {
	prefix := mediaPrefix
	if domain.ClassifyFile(filename) == domain.KindAudio {
		prefix = audioPrefix
	}
	return prefix + uuid.New().String() + strings.ToLower(path.Ext(filename))
}

type progressReader struct {
	inner      io.Reader
	total      int64
	read       int64
	last       int
	onProgress func(percent int)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.read += int64(n)
		percent := int(r.read * 100 / r.total)
		if percent > 100 {
			percent = 100
		}
		if percent != r.last {
			r.last = percent
			r.onProgress(percent)
		}
	}
	return n, err
}
