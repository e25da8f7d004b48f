package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	// MaxProofFileSize is the maximum allowed size for a payment proof upload (5MB).
	MaxProofFileSize = 5 * 1024 * 1024
	// FolderProofs is the S3 prefix for payment proof objects.
	FolderProofs = "proofs"
	// FolderCertificates is the S3 prefix for finalized certificate objects.
	FolderCertificates = "certificates"
)

// Allowed proof and certificate MIME types by extension.
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	CertificatesBucket   string
	FolderPrefix         string
	PresignExpireMinutes int
}

// S3 provides streaming uploads and pre-signed URLs against the certificate bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the environment.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ContentTypeForFilename returns the MIME type for a filename extension.
func ContentTypeForFilename(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ct, ok := allowedExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ValidateProofFileType reports whether the extension is allowed for payment proofs.
func ValidateProofFileType(filename string) bool {
	_, ok := allowedExtensions[strings.ToLower(path.Ext(filename))]
	return ok
}

// ProofKey returns the object key for a payment proof: [prefix/]proofs/{registration_id}{ext}.
func (s *S3) ProofKey(registrationID, filename string) string {
	return s.withPrefix(path.Join(FolderProofs, registrationID+strings.ToLower(path.Ext(filename))))
}

// CertificateKey returns the object key: [prefix/]certificates/{event_id}/{filename}.
func (s *S3) CertificateKey(eventID, filename string) string {
	return s.withPrefix(path.Join(FolderCertificates, eventID, path.Base(filename)))
}

func (s *S3) withPrefix(key string) string {
	if s.cfg.FolderPrefix == "" {
		return key
	}
	return path.Join(s.cfg.FolderPrefix, key)
}

// Upload streams a reader to the certificates bucket and returns the object URL.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.CertificatesBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return s.ObjectURL(key), nil
}

// UploadProof uploads a payment proof under the proofs folder.
func (s *S3) UploadProof(ctx context.Context, registrationID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.Upload(ctx, s.ProofKey(registrationID, filename), contentType, body, size)
}

// UploadCertificate uploads a matched certificate file under the certificates folder.
func (s *S3) UploadCertificate(ctx context.Context, eventID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.Upload(ctx, s.CertificateKey(eventID, filename), contentType, body, size)
}

// ObjectURL returns the public URL for an object in the certificates bucket.
func (s *S3) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.CertificatesBucket, s.cfg.Region, key)
}

// KeyFromObjectURL recovers the object key from a URL built by ObjectURL.
// Returns false for URLs pointing outside the certificates bucket.
func (s *S3) KeyFromObjectURL(objectURL string) (string, bool) {
	prefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.cfg.CertificatesBucket, s.cfg.Region)
	if !strings.HasPrefix(objectURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(objectURL, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// GeneratePresignedDownloadURL returns a pre-signed GET URL for an object.
func (s *S3) GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.CertificatesBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// PresignDownloadByURL presigns a GET for an object identified by its public
// URL, using the configured expiry.
func (s *S3) PresignDownloadByURL(ctx context.Context, objectURL string) (string, error) {
	key, ok := s.KeyFromObjectURL(objectURL)
	if !ok {
		return "", fmt.Errorf("object URL %q is not in the certificates bucket", objectURL)
	}
	return s.GeneratePresignedDownloadURL(ctx, key, s.PresignExpire())
}

// DeleteObjectByURL removes an object identified by its public URL. URLs
// outside the certificates bucket are ignored.
func (s *S3) DeleteObjectByURL(ctx context.Context, objectURL string) error {
	key, ok := s.KeyFromObjectURL(objectURL)
	if !ok {
		return nil
	}
	return s.DeleteObject(ctx, key)
}

// DeleteObject removes an object from the certificates bucket.
func (s *S3) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.CertificatesBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
