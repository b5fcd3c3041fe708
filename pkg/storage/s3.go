package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// FolderAnswers is the S3 prefix for archived answer recordings.
	FolderAnswers = "answers"
	// DefaultAnswerContentType is what browsers' MediaRecorder produces.
	DefaultAnswerContentType = "video/webm"
)

var answerExtensions = map[string]string{
	"video/webm": ".webm",
	"audio/webm": ".webm",
	"video/mp4":  ".mp4",
	"audio/mp4":  ".m4a",
	"audio/ogg":  ".ogg",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AnswersBucket        string
	PresignExpireMinutes int
}

// S3 stores archived interview answers.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
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
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("answers_bucket", cfg.AnswersBucket))
	} else {
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

// AnswerKey returns the object key for one answer:
// answers/{interview_id}/{question_index}{ext}.
func AnswerKey(interviewID uuid.UUID, question int, contentType string) string {
	return path.Join(FolderAnswers, interviewID.String(), strconv.Itoa(question)+ExtensionFor(contentType))
}

// ExtensionFor maps a recorder MIME type (codecs parameters ignored) to a
// file extension, defaulting to .webm.
func ExtensionFor(contentType string) string {
	base, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	if ext, ok := answerExtensions[strings.TrimSpace(base)]; ok {
		return ext
	}
	return ".webm"
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// UploadAnswer streams an answer recording into the answers bucket.
func (s *S3) UploadAnswer(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error {
	if contentType == "" {
		contentType = DefaultAnswerContentType
	}
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AnswersBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug("answer uploaded", zap.String("key", key), zap.Int64("bytes", contentLength))
	return nil
}

// PresignAnswerDownload returns a pre-signed GET URL for an answer.
func (s *S3) PresignAnswerDownload(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AnswersBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
