// Package blob は添付ファイルのオブジェクトストレージを提供する。
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrEmptyName はオブジェクト名が空の場合に返る。
var ErrEmptyName = errors.New("object name is empty")

// cacheControl はアップロードしたファイルに付与するキャッシュ指定。
const cacheControl = "max-age=3600"

// Config はS3互換ストレージの接続設定。
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // MinIOなどS3互換ストレージのURL。空の場合はAWSを使用する
	AccessKey string
	SecretKey string
	PublicURL string // 公開URLのベース。空の場合はEndpointまたはAWSのURLから組み立てる
}

// putObjectAPI はS3クライアントのうちアップロードで使用する操作。
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store はS3互換ストレージへファイルを保存する。
type S3Store struct {
	client  putObjectAPI
	bucket  string
	baseURL string
}

// NewS3Store はS3Storeを生成する。
// AccessKeyが指定されている場合は静的認証情報を使用し、それ以外はSDKのデフォルト解決に従う。
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client putObjectAPI, cfg Config) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: publicBaseURL(cfg),
	}
}

// Upload はファイルを指定名で保存し、公開URLを返す。
// 同名のオブジェクトが既に存在する場合は上書きせずエラーを返す。
func (s *S3Store) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String(cacheControl),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", name, err)
	}

	return s.PublicURL(name), nil
}

// PublicURL はオブジェクト名から公開URLを組み立てる。
func (s *S3Store) PublicURL(name string) string {
	return s.baseURL + "/" + url.PathEscape(name)
}

func publicBaseURL(cfg Config) string {
	switch {
	case cfg.PublicURL != "":
		return strings.TrimRight(cfg.PublicURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}
