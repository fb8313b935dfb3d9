package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	callboardPrometheus "git.mci.dev/mse/sre/phoenix/golang/callboard/internal/prometheus"
	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrConvertToStringURL = errors.New("failed to convert result url to string")
	ErrConvertToBuffer    = errors.New("failed to convert result to pointer to bytes.Buffer")
	ErrNotConfigured      = errors.New("object storage is not configured")
	ErrBucketMissing      = errors.New("bucket does not exist")
)

type Settings struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Bucket          string
	PathPrefix      string
	Secure          bool
	Timeout         time.Duration
	RetryAttempts   uint
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration
}

type MinioClient struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	Settings       Settings
}

// Configured reports whether recordings should be archived.
func Configured() bool {
	return config.Conf.MinioEndpointURL != ""
}

func SettingsFromConfig() Settings {
	return Settings{
		Endpoint:        config.Conf.MinioEndpointURL,
		AccessKey:       config.Conf.MinioAccessKey,
		SecretKey:       config.Conf.MinioSecretKey,
		Bucket:          config.Conf.MinioBucketName,
		PathPrefix:      config.Conf.MinioPathPrefix,
		Secure:          config.Conf.MinioSecure,
		Timeout:         time.Duration(config.Conf.MinioTimeout) * time.Second,
		RetryAttempts:   config.Conf.MinioMaxRetryAttempts,
		RetryBackoffMin: time.Duration(config.Conf.MinioRetryBackoffMinSeconds) * time.Second,
		RetryBackoffMax: time.Duration(config.Conf.MinioRetryBackoffMaxSeconds) * time.Second,
	}
}

func NewMinioClient(settings Settings) (*MinioClient, error) {
	if settings.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.Secure,
	})
	if err != nil {
		logging.Logger.Error("Failed to initialize MinIO client", zap.String("error", err.Error()))
		return nil, err
	}

	logging.Logger.Info("MinIO client initialized",
		zap.String("endpoint", settings.Endpoint),
		zap.String("bucket", settings.Bucket),
	)

	cbSettings := circuitbreak.NewSettings(
		"minio",
		circuitbreak.MinioService,
		config.Conf.MinioIntervalCB,
		config.Conf.MinioConsecutiveFailuresCB,
	)

	return &MinioClient{
		Client:         client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
		Settings:       settings,
	}, nil
}

// Upload stores data under objectKey and returns the object URL.
func (m *MinioClient) Upload(ctx context.Context, buffer *bytes.Buffer, objectKey, contentType string) (string, error) {
	logging.Logger.Info("Starting MinIO upload",
		zap.String("object_key", objectKey),
		zap.Int("buffer_size", buffer.Len()),
	)

	url, err := m.CircuitBreaker.Execute(func() (any, error) {
		return m.doUpload(ctx, buffer, objectKey, contentType)
	})
	if err != nil {
		return "", err
	}

	urlStr, ok := url.(string)
	if !ok {
		return "", ErrConvertToStringURL
	}

	return urlStr, nil
}

// Download reads objectKey into memory.
func (m *MinioClient) Download(ctx context.Context, objectKey string) (*bytes.Buffer, error) {
	result, err := m.CircuitBreaker.Execute(func() (any, error) {
		return m.doDownload(ctx, objectKey)
	})
	if err != nil {
		return nil, err
	}

	buf, ok := result.(*bytes.Buffer)
	if !ok {
		return nil, ErrConvertToBuffer
	}

	return buf, nil
}

// CheckBucket verifies the archive bucket is reachable.
func (m *MinioClient) CheckBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.Settings.Timeout)
	defer cancel()

	exists, err := m.Client.BucketExists(ctx, m.Settings.Bucket)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s", ErrBucketMissing, m.Settings.Bucket)
	}

	return nil
}

func (m *MinioClient) doUpload(
	ctx context.Context,
	buffer *bytes.Buffer,
	objectKey string,
	contentType string,
) (string, error) {
	timer := prometheus.NewTimer(callboardPrometheus.MinioOperationDuration.WithLabelValues("upload"))
	defer timer.ObserveDuration()

	var url string

	ctxWithTimeout, cancel := context.WithTimeout(ctx, m.Settings.Timeout)
	defer cancel()

	err := retry.Do(
		func() error {
			_, err := m.Client.PutObject(
				ctxWithTimeout,
				m.Settings.Bucket,
				m.getKey(objectKey),
				bytes.NewReader(buffer.Bytes()),
				int64(buffer.Len()),
				minio.PutObjectOptions{ContentType: contentType},
			)
			if err != nil {
				logging.Logger.Error("MinIO upload failed",
					zap.String("object_key", objectKey),
					zap.String("error", err.Error()),
				)

				return err
			}

			url = m.generateURL(objectKey)

			return nil
		},
		retry.Context(ctxWithTimeout),
		retry.Attempts(max(m.Settings.RetryAttempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(m.Settings.RetryBackoffMin),
		retry.MaxDelay(m.Settings.RetryBackoffMax),
	)
	if err != nil {
		logging.Logger.Error("MinIO upload failed after all retry attempts",
			zap.String("object_key", objectKey),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	logging.Logger.Info("MinIO upload completed successfully",
		zap.String("object_key", objectKey),
		zap.String("url", url),
	)

	return url, nil
}

func (m *MinioClient) doDownload(ctx context.Context, objectKey string) (*bytes.Buffer, error) {
	timer := prometheus.NewTimer(callboardPrometheus.MinioOperationDuration.WithLabelValues("download"))
	defer timer.ObserveDuration()

	var buf *bytes.Buffer

	ctxWithTimeout, cancel := context.WithTimeout(ctx, m.Settings.Timeout)
	defer cancel()

	err := retry.Do(
		func() error {
			object, err := m.Client.GetObject(
				ctxWithTimeout,
				m.Settings.Bucket,
				m.getKey(objectKey),
				minio.GetObjectOptions{},
			)
			if err != nil {
				return err
			}

			defer func() {
				cerr := object.Close()
				if cerr != nil {
					logging.Logger.Error("Failed to close MinIO object reader",
						zap.String("error", cerr.Error()),
						zap.String("object", objectKey),
					)
				}
			}()

			data, err := io.ReadAll(object)
			if err != nil {
				return err
			}

			buf = bytes.NewBuffer(data)

			return nil
		},
		retry.Context(ctxWithTimeout),
		retry.Attempts(max(m.Settings.RetryAttempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(m.Settings.RetryBackoffMin),
		retry.MaxDelay(m.Settings.RetryBackoffMax),
	)
	if err != nil {
		logging.Logger.Error("MinIO download failed after all retry attempts",
			zap.String("object_key", objectKey),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	return buf, nil
}

func (m *MinioClient) generateURL(objectKey string) string {
	scheme := "http"
	if m.Settings.Secure {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.Settings.Endpoint, m.Settings.Bucket, m.getKey(objectKey))
}

// getKey joins with "/" regardless of the host OS.
func (m *MinioClient) getKey(objectKey string) string {
	return strings.TrimPrefix(path.Join(m.Settings.PathPrefix, objectKey), "/")
}
