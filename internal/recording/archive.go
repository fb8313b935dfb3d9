package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

const defaultExtension = ".mp3"

var (
	ErrInvalidRecordingURL = errors.New("invalid recording url")
	ErrRecordingTooLarge   = errors.New("recording exceeds maximum file size")
	ErrRecordingDownload   = errors.New("failed to download recording")
)

// Archived describes a recording copied to object storage.
type Archived struct {
	ObjectKey string
	URL       string
	Size      int
	Duration  int
}

type ObjectStorage interface {
	Upload(ctx context.Context, buffer *bytes.Buffer, objectKey, contentType string) (string, error)
}

type DurationProber interface {
	GetDuration(ctx context.Context, audioBuffer *bytes.Buffer, callID, ext string) (int, error)
}

type Archiver struct {
	HTTPClient    *http.Client
	Storage       ObjectStorage
	Prober        DurationProber
	MaxFileSize   int64
	RetryAttempts uint
	RetryDelay    time.Duration
}

func NewArchiver(storage ObjectStorage, prober DurationProber) *Archiver {
	return &Archiver{
		HTTPClient:    &http.Client{Timeout: time.Duration(config.Conf.MinioTimeout) * time.Second},
		Storage:       storage,
		Prober:        prober,
		MaxFileSize:   config.Conf.RecordingMaxFileSize,
		RetryAttempts: config.Conf.MinioMaxRetryAttempts,
		RetryDelay:    time.Duration(config.Conf.MinioRetryBackoffMinSeconds) * time.Second,
	}
}

// Archive downloads the recording at sourceURL and stores it as
// <callID><ext>. Duration is filled when a prober is set and succeeds.
func (archiver *Archiver) Archive(ctx context.Context, callID, sourceURL string) (*Archived, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecordingURL, sourceURL)
	}

	ext := strings.ToLower(path.Ext(parsed.Path))
	if ext == "" {
		ext = defaultExtension
	}

	buffer, contentType, err := archiver.download(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}

	objectKey := callID + ext

	objectURL, err := archiver.Storage.Upload(ctx, buffer, objectKey, contentType)
	if err != nil {
		return nil, err
	}

	archived := &Archived{ObjectKey: objectKey, URL: objectURL, Size: buffer.Len()}

	if archiver.Prober != nil {
		duration, err := archiver.Prober.GetDuration(ctx, buffer, callID, ext)
		if err != nil {
			logging.Logger.Warn("Failed to read recording duration",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)
		} else {
			archived.Duration = duration
		}
	}

	logging.Logger.Info("Recording archived",
		zap.String("call_id", callID),
		zap.String("object_key", objectKey),
		zap.Int("size", archived.Size),
	)

	return archived, nil
}

func (archiver *Archiver) download(ctx context.Context, sourceURL string) (*bytes.Buffer, string, error) {
	var (
		buffer      *bytes.Buffer
		contentType string
	)

	err := retry.Do(
		func() error {
			var err error

			buffer, contentType, err = archiver.fetch(ctx, sourceURL)

			return err
		},
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrRecordingTooLarge)
		}),
		retry.Attempts(max(archiver.RetryAttempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(archiver.RetryDelay),
	)
	if err != nil {
		return nil, "", err
	}

	return buffer, contentType, nil
}

func (archiver *Archiver) fetch(ctx context.Context, sourceURL string) (*bytes.Buffer, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := archiver.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrRecordingDownload, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", ErrRecordingDownload, resp.StatusCode)
	}

	limit := archiver.MaxFileSize
	if limit <= 0 {
		limit = 1 << 62
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrRecordingDownload, err)
	}

	if int64(len(data)) > limit {
		return nil, "", ErrRecordingTooLarge
	}

	return bytes.NewBuffer(data), resp.Header.Get("Content-Type"), nil
}
