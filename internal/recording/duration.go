package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/goccy/go-json"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

var (
	ErrAudioBufferNilOrEmpty = errors.New("audio buffer is nil or empty")
	ErrDurationNotFound      = errors.New("duration not found in ffprobe output")
)

// DurationService reads audio durations with ffprobe.
type DurationService struct {
	TempDir string
}

func NewDurationService() *DurationService {
	return &DurationService{
		TempDir: os.TempDir(),
	}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// GetDuration returns the whole seconds of audio in audioBuffer. ext is the
// file extension ffprobe uses to pick a demuxer, such as ".mp3".
func (durationService *DurationService) GetDuration(
	ctx context.Context,
	audioBuffer *bytes.Buffer,
	callID string,
	ext string,
) (int, error) {
	if audioBuffer == nil || audioBuffer.Len() == 0 {
		return 0, ErrAudioBufferNilOrEmpty
	}

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	tempFile, err := os.CreateTemp(durationService.TempDir, "duration_*"+ext)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	tempFilePath := tempFile.Name()

	defer func() {
		_ = os.Remove(tempFilePath)
	}()

	_, err = io.Copy(tempFile, bytes.NewReader(audioBuffer.Bytes()))
	if err != nil {
		_ = tempFile.Close()
		return 0, fmt.Errorf("failed to write audio to temp file: %w", err)
	}

	err = tempFile.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	probeData, err := ffmpeg.Probe(tempFilePath)
	if err != nil {
		logging.Logger.Error("ffprobe failed to extract duration",
			zap.String("call_id", callID),
			zap.String("error", err.Error()),
		)

		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(probeData)
}

func parseProbeDuration(probeData string) (int, error) {
	var output ffprobeOutput

	err := json.Unmarshal([]byte(probeData), &output)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if output.Format.Duration == "" {
		return 0, ErrDurationNotFound
	}

	durationFloat, err := strconv.ParseFloat(output.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return int(durationFloat + 0.5), nil
}
