package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const maxMessageLength = 300

var (
	ErrServerError  = errors.New("provider server error")
	ErrInvalidURL   = errors.New("invalid provider url")
	ErrNilRequester = errors.New("provider requester is not configured")
)

// Settings configure transport, retry and breaker behavior of one provider.
type Settings struct {
	Name                string
	Service             string
	BaseURL             string
	Timeout             time.Duration
	RetryAttempts       uint
	RetryBackoffMin     time.Duration
	RetryBackoffMax     time.Duration
	IntervalCB          uint32
	ConsecutiveFailures uint32
}

// Response is a completed HTTP exchange. Non 2xx statuses are not errors at
// this level; callers decide what a status means.
type Response struct {
	StatusCode int
	Body       []byte
}

func (response *Response) OK() bool {
	return response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices
}

// Message returns the provider's error text, or a trimmed body.
func (response *Response) Message() string {
	var envelope struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Detail  string `json:"detail"`
	}

	err := json.Unmarshal(response.Body, &envelope)
	if err == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Detail != "":
			return envelope.Detail
		case envelope.Error != nil:
			text, ok := envelope.Error.(string)
			if ok {
				return text
			}
		}
	}

	text := strings.TrimSpace(string(response.Body))
	if utf8.RuneCountInString(text) > maxMessageLength {
		text = string([]rune(text)[:maxMessageLength])
	}

	if text == "" {
		text = http.StatusText(response.StatusCode)
	}

	return text
}

// Request is one call to a provider endpoint.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	Body    []byte
	Form    url.Values
	LogName string
	// Retry allows resending on transport failures and 5xx. Only set it for
	// idempotent reads; calls that start or end something are sent once.
	Retry bool
}

type Requester struct {
	HTTPClient     *http.Client
	Settings       Settings
	CircuitBreaker *gobreaker.CircuitBreaker[*Response]
}

func NewRequester(settings Settings) *Requester {
	cbSettings := circuitbreak.NewSettings(
		settings.Name,
		settings.Service,
		settings.IntervalCB,
		settings.ConsecutiveFailures,
	)
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}

	return &Requester{
		HTTPClient:     &http.Client{Timeout: settings.Timeout},
		Settings:       settings,
		CircuitBreaker: gobreaker.NewCircuitBreaker[*Response](cbSettings),
	}
}

// Do sends request through the breaker. Requests marked Retry are resent on
// transport failures and 5xx responses with exponential backoff.
func (requester *Requester) Do(ctx context.Context, request Request) (*Response, error) {
	if requester == nil {
		return nil, ErrNilRequester
	}

	endpoint, err := requester.endpoint(request)
	if err != nil {
		return nil, err
	}

	return requester.CircuitBreaker.Execute(func() (*Response, error) {
		var response *Response

		attempts := uint(1)
		if request.Retry {
			attempts = max(requester.Settings.RetryAttempts, 1)
		}

		err := retry.Do(
			func() error {
				var err error

				response, err = requester.send(ctx, endpoint, request)

				return err
			},
			retry.Context(ctx),
			retry.LastErrorOnly(true),
			retry.Attempts(attempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(requester.Settings.RetryBackoffMin),
			retry.MaxDelay(requester.Settings.RetryBackoffMax),
		)
		if err != nil {
			logging.Logger.Error("Provider request failed",
				zap.String("provider", requester.Settings.Name),
				zap.String("request", request.LogName),
				zap.Uint("attempts", attempts),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return response, nil
	})
}

func (requester *Requester) endpoint(request Request) (string, error) {
	endpoint, err := url.JoinPath(requester.Settings.BaseURL, request.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if len(request.Query) > 0 {
		endpoint += "?" + request.Query.Encode()
	}

	return endpoint, nil
}

func (requester *Requester) send(ctx context.Context, endpoint string, request Request) (*Response, error) {
	var body io.Reader

	contentType := "application/json"

	switch {
	case request.Form != nil:
		body = strings.NewReader(request.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case request.Body != nil:
		body = bytes.NewReader(request.Body)
	}

	req, err := http.NewRequestWithContext(ctx, request.Method, endpoint, body)
	if err != nil {
		return nil, err
	}

	for key, values := range request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := requester.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		cerr := resp.Body.Close()
		if cerr != nil {
			logging.Logger.Error("Failed to close response body", zap.String("error", cerr.Error()))
		}
	}()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	response := &Response{StatusCode: resp.StatusCode, Body: content}

	logging.Logger.Debug("Provider response",
		zap.String("provider", requester.Settings.Name),
		zap.String("request", request.LogName),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("content_length", len(content)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, response.Message())
	}

	return response, nil
}
