package hamsa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/provider"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var (
	ErrRequestFailed       = errors.New("voice agent request failed")
	ErrProviderFetchFailed = errors.New("failed to fetch call details from voice agent provider")
	ErrMissingJobID        = errors.New("job id is required")
	ErrInvalidResponse     = errors.New("invalid voice agent response")
)

type Paths struct {
	Call string
	Job  string
	Jobs string
}

type Client struct {
	Requester *provider.Requester
	APIKey    string
	Paths     Paths
}

func NewClient() *Client {
	settings := provider.Settings{
		Name:                "Hamsa",
		Service:             circuitbreak.HamsaService,
		BaseURL:             config.Conf.HamsaBaseURL,
		Timeout:             time.Duration(config.Conf.HamsaTimeout) * time.Second,
		RetryAttempts:       config.Conf.HamsaRetryMaxAttempts,
		RetryBackoffMin:     time.Duration(config.Conf.HamsaRetryBackoffMin) * time.Second,
		RetryBackoffMax:     time.Duration(config.Conf.HamsaRetryBackoffMax) * time.Second,
		IntervalCB:          config.Conf.HamsaIntervalCB,
		ConsecutiveFailures: config.Conf.HamsaConsecutiveFailuresCB,
	}

	paths := Paths{
		Call: config.Conf.HamsaCallURL,
		Job:  config.Conf.HamsaJobURL,
		Jobs: config.Conf.HamsaJobsURL,
	}

	return NewClientWithSettings(settings, config.Conf.HamsaAPIKey, paths)
}

func NewClientWithSettings(settings provider.Settings, apiKey string, paths Paths) *Client {
	return &Client{
		Requester: provider.NewRequester(settings),
		APIKey:    apiKey,
		Paths:     paths,
	}
}

func (client *Client) header() http.Header {
	header := http.Header{}
	header.Set("Authorization", "Token "+client.APIKey)

	return header
}

// CreateCall places an outbound call through a voice agent.
func (client *Client) CreateCall(ctx context.Context, request CreateCallRequest) (*CreateCallResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	response, err := client.Requester.Do(ctx, provider.Request{
		Method:  http.MethodPost,
		Path:    client.Paths.Call,
		Header:  client.header(),
		Body:    body,
		LogName: "create_call",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if !response.OK() {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, response.Message())
	}

	var envelope map[string]any

	err = json.Unmarshal(response.Body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	data, _ := envelope["data"].(map[string]any)
	jobID := firstID(data["jobId"], data["id"], envelope["jobId"], envelope["id"])

	logging.Logger.Info("Voice agent call created",
		zap.String("job_id", jobID),
		zap.String("voice_agent_id", request.VoiceAgentID),
	)

	return &CreateCallResponse{JobID: jobID, Data: data}, nil
}

// GetJobDetails returns the raw job document. The "data" envelope, when
// present, is unwrapped.
func (client *Client) GetJobDetails(ctx context.Context, jobID string) (map[string]any, error) {
	if jobID == "" {
		return nil, ErrMissingJobID
	}

	response, err := client.Requester.Do(ctx, provider.Request{
		Method:  http.MethodGet,
		Path:    client.Paths.Job,
		Query:   url.Values{"jobId": []string{jobID}},
		Header:  client.header(),
		LogName: "job_details",
		Retry:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFetchFailed, err)
	}

	if !response.OK() {
		return nil, fmt.Errorf("%w: %s", ErrProviderFetchFailed, response.Message())
	}

	var envelope map[string]any

	err = json.Unmarshal(response.Body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFetchFailed, err)
	}

	data, ok := envelope["data"].(map[string]any)
	if ok {
		return data, nil
	}

	return envelope, nil
}

// ListJobs returns the most recent jobs, newest first as ordered by the provider.
func (client *Client) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	response, err := client.Requester.Do(ctx, provider.Request{
		Method:  http.MethodGet,
		Path:    client.Paths.Jobs,
		Query:   url.Values{"limit": []string{strconv.Itoa(limit)}},
		Header:  client.header(),
		LogName: "list_jobs",
		Retry:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if !response.OK() {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, response.Message())
	}

	var envelope jobsEnvelope

	err = json.Unmarshal(response.Body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	if envelope.Data.Jobs != nil {
		return envelope.Data.Jobs, nil
	}

	return envelope.Jobs, nil
}

// EndJob asks the provider to hang up the call behind jobID.
func (client *Client) EndJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrMissingJobID
	}

	response, err := client.Requester.Do(ctx, provider.Request{
		Method:  http.MethodPost,
		Path:    client.Paths.Jobs + "/" + url.PathEscape(jobID) + "/end",
		Header:  client.header(),
		Body:    []byte("{}"),
		LogName: "end_job",
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if !response.OK() {
		return fmt.Errorf("%w: %s", ErrRequestFailed, response.Message())
	}

	logging.Logger.Info("Voice agent job ended", zap.String("job_id", jobID))

	return nil
}

func firstID(values ...any) string {
	for _, value := range values {
		switch typed := value.(type) {
		case string:
			if typed != "" {
				return typed
			}
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64)
		}
	}

	return ""
}
