package twilio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/provider"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pageSize = "50"

var (
	ErrRequestFailed  = errors.New("telephony request failed")
	ErrMissingCallSID = errors.New("call sid is required")
)

type Client struct {
	Requester  *provider.Requester
	AccountSID string
	AuthToken  string
}

// Configured reports whether telephony credentials are present.
func Configured() bool {
	return config.Conf.TwilioAccountSID != "" && config.Conf.TwilioAuthToken != ""
}

func NewClient() *Client {
	settings := provider.Settings{
		Name:                "Twilio",
		Service:             circuitbreak.TwilioService,
		BaseURL:             config.Conf.TwilioBaseURL,
		Timeout:             time.Duration(config.Conf.TwilioTimeout) * time.Second,
		RetryAttempts:       config.Conf.TwilioRetryMaxAttempts,
		RetryBackoffMin:     time.Duration(config.Conf.TwilioRetryBackoffMin) * time.Second,
		RetryBackoffMax:     time.Duration(config.Conf.TwilioRetryBackoffMax) * time.Second,
		IntervalCB:          config.Conf.TwilioIntervalCB,
		ConsecutiveFailures: config.Conf.TwilioConsecutiveFailuresCB,
	}

	return NewClientWithSettings(settings, config.Conf.TwilioAccountSID, config.Conf.TwilioAuthToken)
}

func NewClientWithSettings(settings provider.Settings, accountSID, authToken string) *Client {
	return &Client{
		Requester:  provider.NewRequester(settings),
		AccountSID: accountSID,
		AuthToken:  authToken,
	}
}

func (client *Client) header() http.Header {
	credentials := base64.StdEncoding.EncodeToString([]byte(client.AccountSID + ":" + client.AuthToken))

	header := http.Header{}
	header.Set("Authorization", "Basic "+credentials)

	return header
}

func (client *Client) callsPath() string {
	return "/2010-04-01/Accounts/" + url.PathEscape(client.AccountSID) + "/Calls"
}

// ListActiveCalls returns ringing and in-progress calls. Both statuses are
// queried concurrently and concatenated, ringing first.
func (client *Client) ListActiveCalls(ctx context.Context) ([]Call, error) {
	statuses := []string{StatusRinging, StatusInProgress}
	pages := make([][]Call, len(statuses))

	group, groupCtx := errgroup.WithContext(ctx)

	for idx, status := range statuses {
		group.Go(func() error {
			calls, err := client.listCalls(groupCtx, status)
			if err != nil {
				return err
			}

			pages[idx] = calls

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	calls := make([]Call, 0, len(pages[0])+len(pages[1]))
	for _, page := range pages {
		calls = append(calls, page...)
	}

	return calls, nil
}

func (client *Client) listCalls(ctx context.Context, status string) ([]Call, error) {
	response, err := client.Requester.Do(ctx, provider.Request{
		Method:  http.MethodGet,
		Path:    client.callsPath() + ".json",
		Query:   url.Values{"Status": []string{status}, "PageSize": []string{pageSize}},
		Header:  client.header(),
		LogName: "list_calls_" + status,
		Retry:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if !response.OK() {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, response.Message())
	}

	var page callsPage

	err = json.Unmarshal(response.Body, &page)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	return page.Calls, nil
}

// EndCall hangs up the call identified by sid.
func (client *Client) EndCall(ctx context.Context, sid string) error {
	if sid == "" {
		return ErrMissingCallSID
	}

	response, err := client.Requester.Do(ctx, provider.Request{
		Method:  http.MethodPost,
		Path:    client.callsPath() + "/" + url.PathEscape(sid) + ".json",
		Header:  client.header(),
		Form:    url.Values{"Status": []string{StatusCompleted}},
		LogName: "end_call",
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if !response.OK() {
		return fmt.Errorf("%w: %s", ErrRequestFailed, response.Message())
	}

	logging.Logger.Info("Telephony call ended", zap.String("call_sid", sid))

	return nil
}
