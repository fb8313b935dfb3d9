package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/analysis"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/auth"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/livecall"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/report"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/scenario"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeCalls struct {
	request call.StartCallRequest
	ended   []string
	err     error
}

func (calls *fakeCalls) StartCall(_ context.Context, request call.StartCallRequest) (*call.StartCallResult, error) {
	calls.request = request
	if calls.err != nil {
		return nil, calls.err
	}

	return &call.StartCallResult{Success: true, JobID: "job-1", Message: call.MessageCallStarted}, nil
}

func (calls *fakeCalls) EndCall(_ context.Context, jobID, telephonySID string) error {
	calls.ended = append(calls.ended, jobID+"|"+telephonySID)
	return calls.err
}

type fakeLiveCalls struct {
	current  []livecall.LiveCall
	acquired int
	released int
}

func (liveCalls *fakeLiveCalls) Acquire() func() {
	liveCalls.acquired++
	return func() { liveCalls.released++ }
}

func (liveCalls *fakeLiveCalls) Current() ([]livecall.LiveCall, bool) {
	return liveCalls.current, liveCalls.current != nil
}

func (liveCalls *fakeLiveCalls) Snapshot(context.Context) []livecall.LiveCall {
	return liveCalls.current
}

type fakeReports struct {
	reports map[string]*report.Report
	err     error
}

func (reports *fakeReports) Generate(_ context.Context, callID string) (*report.Report, error) {
	if reports.err != nil {
		return nil, reports.err
	}

	return &report.Report{CallID: callID, Status: report.DefaultStatus}, nil
}

func (reports *fakeReports) Save(_ context.Context, body *report.Report) (*report.Report, error) {
	if body.ID == "" {
		return nil, report.ErrMissingReportID
	}

	reports.reports[body.ID] = body

	return body, nil
}

func (reports *fakeReports) List(context.Context) ([]report.Summary, error) {
	summaries := make([]report.Summary, 0, len(reports.reports))
	for _, item := range reports.reports {
		summaries = append(summaries, item.Summarize())
	}

	return summaries, nil
}

func (reports *fakeReports) Get(_ context.Context, id string) (*report.Report, error) {
	found, ok := reports.reports[id]
	if !ok {
		return nil, report.ErrReportNotFound
	}

	return found, nil
}

func (reports *fakeReports) Delete(_ context.Context, id string) error {
	if _, ok := reports.reports[id]; !ok {
		return report.ErrReportNotFound
	}

	delete(reports.reports, id)

	return nil
}

func (reports *fakeReports) ExportXLSX(_ context.Context, w io.Writer) error {
	_, err := w.Write([]byte("xlsx"))
	return err
}

type fakePrompts struct{}

func (fakePrompts) GenerateAgentPrompt(_ context.Context, description, scenarioType string) (string, error) {
	if description == "" {
		return "", analysis.ErrMissingDescription
	}

	return scenarioType + ": " + description, nil
}

type fakeGroups struct{}

func (fakeGroups) RandomGroup(language string) scenario.Group {
	return scenario.Group{ID: "3", Name: "group-" + language}
}

type fakeHealth map[string]string

func (health fakeHealth) Degraded() map[string]string {
	return health
}

type testEnv struct {
	server    *Server
	calls     *fakeCalls
	liveCalls *fakeLiveCalls
	reports   *fakeReports
	broker    *livecall.Broker
	token     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions, err := auth.NewManager("test-secret", "callboard", time.Hour)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		calls:     &fakeCalls{},
		liveCalls: &fakeLiveCalls{},
		reports:   &fakeReports{reports: map[string]*report.Report{}},
		broker:    livecall.NewBroker(),
	}

	env.server = New(Dependencies{
		Sessions:       sessions,
		Authenticator:  auth.NewAuthenticator("operator", string(hash)),
		Calls:          env.calls,
		LiveCalls:      env.liveCalls,
		Stream:         env.broker,
		Reports:        env.reports,
		Prompts:        fakePrompts{},
		QuestionGroups: fakeGroups{},
		Health:         fakeHealth{},
	})

	token, err := sessions.Issue(time.Now(), "operator")
	require.NoError(t, err)

	env.token = token.AccessToken

	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token)

	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/login", `{"username":"operator","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "operator", body["username"])
	assert.NotEmpty(t, body["accessToken"])

	rec = env.do(t, http.MethodPost, "/api/auth/login", `{"username":"operator","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", `{"username":"operator"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.do(t, http.MethodGet, "/api/reports", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.token = "garbage"
	rec = env.do(t, http.MethodGet, "/api/auth/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator", decodeBody(t, rec)["username"])
}

func TestStartCall(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calls",
		`{"language":"en","variables":{"customerName":"Sara","phoneNumber":"+966500000000"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "en", env.calls.request.Language)
	assert.Equal(t, "Sara", env.calls.request.Variables["customerName"])
	assert.Equal(t, "job-1", decodeBody(t, rec)["jobId"])
}

func TestStartCallFlatVariables(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calls", `{"customer_name":"Ali","phone_number":"+966511111111"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ali", env.calls.request.Variables["customer_name"])
}

func TestStartCallValidationError(t *testing.T) {
	env := newTestEnv(t)
	env.calls.err = &call.ValidationError{Message: "customer name and phone are required", Err: call.ErrMissingCustomer}

	rec := env.do(t, http.MethodPost, "/api/calls", `{"variables":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "customer name and phone are required", decodeBody(t, rec)["error"])
}

func TestStartCallInvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calls", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndCall(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calls/live/job-9/end", `{"telephonySid":"CA1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-9|CA1"}, env.calls.ended)

	rec = env.do(t, http.MethodPost, "/api/calls/live/job-10/end", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-10|", env.calls.ended[1])
}

func TestLiveCalls(t *testing.T) {
	env := newTestEnv(t)
	env.liveCalls.current = []livecall.LiveCall{{ID: "job-1", CustomerName: "Sara"}}

	rec := env.do(t, http.MethodGet, "/api/calls/live", "")
	require.Equal(t, http.StatusOK, rec.Code)

	calls, ok := decodeBody(t, rec)["calls"].([]any)
	require.True(t, ok)
	assert.Len(t, calls, 1)
}

func TestLiveCallStreamSendsCurrentSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.liveCalls.current = []livecall.LiveCall{{ID: "job-1", CustomerName: "Sara"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/calls/live/stream", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+env.token)

	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "event: "+livecall.SnapshotEvent+"\ndata: "))
	assert.Contains(t, rec.Body.String(), `"customerName":"Sara"`)
	assert.Equal(t, 1, env.liveCalls.acquired)
	assert.Equal(t, 1, env.liveCalls.released)
	assert.Zero(t, env.broker.Subscribers())
}

func TestGenerateReport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/reports/generate", `{"callId":"call-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "call-1", decodeBody(t, rec)["callId"])
}

func TestGenerateReportParseError(t *testing.T) {
	env := newTestEnv(t)
	env.reports.err = &analysis.ParseError{Preview: "not json at all", Err: errors.New("response is not a JSON object")}

	rec := env.do(t, http.MethodPost, "/api/reports/generate", `{"callId":"call-1"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "not json at all", decodeBody(t, rec)["responsePreview"])
}

func TestGenerateReportMissingTranscript(t *testing.T) {
	env := newTestEnv(t)
	env.reports.err = report.ErrMissingCallID

	rec := env.do(t, http.MethodPost, "/api/reports/generate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/reports", `{"id":"r1","callId":"call-1","customerName":"Sara"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	rec = env.do(t, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data, ok := decodeBody(t, rec)["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)

	rec = env.do(t, http.MethodGet, "/api/reports/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sara", decodeBody(t, rec)["customerName"])

	rec = env.do(t, http.MethodDelete, "/api/reports/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/reports/r1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/reports/r1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportReports(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/reports/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, bytes.Equal([]byte("xlsx"), rec.Body.Bytes()))
}

func TestGeneratePrompt(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/prompts/generate", `{"description":" follow up ","scenarioType":"sales"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sales: follow up", decodeBody(t, rec)["prompt"])

	rec = env.do(t, http.MethodPost, "/api/prompts/generate", `{"description":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRandomQuestionGroup(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/question-groups/random?lang=en", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "group-en")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	env.server.deps.Health = fakeHealth{"redis": "dial tcp: refused"}

	rec = env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}
