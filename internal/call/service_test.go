package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/hamsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVoiceAgent struct {
	requests []hamsa.CreateCallRequest
	ended    []string
	jobID    string
	err      error
	endErr   error
}

func (voiceAgent *fakeVoiceAgent) CreateCall(
	_ context.Context,
	request hamsa.CreateCallRequest,
) (*hamsa.CreateCallResponse, error) {
	voiceAgent.requests = append(voiceAgent.requests, request)
	if voiceAgent.err != nil {
		return nil, voiceAgent.err
	}

	return &hamsa.CreateCallResponse{JobID: voiceAgent.jobID, Data: map[string]any{"jobId": voiceAgent.jobID}}, nil
}

func (voiceAgent *fakeVoiceAgent) EndJob(_ context.Context, jobID string) error {
	voiceAgent.ended = append(voiceAgent.ended, jobID)
	return voiceAgent.endErr
}

type fakeTelephony struct {
	ended []string
	err   error
}

func (telephony *fakeTelephony) EndCall(_ context.Context, sid string) error {
	telephony.ended = append(telephony.ended, sid)
	return telephony.err
}

type fakeMemory struct {
	saved []OutboundCall
	err   error
}

func (memory *fakeMemory) Save(_ context.Context, outboundCall *OutboundCall) error {
	memory.saved = append(memory.saved, *outboundCall)
	return memory.err
}

type fakeScheduler struct {
	scheduled []string
}

func (scheduler *fakeScheduler) Schedule(callID string) error {
	scheduler.scheduled = append(scheduler.scheduled, callID)
	return nil
}

var testAgents = Agents{
	AgentIDAr:    "agent-ar",
	AgentIDEn:    "agent-en",
	FromNumberAr: "+973100",
	FromNumberEn: "+973200",
}

func newTestService(voiceAgent *fakeVoiceAgent, memory *fakeMemory) *Service {
	service := NewService(voiceAgent, nil, nil, testAgents)
	service.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	if memory != nil {
		service.Memory = memory
	}

	return service
}

func TestStartCall(t *testing.T) {
	voiceAgent := &fakeVoiceAgent{jobID: "job-1"}
	memory := &fakeMemory{}

	result, err := newTestService(voiceAgent, memory).StartCall(context.Background(), StartCallRequest{
		Variables: map[string]any{
			"customerName": "  Ali ",
			"phone_number": "+97312345678",
			"serviceDate":  "2025-02-28",
			"notes":        "prefers mornings",
			"questions":    "1. satisfied?",
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "Ali", result.CustomerName)
	assert.Equal(t, "+97312345678", result.PhoneNumber)
	assert.Equal(t, MessageCallStarted, result.Message)
	assert.Equal(t, "job-1", result.Data["jobId"])

	require.Len(t, voiceAgent.requests, 1)
	request := voiceAgent.requests[0]
	assert.Equal(t, "agent-ar", request.VoiceAgentID)
	assert.Equal(t, "+973100", request.FromNumber)
	assert.Equal(t, "+97312345678", request.ToNumber)
	assert.Equal(t, "Ali|+97312345678", request.Title)
	assert.Equal(t, map[string]string{
		"customer_name":       "Ali",
		"phone_number":        "+97312345678",
		"service_date":        "2025-02-28",
		"questions":           "1. satisfied?",
		"note":                "prefers mornings",
		"actual_phone_number": "+97312345678",
	}, request.Params)

	require.Len(t, memory.saved, 1)
	assert.Equal(t, OutboundCall{
		JobID:        "job-1",
		CustomerName: "Ali",
		PhoneNumber:  "+97312345678",
		Language:     LanguageArabic,
		ScenarioID:   DefaultScenarioID,
		CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}, memory.saved[0])
}

func TestStartCallEnglishAgent(t *testing.T) {
	voiceAgent := &fakeVoiceAgent{jobID: "job-1"}

	_, err := newTestService(voiceAgent, nil).StartCall(context.Background(), StartCallRequest{
		Language:  LanguageEnglish,
		Variables: map[string]any{"customer_name": "Sam", "phoneNumber": "+1555"},
	})
	require.NoError(t, err)

	assert.Equal(t, "agent-en", voiceAgent.requests[0].VoiceAgentID)
	assert.Equal(t, "+973200", voiceAgent.requests[0].FromNumber)
}

func TestStartCallMissingCustomer(t *testing.T) {
	testCases := []struct {
		name      string
		language  string
		variables map[string]any
		message   string
	}{
		{
			name:      "missing phone arabic",
			variables: map[string]any{"customer_name": "Ali"},
			message:   messageMissingCustomerAr,
		},
		{
			name:      "blank name english",
			language:  LanguageEnglish,
			variables: map[string]any{"customer_name": "   ", "phoneNumber": "+1555"},
			message:   messageMissingCustomerEn,
		},
		{
			name:      "non string values",
			variables: map[string]any{"customer_name": 12, "phoneNumber": 973},
			message:   messageMissingCustomerAr,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			voiceAgent := &fakeVoiceAgent{}

			_, err := newTestService(voiceAgent, nil).StartCall(context.Background(), StartCallRequest{
				Language:  testCase.language,
				Variables: testCase.variables,
			})
			require.ErrorIs(t, err, ErrMissingCustomer)
			assert.Equal(t, testCase.message, err.Error())
			assert.Empty(t, voiceAgent.requests)
		})
	}
}

func TestStartCallProviderFailure(t *testing.T) {
	voiceAgent := &fakeVoiceAgent{err: errors.New("invalid phone number")}
	memory := &fakeMemory{}

	_, err := newTestService(voiceAgent, memory).StartCall(context.Background(), StartCallRequest{
		Variables: map[string]any{"customer_name": "Ali", "phoneNumber": "+973"},
	})
	require.ErrorIs(t, err, ErrStartCallFailed)
	assert.Contains(t, err.Error(), "invalid phone number")
	assert.Empty(t, memory.saved)
}

func TestStartCallMemoryFailureIsNotFatal(t *testing.T) {
	memory := &fakeMemory{err: errors.New("database down")}

	result, err := newTestService(&fakeVoiceAgent{jobID: "job-1"}, memory).StartCall(context.Background(), StartCallRequest{
		Variables: map[string]any{"customer_name": "Ali", "phoneNumber": "+973"},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", result.JobID)
}

func TestEndCallPrefersTelephony(t *testing.T) {
	voiceAgent := &fakeVoiceAgent{}
	telephony := &fakeTelephony{}
	scheduler := &fakeScheduler{}

	service := newTestService(voiceAgent, nil)
	service.Telephony = telephony
	service.Reports = scheduler

	require.NoError(t, service.EndCall(context.Background(), "job-1", "CA123"))

	assert.Equal(t, []string{"CA123"}, telephony.ended)
	assert.Empty(t, voiceAgent.ended)
	assert.Equal(t, []string{"job-1"}, scheduler.scheduled)
}

func TestEndCallFallsBackToVoiceAgent(t *testing.T) {
	voiceAgent := &fakeVoiceAgent{}
	telephony := &fakeTelephony{err: errors.New("twilio down")}

	service := newTestService(voiceAgent, nil)
	service.Telephony = telephony

	require.NoError(t, service.EndCall(context.Background(), "job-1", "CA123"))
	assert.Equal(t, []string{"job-1"}, voiceAgent.ended)

	require.NoError(t, service.EndCall(context.Background(), "job-2", ""))
	assert.Equal(t, []string{"job-1", "job-2"}, voiceAgent.ended)
	assert.Len(t, telephony.ended, 1)
}

func TestEndCallFailure(t *testing.T) {
	endErr := errors.New("job already finished")
	scheduler := &fakeScheduler{}

	service := newTestService(&fakeVoiceAgent{endErr: endErr}, nil)
	service.Reports = scheduler

	require.ErrorIs(t, service.EndCall(context.Background(), "job-1", ""), endErr)
	require.ErrorIs(t, service.EndCall(context.Background(), " ", ""), ErrMissingJobID)
	assert.Empty(t, scheduler.scheduled)
}
