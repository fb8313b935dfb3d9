package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/hamsa"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"go.uber.org/zap"
)

const (
	MessageCallStarted       = "تم بدء المكالمة بنجاح"
	messageMissingCustomerAr = "اسم العميل ورقم الهاتف مطلوبان"
	messageMissingCustomerEn = "Customer name and phone number are required"
)

var (
	ErrMissingCustomer   = errors.New("customer name and phone number are required")
	ErrStartCallFailed   = errors.New("فشل في بدء المكالمة")
	ErrMissingJobID      = errors.New("job id is required")
	ErrMissingVoiceAgent = errors.New("voice agent id is not configured")
)

// ValidationError carries a message meant for the operator in their language.
type ValidationError struct {
	Message string
	Err     error
}

func (validationError *ValidationError) Error() string {
	return validationError.Message
}

func (validationError *ValidationError) Unwrap() error {
	return validationError.Err
}

type VoiceAgent interface {
	CreateCall(ctx context.Context, request hamsa.CreateCallRequest) (*hamsa.CreateCallResponse, error)
	EndJob(ctx context.Context, jobID string) error
}

type Telephony interface {
	EndCall(ctx context.Context, sid string) error
}

type Memory interface {
	Save(ctx context.Context, outboundCall *OutboundCall) error
}

// ReportScheduler generates the report of an ended call in the background.
type ReportScheduler interface {
	Schedule(callID string) error
}

// Agents holds the voice agent and caller number per language.
type Agents struct {
	AgentIDAr    string
	AgentIDEn    string
	FromNumberAr string
	FromNumberEn string
}

func AgentsFromConfig() Agents {
	return Agents{
		AgentIDAr:    config.Conf.HamsaVoiceAgentIDAr,
		AgentIDEn:    config.Conf.HamsaVoiceAgentIDEn,
		FromNumberAr: config.Conf.HamsaFromNumberAr,
		FromNumberEn: config.Conf.HamsaFromNumberEn,
	}
}

func (agents Agents) forLanguage(language string) (string, string) {
	if language == LanguageEnglish {
		return agents.AgentIDEn, agents.FromNumberEn
	}

	return agents.AgentIDAr, agents.FromNumberAr
}

type Service struct {
	VoiceAgent VoiceAgent
	Telephony  Telephony
	Memory     Memory
	Reports    ReportScheduler
	Agents     Agents
	now        func() time.Time
}

func NewService(voiceAgent VoiceAgent, telephony Telephony, memory Memory, agents Agents) *Service {
	return &Service{
		VoiceAgent: voiceAgent,
		Telephony:  telephony,
		Memory:     memory,
		Agents:     agents,
		now:        time.Now,
	}
}

type callVariables struct {
	customerName string
	phoneNumber  string
	serviceDate  string
	questions    string
	notes        string
}

func readVariables(variables map[string]any) callVariables {
	return callVariables{
		customerName: variable(variables, "customer_name", "customerName"),
		phoneNumber:  variable(variables, "phoneNumber", "phone_number"),
		serviceDate:  variable(variables, "service_date", "serviceDate"),
		questions:    variable(variables, "questions"),
		notes:        variable(variables, "note", "notes"),
	}
}

// variable returns the first non-empty trimmed string among keys.
func variable(variables map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := variables[key].(string)
		if !ok {
			continue
		}

		value = strings.TrimSpace(value)
		if value != "" {
			return value
		}
	}

	return ""
}

func missingCustomer(language string) error {
	message := messageMissingCustomerAr
	if language == LanguageEnglish {
		message = messageMissingCustomerEn
	}

	return &ValidationError{Message: message, Err: ErrMissingCustomer}
}

// StartCall places an outbound call for the customer in request.Variables.
func (callService *Service) StartCall(ctx context.Context, request StartCallRequest) (*StartCallResult, error) {
	scenarioID := request.ScenarioID
	if scenarioID == "" {
		scenarioID = DefaultScenarioID
	}

	language := request.Language
	if language == "" {
		language = LanguageArabic
	}

	vars := readVariables(request.Variables)
	if vars.customerName == "" || vars.phoneNumber == "" {
		logging.Logger.Warn("[StartCall] Missing customer name or phone number",
			zap.Bool("has_customer_name", vars.customerName != ""),
			zap.Bool("has_phone_number", vars.phoneNumber != ""),
		)

		return nil, missingCustomer(language)
	}

	voiceAgentID, fromNumber := callService.Agents.forLanguage(language)
	if voiceAgentID == "" {
		return nil, fmt.Errorf("%w: %w", ErrStartCallFailed, ErrMissingVoiceAgent)
	}

	response, err := callService.VoiceAgent.CreateCall(ctx, hamsa.CreateCallRequest{
		ToNumber:     vars.phoneNumber,
		FromNumber:   fromNumber,
		VoiceAgentID: voiceAgentID,
		Params: map[string]string{
			"customer_name":       vars.customerName,
			"phone_number":        vars.phoneNumber,
			"service_date":        vars.serviceDate,
			"questions":           vars.questions,
			"note":                vars.notes,
			"actual_phone_number": vars.phoneNumber,
		},
		Title: vars.customerName + "|" + vars.phoneNumber,
	})
	if err != nil {
		logging.Logger.Error("[StartCall] Failed to create call",
			zap.String("scenario_id", scenarioID),
			zap.String("language", language),
			zap.String("error", err.Error()),
		)

		return nil, fmt.Errorf("%w: %w", ErrStartCallFailed, err)
	}

	callService.remember(ctx, &OutboundCall{
		JobID:        response.JobID,
		CustomerName: vars.customerName,
		PhoneNumber:  vars.phoneNumber,
		Language:     language,
		ScenarioID:   scenarioID,
		CreatedAt:    callService.now().UTC(),
	})

	logging.Logger.Info("Outbound call started",
		zap.String("job_id", response.JobID),
		zap.String("scenario_id", scenarioID),
		zap.String("language", language),
	)

	return &StartCallResult{
		Success:      true,
		JobID:        response.JobID,
		CustomerName: vars.customerName,
		PhoneNumber:  vars.phoneNumber,
		Message:      MessageCallStarted,
		Data:         response.Data,
	}, nil
}

func (callService *Service) remember(ctx context.Context, outboundCall *OutboundCall) {
	if callService.Memory == nil || outboundCall.JobID == "" {
		return
	}

	err := callService.Memory.Save(ctx, outboundCall)
	if err != nil {
		logging.Logger.Warn("[StartCall] Failed to remember outbound call",
			zap.String("job_id", outboundCall.JobID),
			zap.String("error", err.Error()),
		)
	}
}

// EndCall hangs up jobID. The telephony leg is ended directly when its sid is
// known; otherwise, or when that fails, the voice agent ends the job.
func (callService *Service) EndCall(ctx context.Context, jobID, telephonySID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ErrMissingJobID
	}

	err := callService.hangUp(ctx, jobID, strings.TrimSpace(telephonySID))
	if err != nil {
		return err
	}

	if callService.Reports != nil {
		err = callService.Reports.Schedule(jobID)
		if err != nil {
			logging.Logger.Warn("[EndCall] Failed to schedule report generation",
				zap.String("job_id", jobID),
				zap.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (callService *Service) hangUp(ctx context.Context, jobID, telephonySID string) error {
	if telephonySID != "" && callService.Telephony != nil {
		err := callService.Telephony.EndCall(ctx, telephonySID)
		if err == nil {
			logging.Logger.Info("Call ended through telephony",
				zap.String("job_id", jobID),
				zap.String("telephony_sid", telephonySID),
			)

			return nil
		}

		logging.Logger.Warn("[EndCall] Telephony hang-up failed, ending voice agent job",
			zap.String("job_id", jobID),
			zap.String("telephony_sid", telephonySID),
			zap.String("error", err.Error()),
		)
	}

	err := callService.VoiceAgent.EndJob(ctx, jobID)
	if err != nil {
		logging.Logger.Error("[EndCall] Failed to end voice agent job",
			zap.String("job_id", jobID),
			zap.String("error", err.Error()),
		)

		return err
	}

	return nil
}
