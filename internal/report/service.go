package report

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/analysis"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/extractor"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/recording"
	"github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrMissingCallID   = errors.New("callId is required")
	ErrMissingReportID = errors.New("report id is required")
)

type JobFetcher interface {
	GetJobDetails(ctx context.Context, jobID string) (map[string]any, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*analysis.Analysis, error)
}

// CallMemory knows the customer an outbound job was placed for.
type CallMemory interface {
	Customer(ctx context.Context, jobID string) (name, phone string, ok bool)
}

type RecordingArchiver interface {
	Archive(ctx context.Context, callID, sourceURL string) (*recording.Archived, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// FailureRecorder keeps background generations that failed for a later retry.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, callID string, err error) error
}

type Service struct {
	Jobs      JobFetcher
	Analyzer  Analyzer
	Assembler *Assembler
	Store     *Store
	Calls     CallMemory
	Archiver  RecordingArchiver
	Events    Publisher
	Failures  FailureRecorder
	Pool      *ants.Pool
	now       func() time.Time
}

func NewService(jobs JobFetcher, analyzer Analyzer, assembler *Assembler, store *Store) *Service {
	if assembler == nil {
		assembler = NewAssembler(nil)
	}

	return &Service{
		Jobs:      jobs,
		Analyzer:  analyzer,
		Assembler: assembler,
		Store:     store,
		now:       time.Now,
	}
}

// Generate builds a report for a finished call. The report is not saved.
func (reportService *Service) Generate(ctx context.Context, callID string) (*Report, error) {
	start := time.Now()

	report, err := reportService.generate(ctx, strings.TrimSpace(callID))

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	prometheus.ReportGenerationDuration.WithLabelValues(outcome).Observe(prometheus.Since(start))

	return report, err
}

func (reportService *Service) generate(ctx context.Context, callID string) (*Report, error) {
	if callID == "" {
		return nil, ErrMissingCallID
	}

	logging.Logger.Info("Generating report", zap.String("call_id", callID))

	payload, err := reportService.Jobs.GetJobDetails(ctx, callID)
	if err != nil {
		logging.Logger.Error("[Generate] Failed to fetch call details",
			zap.String("call_id", callID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	fields := extractor.Extract(payload)

	logging.Logger.Debug("Extracted call fields",
		zap.String("call_id", callID),
		zap.String("phone_number", fields.PhoneNumber),
		zap.Int("duration", fields.Duration),
		zap.String("transcript_source", fields.TranscriptSource),
		zap.Int("transcript_length", len(fields.Transcript)),
	)

	err = fields.RequireTranscript()
	if err != nil {
		logging.Logger.Warn("[Generate] No usable transcript", zap.String("call_id", callID))
		return nil, err
	}

	result, err := reportService.Analyzer.Analyze(ctx, fields.Transcript)
	if err != nil {
		logging.Logger.Error("[Generate] Analysis failed",
			zap.String("call_id", callID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	report, err := reportService.Assembler.Assemble(callID, fields, result, reportService.now().UTC())
	if err != nil {
		return nil, err
	}

	reportService.enrichCustomer(ctx, report)
	reportService.archiveRecording(ctx, report)

	logging.Logger.Info("Report generated",
		zap.String("call_id", callID),
		zap.String("customer_name", report.CustomerName),
		zap.Int("duration", report.Duration),
	)

	return report, nil
}

func (reportService *Service) enrichCustomer(ctx context.Context, report *Report) {
	if reportService.Calls == nil {
		return
	}

	name, phone, ok := reportService.Calls.Customer(ctx, report.CallID)
	if !ok {
		return
	}

	if report.CustomerName == UnknownCustomer && name != "" {
		report.CustomerName = name
	}

	if report.PhoneNumber == extractor.DefaultPhoneNumber && phone != "" {
		report.PhoneNumber = phone
	}
}

// archiveRecording copies the recording to object storage. Failures only
// cost the archived copy.
func (reportService *Service) archiveRecording(ctx context.Context, report *Report) {
	if reportService.Archiver == nil || report.RecordingURL == "" {
		return
	}

	archived, err := reportService.Archiver.Archive(ctx, report.CallID, report.RecordingURL)
	if err != nil {
		logging.Logger.Warn("[Generate] Failed to archive recording",
			zap.String("call_id", report.CallID),
			zap.String("error", err.Error()),
		)

		return
	}

	report.ArchivedRecordingURL = archived.URL

	if report.Duration == 0 && archived.Duration > 0 {
		report.Duration = archived.Duration
	}
}

// Save normalizes and upserts report, then announces it.
func (reportService *Service) Save(ctx context.Context, report *Report) (*Report, error) {
	if report == nil || strings.TrimSpace(report.ID) == "" {
		return nil, ErrMissingReportID
	}

	reportService.normalize(report)

	saved, err := reportService.Store.Upsert(ctx, report)
	if err != nil {
		logging.Logger.Error("[Save] Failed to save report",
			zap.String("report_id", report.ID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Report saved", zap.String("report_id", saved.ID))

	reportService.publish(ctx, EventSaved, saved.ID, saved)

	return saved, nil
}

func (reportService *Service) normalize(report *Report) {
	now := reportService.now().UTC()

	if report.CallID == "" {
		report.CallID = report.ID
	}

	if report.CustomerName == "" {
		report.CustomerName = UnknownCustomer
	}

	if report.PhoneNumber == "" {
		report.PhoneNumber = UnknownPhoneNumber
	}

	if report.Status == "" {
		report.Status = DefaultStatus
	}

	description := report.Analysis.Data().CustomerBehavior.Description
	if description != "" {
		report.Summary = description
	}

	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}

	report.UpdatedAt = now
}

func (reportService *Service) List(ctx context.Context) ([]Summary, error) {
	return reportService.Store.List(ctx)
}

func (reportService *Service) Get(ctx context.Context, id string) (*Report, error) {
	return reportService.Store.Get(ctx, id)
}

func (reportService *Service) Delete(ctx context.Context, id string) error {
	err := reportService.Store.Delete(ctx, id)
	if err != nil {
		return err
	}

	logging.Logger.Info("Report deleted", zap.String("report_id", id))

	reportService.publish(ctx, EventDeleted, id, nil)

	return nil
}

// Regenerate generates and saves the report for callID unless one was
// already saved. A saved report only changes through Save.
func (reportService *Service) Regenerate(ctx context.Context, callID string) error {
	saved, err := reportService.alreadySaved(ctx, callID)
	if err != nil || saved {
		return err
	}

	report, err := reportService.Generate(ctx, callID)
	if err != nil {
		return err
	}

	saved, err = reportService.alreadySaved(ctx, callID)
	if err != nil || saved {
		return err
	}

	_, err = reportService.Save(ctx, report)

	return err
}

func (reportService *Service) alreadySaved(ctx context.Context, callID string) (bool, error) {
	_, err := reportService.Store.Get(ctx, strings.TrimSpace(callID))

	switch {
	case err == nil:
		logging.Logger.Info("[Regenerate] Report already saved, skipping", zap.String("call_id", callID))
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Schedule regenerates the report for callID on the worker pool. A failure
// is handed to the failure recorder.
func (reportService *Service) Schedule(callID string) error {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		err := reportService.Regenerate(ctx, callID)
		if err == nil || reportService.Failures == nil {
			return
		}

		recordErr := reportService.Failures.RecordFailure(ctx, callID, err)
		if recordErr != nil {
			logging.Logger.Error("[Schedule] Failed to record report generation failure",
				zap.String("call_id", callID),
				zap.String("error", recordErr.Error()),
			)
		}
	}

	if reportService.Pool == nil {
		go task()
		return nil
	}

	return reportService.Pool.Submit(task)
}

func (reportService *Service) publish(ctx context.Context, eventType, reportID string, report *Report) {
	if reportService.Events == nil {
		return
	}

	value, err := json.Marshal(Event{
		Type:     eventType,
		ReportID: reportID,
		Report:   report,
		SentAt:   reportService.now().UTC(),
	})
	if err != nil {
		logging.Logger.Error("Failed to encode report event", zap.String("error", err.Error()))
		return
	}

	result := "success"

	err = reportService.Events.Publish(ctx, reportID, value)
	if err != nil {
		result = "failure"

		logging.Logger.Warn("Failed to publish report event",
			zap.String("type", eventType),
			zap.String("report_id", reportID),
			zap.String("error", err.Error()),
		)
	}

	prometheus.ReportEvents.WithLabelValues(eventType, result).Inc()
}
