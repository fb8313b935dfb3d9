package report

import (
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/analysis"
	"gorm.io/datatypes"
)

const (
	UnknownCustomer    = "Unknown"
	UnknownPhoneNumber = "N/A"
	DefaultStatus      = "completed"
)

// Report is the durable outcome of one completed call.
type Report struct {
	ID                   string                                `gorm:"column:id;primaryKey"           json:"id"`
	CallID               string                                `gorm:"column:call_id;index"           json:"callId"`
	CustomerName         string                                `gorm:"column:customer_name"           json:"customerName"`
	PhoneNumber          string                                `gorm:"column:phone_number"            json:"phoneNumber"`
	CustomerEmail        string                                `gorm:"column:customer_email"          json:"customerEmail"`
	Duration             int                                   `gorm:"column:duration"                json:"duration"`
	Status               string                                `gorm:"column:status"                  json:"status"`
	Language             string                                `gorm:"column:language"                json:"language"`
	Transcript           string                                `gorm:"column:transcript"              json:"transcript"`
	RecordingURL         string                                `gorm:"column:recording_url"           json:"recordingUrl"`
	ArchivedRecordingURL string                                `gorm:"column:archived_recording_url"  json:"archivedRecordingUrl,omitempty"`
	Summary              string                                `gorm:"column:summary"                 json:"summary"`
	Notes                string                                `gorm:"column:notes"                   json:"notes"`
	Analysis             datatypes.JSONType[analysis.Analysis] `gorm:"column:analysis;type:jsonb"     json:"analysis"`
	CreatedAt            time.Time                             `gorm:"column:created_at;index"        json:"createdAt"`
	GeneratedAt          time.Time                             `gorm:"column:generated_at"            json:"generatedAt"`
	UpdatedAt            time.Time                             `gorm:"column:updated_at"              json:"updatedAt"`
}

func (Report) TableName() string {
	return "call_reports"
}

// Summary is the list view of a report.
type Summary struct {
	ID                   string    `json:"id"`
	CallID               string    `json:"callId"`
	CustomerName         string    `json:"customerName"`
	PhoneNumber          string    `json:"phoneNumber"`
	CustomerEmail        string    `json:"customerEmail"`
	Duration             int       `json:"duration"`
	Status               string    `json:"status"`
	Language             string    `json:"language"`
	Summary              string    `json:"summary"`
	CustomerMood         string    `json:"customerMood"`
	CustomerOverallScore float64   `json:"customerOverallScore"`
	CreatedAt            time.Time `json:"createdAt"`
	GeneratedAt          time.Time `json:"generatedAt"`
}

func (report *Report) Summarize() Summary {
	result := report.Analysis.Data()

	return Summary{
		ID:                   report.ID,
		CallID:               report.CallID,
		CustomerName:         report.CustomerName,
		PhoneNumber:          report.PhoneNumber,
		CustomerEmail:        report.CustomerEmail,
		Duration:             report.Duration,
		Status:               report.Status,
		Language:             report.Language,
		Summary:              report.Summary,
		CustomerMood:         result.CustomerMood,
		CustomerOverallScore: float64(result.CustomerOverallScore),
		CreatedAt:            report.CreatedAt,
		GeneratedAt:          report.GeneratedAt,
	}
}

// Event is published after a report is saved or deleted.
type Event struct {
	Type     string    `json:"type"`
	ReportID string    `json:"reportId"`
	Report   *Report   `json:"report,omitempty"`
	SentAt   time.Time `json:"sentAt"`
}

const (
	EventSaved   = "report.saved"
	EventDeleted = "report.deleted"
)
