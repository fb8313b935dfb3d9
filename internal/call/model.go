package call

import (
	"time"
)

const (
	DefaultScenarioID = "after-sales-followup"
	LanguageArabic    = "ar"
	LanguageEnglish   = "en"
)

// OutboundCall remembers who an outbound job was placed for.
type OutboundCall struct {
	JobID        string    `gorm:"column:job_id;primaryKey" json:"jobId"`
	CustomerName string    `gorm:"column:customer_name"     json:"customerName"`
	PhoneNumber  string    `gorm:"column:phone_number"      json:"phoneNumber"`
	Language     string    `gorm:"column:language"          json:"language"`
	ScenarioID   string    `gorm:"column:scenario_id"       json:"scenarioId"`
	CreatedAt    time.Time `gorm:"column:created_at"        json:"createdAt"`
}

func (OutboundCall) TableName() string {
	return "outbound_calls"
}

type StartCallRequest struct {
	ScenarioID string         `json:"scenarioId"`
	Language   string         `json:"language"`
	Variables  map[string]any `json:"variables"`
}

type StartCallResult struct {
	Success      bool           `json:"success"`
	JobID        string         `json:"jobId"`
	CustomerName string         `json:"customerName"`
	PhoneNumber  string         `json:"phoneNumber"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data"`
}
