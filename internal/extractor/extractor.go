package extractor

import (
	"errors"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// MinTranscriptLength is the shortest transcript a report can be built from.
const MinTranscriptLength = 10

const (
	DefaultPhoneNumber = "not available"
	DefaultStatus      = "Completed"
	DefaultLanguage    = "en"
)

var ErrNoTranscriptAvailable = errors.New("no valid transcript available for this call")

// Fields holds what could be recovered from a provider call document.
// Every field carries its documented default when no rule matched.
type Fields struct {
	PhoneNumber   string `json:"phoneNumber"`
	Duration      int    `json:"duration"`
	Transcript    string `json:"transcript"`
	CustomerEmail string `json:"customerEmail"`
	CustomerName  string `json:"customerName,omitempty"`
	RecordingURL  string `json:"recordingUrl"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	Language      string `json:"language"`

	// TranscriptSource names the rule the transcript came from, empty if none matched.
	TranscriptSource string `json:"-"`
}

// Extract never fails.
func Extract(payload Payload) Fields {
	if payload == nil {
		payload = Payload{}
	}

	fields := Fields{
		PhoneNumber: DefaultPhoneNumber,
		Status:      DefaultStatus,
		Language:    DefaultLanguage,
	}

	if phone, _, ok := firstMatch(payload, PhoneRules); ok {
		fields.PhoneNumber = phone
	}

	if duration, _, ok := firstMatch(payload, DurationRules); ok {
		fields.Duration = duration
	}

	if transcript, source, ok := firstMatch(payload, TranscriptRules); ok {
		fields.Transcript = transcript
		fields.TranscriptSource = source
	}

	fields.CustomerEmail, _, _ = firstMatch(payload, EmailRules)
	fields.CustomerName, _, _ = firstMatch(payload, CustomerNameRules)
	fields.RecordingURL, _, _ = firstMatch(payload, RecordingURLRules)
	fields.CreatedAt, _, _ = firstMatch(payload, CreatedAtRules)

	if status, _, ok := firstMatch(payload, StatusRules); ok {
		fields.Status = status
	}

	if language, _, ok := firstMatch(payload, LanguageRules); ok {
		fields.Language = language
	}

	return fields
}

// ExtractJSON decodes raw and extracts from it. Undecodable input is treated
// as an empty document.
func ExtractJSON(raw []byte) Fields {
	var payload Payload

	err := json.Unmarshal(raw, &payload)
	if err != nil {
		payload = Payload{}
	}

	return Extract(payload)
}

// RequireTranscript rejects fields whose transcript is too short to analyse.
func (fields Fields) RequireTranscript() error {
	if utf8.RuneCountInString(fields.Transcript) < MinTranscriptLength {
		return ErrNoTranscriptAvailable
	}

	return nil
}
