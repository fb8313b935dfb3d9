package hamsa

import (
	"strconv"
	"strings"
	"time"
)

// Job is a voice-agent job as returned by the jobs listing.
type Job struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	CreatedAt    string       `json:"createdAt"`
	AgentDetails AgentDetails `json:"agentDetails"`
}

type AgentDetails struct {
	Lang   string         `json:"lang"`
	Params map[string]any `json:"params"`
}

// Param returns the first non-empty agent parameter among keys.
func (job Job) Param(keys ...string) string {
	for _, key := range keys {
		switch value := job.AgentDetails.Params[key].(type) {
		case string:
			if strings.TrimSpace(value) != "" {
				return value
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		}
	}

	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// CreatedTime parses CreatedAt. ok is false when it is empty or unparsable.
func (job Job) CreatedTime() (time.Time, bool) {
	return ParseTime(job.CreatedAt)
}

func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}

type CreateCallRequest struct {
	ToNumber     string            `json:"toNumber"`
	FromNumber   string            `json:"fromNumber"`
	VoiceAgentID string            `json:"voiceAgentId"`
	Params       map[string]string `json:"params"`
	Title        string            `json:"title"`
}

type CreateCallResponse struct {
	JobID string
	Data  map[string]any
}

type jobsEnvelope struct {
	Data struct {
		Jobs []Job `json:"jobs"`
	} `json:"data"`
	Jobs []Job `json:"jobs"`
}
