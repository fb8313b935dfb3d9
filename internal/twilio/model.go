package twilio

import "time"

const (
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Call is a carrier-level call record.
type Call struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
}

// Started parses StartTime, which the API renders as RFC 1123 with a numeric zone.
func (call Call) Started() (time.Time, bool) {
	if call.StartTime == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		parsed, err := time.Parse(layout, call.StartTime)
		if err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}

type callsPage struct {
	Calls []Call `json:"calls"`
}
