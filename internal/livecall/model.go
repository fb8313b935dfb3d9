package livecall

const (
	StatusRinging    = "Ringing..."
	StatusInProgress = "In Progress"
	UnknownField     = "Unknown"
)

// LiveCall is a display view of one in-flight voice-agent job, joined with
// its carrier-level call when one was found. It is rebuilt on every poll.
type LiveCall struct {
	ID            string `json:"id"`
	CustomerName  string `json:"customerName"`
	PhoneNumber   string `json:"phoneNumber"`
	Status        string `json:"status"`
	Duration      string `json:"duration"`
	StartedAt     string `json:"startedAt"`
	TelephonySID  string `json:"telephonySid,omitempty"`
	ProviderJobID string `json:"providerJobId"`
}
