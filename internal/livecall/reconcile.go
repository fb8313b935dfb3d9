package livecall

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/hamsa"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/twilio"
)

const (
	jobStatusProcessing = "processing"
	jobStatusPending    = "pending"
)

var phoneParams = []string{"phoneNumber", "phone_number", "actual_phone_number"}

// Reconcile joins in-flight voice-agent jobs with active telephony calls.
// It is a pure function of its inputs; the output order follows jobs.
func Reconcile(jobs []hamsa.Job, calls []twilio.Call, now time.Time, maxAge time.Duration) []LiveCall {
	live := make([]LiveCall, 0, len(jobs))

	for _, job := range jobs {
		if job.ID == "" || !isActive(job) || isStale(job, now, maxAge) {
			continue
		}

		phone := job.Param(phoneParams...)
		match, matched := matchCall(phone, calls)

		liveCall := LiveCall{
			ID:            job.ID,
			CustomerName:  orUnknown(job.Param("customerName", "customer_name")),
			PhoneNumber:   orUnknown(phone),
			Status:        displayStatus(job, match, matched),
			Duration:      FormatDuration(elapsed(job, match, matched, now)),
			StartedAt:     startedAt(job, match, matched),
			ProviderJobID: job.ID,
		}

		if matched {
			liveCall.TelephonySID = match.SID
		}

		live = append(live, liveCall)
	}

	return live
}

func isActive(job hamsa.Job) bool {
	status := strings.ToLower(job.Status)

	return status == jobStatusProcessing || status == jobStatusPending
}

// isStale reports jobs aged maxAge or more. Jobs without a creation time pass;
// jobs with an unparsable one are dropped.
func isStale(job hamsa.Job, now time.Time, maxAge time.Duration) bool {
	if job.CreatedAt == "" {
		return false
	}

	created, ok := job.CreatedTime()
	if !ok {
		return true
	}

	return now.Sub(created) >= maxAge
}

// matchCall returns the first call dialed to or from phone.
func matchCall(phone string, calls []twilio.Call) (twilio.Call, bool) {
	if phone == "" {
		return twilio.Call{}, false
	}

	for _, call := range calls {
		if call.To == phone || call.From == phone {
			return call, true
		}
	}

	return twilio.Call{}, false
}

func displayStatus(job hamsa.Job, match twilio.Call, matched bool) string {
	if matched {
		if strings.EqualFold(match.Status, twilio.StatusRinging) {
			return StatusRinging
		}

		return StatusInProgress
	}

	if strings.EqualFold(job.Status, jobStatusProcessing) {
		return StatusInProgress
	}

	return StatusRinging
}

// elapsed picks exactly one source: reported duration, then carrier start
// time, then job creation time.
func elapsed(job hamsa.Job, match twilio.Call, matched bool, now time.Time) time.Duration {
	if matched {
		if match.Duration != "" && match.Duration != "0" {
			seconds, err := strconv.Atoi(match.Duration)
			if err == nil {
				return time.Duration(seconds) * time.Second
			}
		}

		started, ok := match.Started()
		if ok {
			return now.Sub(started)
		}
	}

	created, ok := job.CreatedTime()
	if ok {
		return now.Sub(created)
	}

	return 0
}

func startedAt(job hamsa.Job, match twilio.Call, matched bool) string {
	if matched {
		started, ok := match.Started()
		if ok {
			return started.UTC().Format(time.RFC3339)
		}
	}

	return job.CreatedAt
}

// FormatDuration renders d as m:ss. Negative durations render as 0:00.
func FormatDuration(d time.Duration) string {
	seconds := max(int(d/time.Second), 0)

	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func orUnknown(value string) string {
	if value == "" {
		return UnknownField
	}

	return value
}
