package extractor

import (
	"math"
	"strings"
	"unicode/utf8"
)

// minScriptLength is the length a plain script field must exceed before it is trusted.
const minScriptLength = 10

// Rule is one ranked source for a field. Extract reports false when its
// source is missing or does not have the expected shape.
type Rule[T any] struct {
	Name    string
	Extract func(Payload) (T, bool)
}

// firstMatch evaluates rules in declared order and returns the first hit.
func firstMatch[T any](payload Payload, rules []Rule[T]) (T, string, bool) {
	for _, rule := range rules {
		value, ok := rule.Extract(payload)
		if ok {
			return value, rule.Name, true
		}
	}

	var zero T

	return zero, "", false
}

func phoneAt(path ...string) Rule[string] {
	return Rule[string]{
		Name: strings.Join(path, "."),
		Extract: func(payload Payload) (string, bool) {
			phone := LookupString(payload, path...)
			if phone == "" || strings.Contains(phone, "/") {
				return "", false
			}

			return phone, true
		},
	}
}

// PhoneRules are tried in order; a candidate containing "/" is a path-like
// artifact and is skipped.
var PhoneRules = []Rule[string]{
	phoneAt("data", "toNumber"),
	phoneAt("data", "params", "actual_phone_number"),
	phoneAt("data", "params", "phone_number"),
	phoneAt("toNumber"),
	phoneAt("params", "actual_phone_number"),
	phoneAt("agentDetails", "params", "phone_number"),
	phoneAt("data", "agentDetails", "params", "phone_number"),
}

func durationAt(path ...string) Rule[int] {
	return Rule[int]{
		Name: strings.Join(path, "."),
		Extract: func(payload Payload) (int, bool) {
			value, ok := Lookup(payload, path...)
			if !ok || !truthy(value) {
				return 0, false
			}

			seconds, ok := Number(value)
			if !ok {
				return 0, false
			}

			return int(math.Round(seconds)), true
		},
	}
}

var DurationRules = []Rule[int]{
	durationAt("data", "callDuration"),
	durationAt("callDuration"),
	durationAt("data", "duration"),
	durationAt("duration"),
}

func textAt(path ...string) Rule[string] {
	return Rule[string]{
		Name: strings.Join(path, "."),
		Extract: func(payload Payload) (string, bool) {
			text := LookupString(payload, path...)
			return text, text != ""
		},
	}
}

var EmailRules = []Rule[string]{
	textAt("agentDetails", "params", "customerEmail"),
	textAt("params", "customerEmail"),
	textAt("metadata", "customerEmail"),
	textAt("data", "params", "customerEmail"),
	textAt("data", "agentDetails", "params", "customerEmail"),
}

var StatusRules = []Rule[string]{
	textAt("status"),
	textAt("data", "status"),
}

var CreatedAtRules = []Rule[string]{
	textAt("createdAt"),
	textAt("data", "createdAt"),
}

var LanguageRules = []Rule[string]{
	textAt("agentDetails", "lang"),
	textAt("data", "agentDetails", "lang"),
	textAt("language"),
}

var RecordingURLRules = []Rule[string]{
	textAt("recordingUrl"),
	textAt("data", "recordingUrl"),
	textAt("audioUrl"),
	textAt("data", "audioUrl"),
}

// CustomerNameRules read the name the call was placed with. The analysis
// result takes precedence; these only fill a gap.
var CustomerNameRules = []Rule[string]{
	textAt("agentDetails", "params", "customerName"),
	textAt("agentDetails", "params", "customer_name"),
	textAt("params", "customer_name"),
	textAt("data", "params", "customer_name"),
	textAt("data", "agentDetails", "params", "customer_name"),
}

func scriptAt(path ...string) Rule[string] {
	return Rule[string]{
		Name: strings.Join(path, "."),
		Extract: func(payload Payload) (string, bool) {
			text := LookupString(payload, path...)
			return text, utf8.RuneCountInString(text) > minScriptLength
		},
	}
}

// TranscriptRules are exclusive: the first rule whose source exists with the
// right shape wins even when the text it renders turns out too short.
var TranscriptRules = []Rule[string]{
	{Name: "data.jobResponse.transcription", Extract: turnTranscript},
	scriptAt("toScript"),
	scriptAt("fromScript"),
	scriptAt("data", "toScript"),
	scriptAt("data", "fromScript"),
	scriptAt("data", "transcript"),
	scriptAt("transcript"),
	{Name: "messages", Extract: messageTranscript},
	{Name: "conversation", Extract: conversationTranscript},
}

func turnTranscript(payload Payload) (string, bool) {
	value, ok := Lookup(payload, "data", "jobResponse", "transcription")
	if !ok {
		return "", false
	}

	turns, ok := value.([]any)
	if !ok {
		return "", false
	}

	lines := make([]string, 0, len(turns))

	for _, item := range turns {
		turn, ok := item.(map[string]any)
		if !ok {
			continue
		}

		switch {
		case truthy(turn["Agent"]):
			lines = append(lines, "Agent: "+stringify(turn["Agent"]))
		case truthy(turn["User"]):
			lines = append(lines, "Customer: "+stringify(turn["User"]))
		}
	}

	return strings.Join(lines, "\n"), true
}

var agentRoles = map[string]bool{
	"assistant": true,
	"bot":       true,
	"agent":     true,
}

func messageTranscript(payload Payload) (string, bool) {
	value, ok := Lookup(payload, "messages")
	if !ok {
		return "", false
	}

	messages, ok := value.([]any)
	if !ok {
		return "", false
	}

	lines := make([]string, 0, len(messages))

	for _, item := range messages {
		message, ok := item.(map[string]any)
		if !ok {
			continue
		}

		content := firstTruthy(message["message"], message["content"], message["text"])
		if content == nil {
			continue
		}

		role := "Customer"

		roleName, _ := message["role"].(string)
		if agentRoles[roleName] {
			role = "Agent"
		}

		lines = append(lines, role+": "+stringify(content))
	}

	return strings.Join(lines, "\n"), true
}

func conversationTranscript(payload Payload) (string, bool) {
	value, ok := Lookup(payload, "conversation")
	if !ok || !truthy(value) {
		return "", false
	}

	return stringify(value), true
}

func firstTruthy(values ...any) any {
	for _, value := range values {
		if truthy(value) {
			return value
		}
	}

	return nil
}
