package analysis

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int64   `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionBody(t *testing.T, content string) string {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	require.NoError(t, err)

	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	circuitbreak.Init()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return NewClientWithSettings(Settings{
		BaseURL:             server.URL,
		APIKey:              "test-key",
		Model:               "gpt-4o-mini",
		Organization:        "Acme Services",
		Timeout:             5 * time.Second,
		Temperature:         0.7,
		MaxTokens:           8192,
		PromptMaxTokens:     2048,
		RetryAttempts:       3,
		RetryBackoffMin:     time.Millisecond,
		RetryBackoffMax:     5 * time.Millisecond,
		IntervalCB:          60,
		ConsecutiveFailures: 10,
	})
}

func TestAnalyze(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var request chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "gpt-4o-mini", request.Model)
		assert.InDelta(t, 0.7, request.Temperature, 0.0001)
		assert.Equal(t, int64(8192), request.MaxTokens)
		require.NotNil(t, request.ResponseFormat)
		assert.Equal(t, "json_object", request.ResponseFormat.Type)
		require.Len(t, request.Messages, 2)
		assert.Equal(t, "system", request.Messages[0].Role)
		assert.Contains(t, request.Messages[0].Content, "Acme Services")
		assert.Contains(t, request.Messages[1].Content, "Agent: hello there")

		_, _ = io.WriteString(w, completionBody(t, `{
			"customerName": "Ali",
			"customerMood": "satisfied",
			"customerBehavior": {"score": "8", "description": "Cooperative throughout"},
			"keyDiscussionPoints": ["delivery"],
			"customerAssessmentQuestions": [{"question": "q", "answer": "a", "status": "Good"}],
			"customerRecommendations": ["follow up"],
			"customerOverallScore": 9
		}`))
	})

	analysis, err := client.Analyze(context.Background(), "Agent: hello there\nCustomer: hi")
	require.NoError(t, err)
	assert.Equal(t, "Ali", analysis.CustomerName)
	assert.Equal(t, Score(8), analysis.CustomerBehavior.Score)
	assert.Equal(t, "Cooperative throughout", analysis.CustomerBehavior.Description)
	assert.Len(t, analysis.CustomerAssessmentQuestions, 1)
	assert.Equal(t, Score(9), analysis.CustomerOverallScore)
}

func TestAnalyzeParseFailure(t *testing.T) {
	content := strings.Repeat("x", 800)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, completionBody(t, content))
	})

	_, err := client.Analyze(context.Background(), "Agent: hello there")

	var parseError *ParseError
	require.ErrorAs(t, err, &parseError)
	assert.Len(t, parseError.Preview, 500)
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error": {"message": "overloaded"}}`)

			return
		}

		_, _ = io.WriteString(w, completionBody(t, `{"customerName": "Sara"}`))
	})

	analysis, err := client.Analyze(context.Background(), "Agent: hello there")
	require.NoError(t, err)
	assert.Equal(t, "Sara", analysis.CustomerName)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnalyzeClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`)
	})

	_, err := client.Analyze(context.Background(), "Agent: hello there")
	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateAgentPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var request chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, int64(2048), request.MaxTokens)
		assert.Nil(t, request.ResponseFormat)
		assert.Contains(t, request.Messages[1].Content, "متابعة ما بعد البيع")
		assert.Contains(t, request.Messages[1].Content, defaultScenarioType)

		_, _ = io.WriteString(w, completionBody(t, "نص الوكيل"))
	})

	prompt, err := client.GenerateAgentPrompt(context.Background(), "متابعة ما بعد البيع", "")
	require.NoError(t, err)
	assert.Equal(t, "نص الوكيل", prompt)

	_, err = client.GenerateAgentPrompt(context.Background(), "  ", "")
	require.ErrorIs(t, err, ErrMissingDescription)
}

func TestParseAnalysis(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "object", content: `{"customerMood": "happy"}`},
		{name: "assessments not an array", content: `{"customerAssessmentQuestions": "none"}`},
		{name: "null", content: `null`, wantErr: true},
		{name: "empty", content: ``, wantErr: true},
		{name: "array", content: `[1, 2]`, wantErr: true},
		{name: "truncated", content: `{"customerName": "Al`, wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := ParseAnalysis(testCase.content)
			if testCase.wantErr {
				var parseError *ParseError
				assert.ErrorAs(t, err, &parseError)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestParseAnalysisToleratesMisshapenFields(t *testing.T) {
	content := `{
		"customerName": 5,
		"customerMood": null,
		"customerBehavior": {"score": "7", "description": ["calm"]},
		"keyDiscussionPoints": "payment date",
		"customerAssessmentQuestions": [{"question": "Paid?", "answer": true, "status": "positive"}, "skip"],
		"customerRecommendations": ["call back", 3, "", {"a": 1}],
		"customerOverallScore": "8.5"
	}`

	analysis, err := ParseAnalysis(content)
	require.NoError(t, err)

	assert.Equal(t, "5", analysis.CustomerName)
	assert.Empty(t, analysis.CustomerMood)
	assert.Equal(t, Score(7), analysis.CustomerBehavior.Score)
	assert.Empty(t, analysis.CustomerBehavior.Description)
	assert.Equal(t, []string{"payment date"}, analysis.KeyDiscussionPoints)
	require.Len(t, analysis.CustomerAssessmentQuestions, 2)
	assert.Equal(t, "true", analysis.CustomerAssessmentQuestions[0].Answer)
	assert.Equal(t, Assessment{}, analysis.CustomerAssessmentQuestions[1])
	assert.Equal(t, []string{"call back", "3"}, analysis.CustomerRecommendations)
	assert.Equal(t, Score(8.5), analysis.CustomerOverallScore)
}

func TestParseAnalysisBehaviorNotAnObject(t *testing.T) {
	analysis, err := ParseAnalysis(`{"customerName": "Ali", "customerBehavior": "calm"}`)
	require.NoError(t, err)

	assert.Equal(t, "Ali", analysis.CustomerName)
	assert.Equal(t, Behavior{}, analysis.CustomerBehavior)
}

func TestPreviewCountsCharacters(t *testing.T) {
	content := strings.Repeat("م", 600)

	preview := Preview(content)
	assert.Equal(t, 500, len([]rune(preview)))
	assert.Equal(t, "short", Preview("short"))
}
