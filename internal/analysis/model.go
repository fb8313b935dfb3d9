package analysis

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Analysis is the structured behavioral assessment of one call.
type Analysis struct {
	CustomerName                string      `json:"customerName"`
	CustomerMood                string      `json:"customerMood"`
	CustomerBehavior            Behavior    `json:"customerBehavior"`
	KeyDiscussionPoints         []string    `json:"keyDiscussionPoints"`
	CustomerAssessmentQuestions Assessments `json:"customerAssessmentQuestions"`
	CustomerRecommendations     []string    `json:"customerRecommendations"`
	CustomerOverallScore        Score       `json:"customerOverallScore"`
}

// UnmarshalJSON tolerates model output whose fields have the wrong shape:
// scalars stand in for strings and a lone string stands in for a list.
func (analysis *Analysis) UnmarshalJSON(data []byte) error {
	var lenient struct {
		CustomerName                text        `json:"customerName"`
		CustomerMood                text        `json:"customerMood"`
		CustomerBehavior            Behavior    `json:"customerBehavior"`
		KeyDiscussionPoints         textList    `json:"keyDiscussionPoints"`
		CustomerAssessmentQuestions Assessments `json:"customerAssessmentQuestions"`
		CustomerRecommendations     textList    `json:"customerRecommendations"`
		CustomerOverallScore        Score       `json:"customerOverallScore"`
	}

	if !isObject(data) {
		*analysis = Analysis{}
		return nil
	}

	err := json.Unmarshal(data, &lenient)
	if err != nil {
		return err
	}

	*analysis = Analysis{
		CustomerName:                string(lenient.CustomerName),
		CustomerMood:                string(lenient.CustomerMood),
		CustomerBehavior:            lenient.CustomerBehavior,
		KeyDiscussionPoints:         lenient.KeyDiscussionPoints,
		CustomerAssessmentQuestions: lenient.CustomerAssessmentQuestions,
		CustomerRecommendations:     lenient.CustomerRecommendations,
		CustomerOverallScore:        lenient.CustomerOverallScore,
	}

	return nil
}

type Behavior struct {
	Score       Score  `json:"score"`
	Description string `json:"description"`
}

func (behavior *Behavior) UnmarshalJSON(data []byte) error {
	var lenient struct {
		Score       Score `json:"score"`
		Description text  `json:"description"`
	}

	if !isObject(data) {
		*behavior = Behavior{}
		return nil
	}

	err := json.Unmarshal(data, &lenient)
	if err != nil {
		return err
	}

	*behavior = Behavior{Score: lenient.Score, Description: string(lenient.Description)}

	return nil
}

type Assessment struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Status   string `json:"status"`
}

func (assessment *Assessment) UnmarshalJSON(data []byte) error {
	var lenient struct {
		Question text `json:"question"`
		Answer   text `json:"answer"`
		Status   text `json:"status"`
	}

	if !isObject(data) {
		*assessment = Assessment{}
		return nil
	}

	err := json.Unmarshal(data, &lenient)
	if err != nil {
		return err
	}

	*assessment = Assessment{
		Question: string(lenient.Question),
		Answer:   string(lenient.Answer),
		Status:   string(lenient.Status),
	}

	return nil
}

// Assessments decodes leniently: anything other than an array is empty.
type Assessments []Assessment

func (assessments *Assessments) UnmarshalJSON(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		*assessments = nil
		return nil
	}

	var items []Assessment

	err := json.Unmarshal(data, &items)
	if err != nil {
		return err
	}

	*assessments = items

	return nil
}

func isObject(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}

// text reads strings as is and numbers or booleans as their literal; null,
// objects and arrays read as empty.
type text string

func (value *text) UnmarshalJSON(data []byte) error {
	var decoded any

	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return err
	}

	*value = text(scalarText(decoded))

	return nil
}

func scalarText(decoded any) string {
	switch typed := decoded.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

// textList reads an array of scalars, dropping blank items. A lone string is
// a one item list; anything else is empty.
type textList []string

func (list *textList) UnmarshalJSON(data []byte) error {
	var decoded any

	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return err
	}

	var items []string

	switch typed := decoded.(type) {
	case []any:
		for _, item := range typed {
			value := scalarText(item)
			if strings.TrimSpace(value) != "" {
				items = append(items, value)
			}
		}
	case string:
		if strings.TrimSpace(typed) != "" {
			items = []string{typed}
		}
	}

	*list = items

	return nil
}

// Score accepts numbers and numeric strings; anything else reads as 0.
type Score float64

func (score *Score) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		*score = 0
		return nil
	}

	*score = Score(value)

	return nil
}
