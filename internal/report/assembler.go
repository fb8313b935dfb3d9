package report

import (
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/analysis"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/extractor"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/hamsa"
	"gorm.io/datatypes"
)

const AssessmentCount = 10

var ErrMissingAnalysis = errors.New("analysis result is required")

// DefaultsProvider supplies the assessments used to complete a short list.
type DefaultsProvider interface {
	DefaultAssessments() []analysis.Assessment
}

type StaticDefaults []analysis.Assessment

func (defaults StaticDefaults) DefaultAssessments() []analysis.Assessment {
	return defaults
}

// GenericPositiveAssessments fill positions the model left out.
var GenericPositiveAssessments = StaticDefaults{
	{Question: "Customer Cooperation", Answer: "The customer is cooperative and willing to engage", Status: "Excellent"},
	{Question: "Customer Response Quality", Answer: "The customer answered questions clearly and completely", Status: "Excellent"},
	{Question: "Customer Reservations", Answer: "No reservations from the customer", Status: "Excellent"},
	{Question: "Customer Satisfaction", Answer: "The customer appears satisfied with the service", Status: "Excellent"},
	{Question: "Customer Engagement", Answer: "The customer was engaged in the dialogue and inquiries", Status: "Excellent"},
	{Question: "Customer Willingness", Answer: "The customer was willing to engage and communicate", Status: "Excellent"},
	{Question: "Customer Cooperation with Agent", Answer: "The customer showed good cooperation with the agent", Status: "Excellent"},
	{Question: "Nature of Responses", Answer: "Responses were clear and direct", Status: "Excellent"},
	{Question: "Customer Trust in Services", Answer: "The customer showed trust in the services and products", Status: "Excellent"},
	{Question: "Customer Final Satisfaction", Answer: "The customer is generally satisfied with the experience", Status: "Excellent"},
}

type Assembler struct {
	Defaults DefaultsProvider
}

func NewAssembler(defaults DefaultsProvider) *Assembler {
	if defaults == nil {
		defaults = GenericPositiveAssessments
	}

	return &Assembler{Defaults: defaults}
}

// Assemble merges extracted call fields with the model's analysis.
func (assembler *Assembler) Assemble(
	callID string,
	fields extractor.Fields,
	result *analysis.Analysis,
	now time.Time,
) (*Report, error) {
	err := fields.RequireTranscript()
	if err != nil {
		return nil, err
	}

	if result == nil {
		return nil, ErrMissingAnalysis
	}

	padded := *result
	padded.CustomerAssessmentQuestions = PadAssessments(
		result.CustomerAssessmentQuestions,
		assembler.Defaults.DefaultAssessments(),
	)

	customerName := padded.CustomerName
	if customerName == "" {
		customerName = UnknownCustomer
	}

	createdAt, ok := hamsa.ParseTime(fields.CreatedAt)
	if !ok {
		createdAt = now
	}

	return &Report{
		ID:            callID,
		CallID:        callID,
		CustomerName:  customerName,
		PhoneNumber:   fields.PhoneNumber,
		CustomerEmail: fields.CustomerEmail,
		Duration:      fields.Duration,
		Status:        fields.Status,
		Language:      fields.Language,
		Transcript:    fields.Transcript,
		RecordingURL:  fields.RecordingURL,
		Summary:       padded.CustomerBehavior.Description,
		Analysis:      datatypes.NewJSONType(padded),
		CreatedAt:     createdAt,
		GeneratedAt:   now,
	}, nil
}

// PadAssessments completes items to AssessmentCount entries with the
// defaults at the missing positions. Positions a short defaults list does
// not cover come from GenericPositiveAssessments. It never reorders or drops
// entries.
func PadAssessments(items, defaults []analysis.Assessment) analysis.Assessments {
	padded := make(analysis.Assessments, len(items), max(len(items), AssessmentCount))
	copy(padded, items)

	for idx := len(padded); idx < AssessmentCount; idx++ {
		if idx < len(defaults) {
			padded = append(padded, defaults[idx])
			continue
		}

		padded = append(padded, GenericPositiveAssessments[idx])
	}

	return padded
}
