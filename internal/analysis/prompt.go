package analysis

import (
	"embed"
	"strings"
	"text/template"
)

const defaultScenarioType = "خدمة عملاء عامة"

//go:embed prompts/*.tmpl
var promptFiles embed.FS

var prompts = template.Must(template.ParseFS(promptFiles, "prompts/*.tmpl"))

type analysisPromptData struct {
	Organization string
	Transcript   string
}

type agentPromptData struct {
	Organization string
	ScenarioType string
	Description  string
}

func render(name string, data any) (string, error) {
	var builder strings.Builder

	err := prompts.ExecuteTemplate(&builder, name, data)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(builder.String()), nil
}
