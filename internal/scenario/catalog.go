package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/goccy/go-json"
)

const languageEnglish = "en"

var ErrEmptyCatalog = errors.New("question group catalog is empty")

//go:embed groups.json
var groupsJSON []byte

// groupEntry is one after-sales question group in both languages.
type groupEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	NameEn      string   `json:"nameEn"`
	Questions   []string `json:"questions"`
	QuestionsEn []string `json:"questionsEn"`
}

// Group is a question group resolved to one language.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	NameEn    string   `json:"nameEn"`
	Questions []string `json:"questions"`
}

// Numbered renders the questions one per line, numbered from 1.
func (group Group) Numbered() string {
	var builder strings.Builder

	for idx, question := range group.Questions {
		if idx > 0 {
			builder.WriteByte('\n')
		}

		fmt.Fprintf(&builder, "%d. %s", idx+1, question)
	}

	return builder.String()
}

type Catalog struct {
	groups []groupEntry
	intn   func(n int) int
}

// AfterSales returns the built-in after-sales question groups.
func AfterSales() (*Catalog, error) {
	var groups []groupEntry

	err := json.Unmarshal(groupsJSON, &groups)
	if err != nil {
		return nil, fmt.Errorf("decode question groups: %w", err)
	}

	if len(groups) == 0 {
		return nil, ErrEmptyCatalog
	}

	return &Catalog{groups: groups, intn: rand.IntN}, nil
}

func (catalog *Catalog) Len() int {
	return len(catalog.groups)
}

// Group returns the group with id in language. ok is false for unknown ids.
func (catalog *Catalog) Group(id, language string) (Group, bool) {
	for _, entry := range catalog.groups {
		if entry.ID == id {
			return entry.resolve(language), true
		}
	}

	return Group{}, false
}

// RandomGroup picks a group uniformly. English questions are returned for
// "en"; every other language gets Arabic.
func (catalog *Catalog) RandomGroup(language string) Group {
	return catalog.groups[catalog.intn(len(catalog.groups))].resolve(language)
}

func (entry groupEntry) resolve(language string) Group {
	questions := entry.Questions
	if language == languageEnglish {
		questions = entry.QuestionsEn
	}

	return Group{
		ID:        entry.ID,
		Name:      entry.Name,
		NameEn:    entry.NameEn,
		Questions: questions,
	}
}
