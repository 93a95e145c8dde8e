// Package checklist embeds the fixed research-project evaluation catalog.
//
// The catalog is immutable, process-wide data: nine ordered sections of
// ordered items, 54 in total. Everything downstream (finalize validation,
// ponderation items, tip prompts) resolves questions and section titles
// through this package.
package checklist

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed checklist.yaml
var rawCatalog []byte

// Item is one evaluable question.
type Item struct {
	ID       string `yaml:"id"`
	Question string `yaml:"question"`
	Hint     string `yaml:"hint"`
}

// Section groups items under a titled part of the project.
type Section struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Items       []Item `yaml:"items"`
}

type catalog struct {
	Sections []Section `yaml:"sections"`
}

// Sections is the full ordered catalog.
var Sections []Section

// TotalItems is the number of items across all sections. Finalize validates
// against this count, not against the size of the submitted collection.
var TotalItems int

var questionIndex map[string]string

func init() {
	var c catalog
	if err := yaml.Unmarshal(rawCatalog, &c); err != nil {
		panic(fmt.Sprintf("checklist: invalid embedded catalog: %v", err))
	}
	Sections = c.Sections
	questionIndex = make(map[string]string)
	for _, s := range Sections {
		for _, it := range s.Items {
			TotalItems++
			questionIndex[s.ID+":"+it.ID] = it.Question
		}
	}
}

// SectionByID returns the section with the given id.
func SectionByID(id string) (Section, bool) {
	for _, s := range Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// SectionTitle returns the section title, falling back to the raw id when the
// catalog lookup misses.
func SectionTitle(id string) string {
	if s, ok := SectionByID(id); ok {
		return s.Title
	}
	return id
}

// Question resolves the question text for a section+item id pair.
func Question(sectionID, itemID string) (string, bool) {
	q, ok := questionIndex[sectionID+":"+itemID]
	return q, ok
}
