// Package cards stores the authored reference documents of a project as YAML files.
//
// The layout under the cards directory is
//
//	<project>/cards/style.yaml
//	<project>/cards/rules.yaml
//	<project>/cards/characters/<name>.yaml
//	<project>/cards/world/<name>.yaml
package cards

// CharacterCard describes a character's fixed traits.
type CharacterCard struct {
	Name          string   `yaml:"name" json:"name"`
	Identity      string   `yaml:"identity" json:"identity"`
	Appearance    string   `yaml:"appearance,omitempty" json:"appearance,omitempty"`
	Motivation    string   `yaml:"motivation" json:"motivation"`
	Personality   []string `yaml:"personality" json:"personality"`
	SpeechPattern string   `yaml:"speech_pattern,omitempty" json:"speech_pattern,omitempty"`
	Boundaries    []string `yaml:"boundaries,omitempty" json:"boundaries,omitempty"`
	Arc           string   `yaml:"arc,omitempty" json:"arc,omitempty"`
}

// WorldCard describes a place, organisation or rule of the setting.
type WorldCard struct {
	Name        string   `yaml:"name" json:"name"`
	Category    string   `yaml:"category" json:"category"`
	Description string   `yaml:"description" json:"description"`
	Rules       []string `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// StyleCard fixes the prose style of the whole project.
type StyleCard struct {
	NarrativeDistance     string   `yaml:"narrative_distance" json:"narrative_distance"`
	Pacing                string   `yaml:"pacing" json:"pacing"`
	SentenceStructure     string   `yaml:"sentence_structure,omitempty" json:"sentence_structure,omitempty"`
	VocabularyConstraints []string `yaml:"vocabulary_constraints,omitempty" json:"vocabulary_constraints,omitempty"`
	ExamplePassages       []string `yaml:"example_passages,omitempty" json:"example_passages,omitempty"`
}

// RulesCard lists the writing rules every chapter must follow.
type RulesCard struct {
	Dos              []string `yaml:"dos" json:"dos"`
	Donts            []string `yaml:"donts" json:"donts"`
	QualityStandards []string `yaml:"quality_standards,omitempty" json:"quality_standards,omitempty"`
}
