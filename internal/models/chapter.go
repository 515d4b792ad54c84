package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

var firstDigitRun = regexp.MustCompile(`\d+`)

// ChapterNumber extracts the first run of digits from a chapter identifier.
//
// "ch1", "ch01" and "chapter_1" all yield 1. Identifiers without digits, such as "prologue", are unorderable and
// report ok == false.
func ChapterNumber(chapterID string) (int, bool) {
	digits := firstDigitRun.FindString(chapterID)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SceneBrief is the Archivist's plan for a chapter.
type SceneBrief struct {
	Chapter     string   `json:"chapter" yaml:"chapter"`
	Title       string   `json:"title" yaml:"title"`
	Goal        string   `json:"goal" yaml:"goal"`
	Setting     string   `json:"setting" yaml:"setting"`
	Characters  []string `json:"characters" yaml:"characters"`
	Beats       []string `json:"beats" yaml:"beats"`
	Constraints []string `json:"constraints" yaml:"constraints"`
}

// Draft is one immutable version of a chapter's prose.
type Draft struct {
	Chapter              string    `json:"chapter"`
	Version              int       `json:"version"`
	Content              string    `json:"content"`
	WordCount            int       `json:"word_count"`
	PendingConfirmations []string  `json:"pending_confirmations"`
	Created              time.Time `json:"created"`
}

// VersionLabel is the short version name used in agent prompts, e.g. "v3".
func (d Draft) VersionLabel() string {
	return fmt.Sprintf("v%d", d.Version)
}

// CountWords counts characters, which is how word count is measured for CJK prose.
func CountWords(content string) int {
	return utf8.RuneCountInString(content)
}

// ReviewIssue is one problem found by the Reviewer.
type ReviewIssue struct {
	Category   string `json:"category" yaml:"category"`
	Severity   string `json:"severity" yaml:"severity"`
	Problem    string `json:"problem" yaml:"problem"`
	Suggestion string `json:"suggestion" yaml:"suggestion"`
}

// ReviewResult is the structured critique of a draft.
type ReviewResult struct {
	Chapter      string        `json:"chapter" yaml:"chapter"`
	DraftVersion int           `json:"draft_version" yaml:"draft_version"`
	Score        float64       `json:"score" yaml:"score"`
	Strengths    []string      `json:"strengths" yaml:"strengths"`
	Issues       []ReviewIssue `json:"issues" yaml:"issues"`
	Verdict      string        `json:"verdict" yaml:"verdict"`
}

// ChapterSummary is produced once a chapter is finalized and feeds the tiered context of later chapters.
type ChapterSummary struct {
	Chapter      string   `json:"chapter" yaml:"chapter"`
	Title        string   `json:"title" yaml:"title"`
	BriefSummary string   `json:"brief_summary" yaml:"brief_summary"`
	KeyEvents    []string `json:"key_events" yaml:"key_events"`
	OpenLoops    []string `json:"open_loops" yaml:"open_loops"`
	WordCount    int      `json:"word_count" yaml:"word_count"`
}

// ConflictReport lists the likely contradictions found for a chapter. An empty list is a normal outcome.
type ConflictReport struct {
	Chapter   string    `json:"chapter"`
	Conflicts []string  `json:"conflicts"`
	Created   time.Time `json:"created"`
}
