package models

import "sort"

// Fact is a committed statement about the story world.
type Fact struct {
	ID           string  `json:"id" yaml:"id"`
	Statement    string  `json:"statement" yaml:"statement"`
	Source       string  `json:"source" yaml:"source"`
	IntroducedIn string  `json:"introduced_in" yaml:"introduced_in"`
	Confidence   float64 `json:"confidence" yaml:"confidence"`
}

// TimelineEvent places an event at a story-time label with its participants and location.
type TimelineEvent struct {
	Time         string   `json:"time" yaml:"time"`
	Event        string   `json:"event" yaml:"event"`
	Participants []string `json:"participants" yaml:"participants"`
	Location     string   `json:"location" yaml:"location"`
	Source       string   `json:"source" yaml:"source"`
}

// CharacterState is one revision of a character's situation. The current state of a character is the most recently
// appended revision.
type CharacterState struct {
	Character      string            `json:"character" yaml:"character"`
	Goals          []string          `json:"goals" yaml:"goals"`
	Injuries       []string          `json:"injuries" yaml:"injuries"`
	Inventory      []string          `json:"inventory" yaml:"inventory"`
	Relationships  map[string]string `json:"relationships" yaml:"relationships"`
	Location       string            `json:"location" yaml:"location"`
	EmotionalState string            `json:"emotional_state" yaml:"emotional_state"`
	LastSeen       string            `json:"last_seen" yaml:"last_seen"`
	// Source is the chapter whose commit appended this revision.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// CanonBatch groups canon records that are committed together.
type CanonBatch struct {
	Facts           []Fact           `json:"facts" yaml:"facts"`
	TimelineEvents  []TimelineEvent  `json:"timeline_events" yaml:"timeline_events"`
	CharacterStates []CharacterState `json:"character_states" yaml:"character_states"`
}

// Empty reports whether the batch holds no records.
func (b CanonBatch) Empty() bool {
	return len(b.Facts) == 0 && len(b.TimelineEvents) == 0 && len(b.CharacterStates) == 0
}

// CanonSnapshot is a consistent read of a project's canon logs in append order.
type CanonSnapshot struct {
	Facts           []Fact           `json:"facts"`
	TimelineEvents  []TimelineEvent  `json:"timeline_events"`
	CharacterStates []CharacterState `json:"character_states"`
}

// WithoutSource returns a copy of the snapshot without records sourced from chapterID.
func (s CanonSnapshot) WithoutSource(chapterID string) CanonSnapshot {
	var out CanonSnapshot
	for _, f := range s.Facts {
		if f.Source != chapterID {
			out.Facts = append(out.Facts, f)
		}
	}
	for _, e := range s.TimelineEvents {
		if e.Source != chapterID {
			out.TimelineEvents = append(out.TimelineEvents, e)
		}
	}
	for _, st := range s.CharacterStates {
		source := st.Source
		if source == "" {
			source = st.LastSeen
		}
		if source != chapterID {
			out.CharacterStates = append(out.CharacterStates, st)
		}
	}
	return out
}

// LatestCharacterState returns the last appended state of character, or nil when none is recorded.
func (s CanonSnapshot) LatestCharacterState(character string) *CharacterState {
	for i := len(s.CharacterStates) - 1; i >= 0; i-- {
		if s.CharacterStates[i].Character == character {
			st := s.CharacterStates[i]
			return &st
		}
	}
	return nil
}

// LatestCharacterStates returns the current state of every character in order of first appearance.
func (s CanonSnapshot) LatestCharacterStates() []CharacterState {
	var (
		order  []string
		latest = map[string]CharacterState{}
	)
	for _, st := range s.CharacterStates {
		if _, seen := latest[st.Character]; !seen {
			order = append(order, st.Character)
		}
		latest[st.Character] = st
	}
	out := make([]CharacterState, 0, len(order))
	for _, name := range order {
		out = append(out, latest[name])
	}
	return out
}

// EventsNearChapter returns up to maxEvents events sourced from the window chapters preceding chapterID, stably ordered
// by source chapter number. When chapterID has no chapter number, the last maxEvents events are returned instead.
func EventsNearChapter(events []TimelineEvent, chapterID string, window, maxEvents int) []TimelineEvent {
	current, ok := ChapterNumber(chapterID)
	if !ok {
		return lastEvents(events, maxEvents)
	}
	start := max(1, current-window)
	var near []TimelineEvent
	for _, event := range events {
		n, parsed := ChapterNumber(event.Source)
		if parsed && n >= start && n <= current-1 {
			near = append(near, event)
		}
	}
	sort.SliceStable(near, func(i, j int) bool {
		a, _ := ChapterNumber(near[i].Source)
		b, _ := ChapterNumber(near[j].Source)
		return a < b
	})
	return lastEvents(near, maxEvents)
}

func lastEvents(events []TimelineEvent, n int) []TimelineEvent {
	if n <= 0 || len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}
