// Package conflict flags likely contradictions between proposed canon updates and committed canon.
//
// The checks are cheap text heuristics biased toward precision. An empty result is the normal outcome.
package conflict

import (
	"fmt"

	"github.com/myrjola/inkwell/internal/models"
)

type Detector struct {
	scorer Scorer
}

func NewDetector(scorer Scorer) *Detector {
	return &Detector{scorer: scorer}
}

// Detect compares the proposed updates of chapterID with canon and returns human-readable conflict descriptions.
//
// canon must not contain records of chapterID itself, see [models.CanonSnapshot.WithoutSource].
func (d *Detector) Detect(chapterID string, proposed models.CanonBatch, canon models.CanonSnapshot) []string {
	conflicts := []string{}
	conflicts = append(conflicts, d.factConflicts(proposed.Facts, canon.Facts)...)
	conflicts = append(conflicts, timelineConflicts(proposed.TimelineEvents, canon.TimelineEvents)...)
	conflicts = append(conflicts, stateConflicts(chapterID, proposed.CharacterStates, canon)...)
	return conflicts
}

func (d *Detector) factConflicts(proposed, existing []models.Fact) []string {
	var conflicts []string
	for _, nf := range proposed {
		for _, ef := range existing {
			if d.scorer.Contradicts(nf.Statement, ef.Statement) {
				conflicts = append(conflicts, fmt.Sprintf("[Fact Conflict] %s  <->  %s (from %s)",
					nf.Statement, ef.Statement, ef.IntroducedIn))
				break
			}
		}
	}
	return conflicts
}

func timelineConflicts(proposed, existing []models.TimelineEvent) []string {
	var conflicts []string
	for _, ne := range proposed {
		time := Normalize(ne.Time)
		if time == "" {
			continue
		}
		for _, ee := range existing {
			if time != Normalize(ee.Time) || !intersects(ne.Participants, ee.Participants) {
				continue
			}
			if Normalize(ne.Location) != Normalize(ee.Location) || Normalize(ne.Event) != Normalize(ee.Event) {
				conflicts = append(conflicts, fmt.Sprintf(
					"[Timeline Conflict] time=%s, participants=%v: (%s@%s) <-> (%s@%s) (from %s)",
					ne.Time, ne.Participants, ne.Event, ne.Location, ee.Event, ee.Location, ee.Source))
				break
			}
		}
	}
	return conflicts
}

// stateConflicts flags characters whose location changed at most one chapter after their last sighting. A chapter
// that comes before the last sighting is flagged as well.
func stateConflicts(chapterID string, proposed []models.CharacterState, canon models.CanonSnapshot) []string {
	var conflicts []string
	chapterNum, chapterOK := models.ChapterNumber(chapterID)
	for _, ns := range proposed {
		prev := canon.LatestCharacterState(ns.Character)
		if prev == nil || prev.Location == "" || ns.Location == "" {
			continue
		}
		if Normalize(prev.Location) == Normalize(ns.Location) {
			continue
		}
		prevNum, ok := models.ChapterNumber(prev.LastSeen)
		if !ok {
			continue
		}
		currentNum, currentOK := models.ChapterNumber(ns.LastSeen)
		if !currentOK {
			currentNum, currentOK = chapterNum, chapterOK
		}
		if !currentOK {
			continue
		}
		if delta := currentNum - prevNum; delta <= 1 {
			conflicts = append(conflicts, fmt.Sprintf("[State Conflict] %s location changed too fast: %s(%s) -> %s(%s)",
				ns.Character, prev.Location, prev.LastSeen, ns.Location, chapterLabel(ns, chapterID)))
		}
	}
	return conflicts
}

func chapterLabel(state models.CharacterState, chapterID string) string {
	if chapterID != "" {
		return chapterID
	}
	return state.LastSeen
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	for _, p := range b {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}
