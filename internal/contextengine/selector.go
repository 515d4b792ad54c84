// Package contextengine assembles the bounded context a chapter's generation stages may see.
package contextengine

import (
	"context"
	"log/slog"

	"github.com/myrjola/inkwell/internal/cards"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
)

// fallbackSummaries is the number of recent summaries used when the chapter id has no number.
const fallbackSummaries = 3

type CardReader interface {
	GetStyleCard(ctx context.Context, projectID string) (*cards.StyleCard, error)
	GetRulesCard(ctx context.Context, projectID string) (*cards.RulesCard, error)
	GetCharacterCard(ctx context.Context, projectID, name string) (*cards.CharacterCard, error)
	GetWorldCard(ctx context.Context, projectID, name string) (*cards.WorldCard, error)
	ListCharacterCards(ctx context.Context, projectID string) ([]string, error)
	ListWorldCards(ctx context.Context, projectID string) ([]string, error)
}

type CanonReader interface {
	Snapshot(ctx context.Context, projectID string) (*models.CanonSnapshot, error)
}

type SummaryReader interface {
	ListSummaries(ctx context.Context, projectID string) ([]models.ChapterSummary, error)
	RecentSummaries(ctx context.Context, projectID string, n int) ([]models.ChapterSummary, error)
}

// Request selects what a bundle is assembled for.
type Request struct {
	ProjectID string
	ChapterID string
	// Characters limits character cards to the named participants. Empty means all characters.
	Characters []string
}

type Selector struct {
	cards     CardReader
	canon     CanonReader
	summaries SummaryReader
	cfg       config.ContextConfig
	logger    *slog.Logger
}

func NewSelector(
	cardReader CardReader,
	canon CanonReader,
	summaries SummaryReader,
	cfg config.ContextConfig,
	logger *slog.Logger,
) *Selector {
	return &Selector{
		cards:     cardReader,
		canon:     canon,
		summaries: summaries,
		cfg:       cfg,
		logger:    logger.With("source", "Selector"),
	}
}

// SelectForChapter assembles the context bundle of a chapter. Canon records already sourced from the chapter itself
// are excluded so that regenerating a chapter does not see its own previous output.
func (s *Selector) SelectForChapter(ctx context.Context, req Request) (*Bundle, error) {
	bundle := &Bundle{
		ProjectID:         req.ProjectID,
		ChapterID:         req.ChapterID,
		Style:             nil,
		Rules:             nil,
		Characters:        []cards.CharacterCard{},
		World:             []cards.WorldCard{},
		Facts:             nil,
		Timeline:          nil,
		CharacterStates:   nil,
		PreviousSummaries: Tiers{},
	}

	var err error
	if bundle.Style, err = s.cards.GetStyleCard(ctx, req.ProjectID); err != nil {
		return nil, errors.Wrap(err, "style card")
	}
	if bundle.Rules, err = s.cards.GetRulesCard(ctx, req.ProjectID); err != nil {
		return nil, errors.Wrap(err, "rules card")
	}
	if bundle.Characters, err = s.characterCards(ctx, req); err != nil {
		return nil, err
	}
	if bundle.World, err = s.worldCards(ctx, req.ProjectID); err != nil {
		return nil, err
	}

	snapshot, err := s.canon.Snapshot(ctx, req.ProjectID)
	if err != nil {
		return nil, errors.Wrap(err, "canon snapshot")
	}
	canon := snapshot.WithoutSource(req.ChapterID)
	bundle.Facts = canon.Facts
	bundle.Timeline = models.EventsNearChapter(canon.TimelineEvents, req.ChapterID, s.cfg.TimelineWindow,
		s.cfg.TimelineMax)
	bundle.CharacterStates = canon.LatestCharacterStates()

	if bundle.PreviousSummaries, err = s.previousSummaries(ctx, req); err != nil {
		return nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "context selected",
		slog.Int("characters", len(bundle.Characters)),
		slog.Int("facts", len(bundle.Facts)),
		slog.Int("timeline", len(bundle.Timeline)),
		slog.Int("summary_chars", bundle.PreviousSummaries.Len()))
	return bundle, nil
}

func (s *Selector) characterCards(ctx context.Context, req Request) ([]cards.CharacterCard, error) {
	names := req.Characters
	if len(names) == 0 {
		var err error
		if names, err = s.cards.ListCharacterCards(ctx, req.ProjectID); err != nil {
			return nil, errors.Wrap(err, "list character cards")
		}
	}
	out := []cards.CharacterCard{}
	for _, name := range names {
		card, err := s.cards.GetCharacterCard(ctx, req.ProjectID, name)
		if err != nil {
			return nil, errors.Wrap(err, "character card", slog.String("name", name))
		}
		if card == nil {
			s.logger.LogAttrs(ctx, slog.LevelDebug, "character card missing", slog.String("name", name))
			continue
		}
		out = append(out, *card)
	}
	return out, nil
}

func (s *Selector) worldCards(ctx context.Context, projectID string) ([]cards.WorldCard, error) {
	names, err := s.cards.ListWorldCards(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "list world cards")
	}
	out := []cards.WorldCard{}
	for _, name := range names {
		card, err := s.cards.GetWorldCard(ctx, projectID, name)
		if err != nil {
			return nil, errors.Wrap(err, "world card", slog.String("name", name))
		}
		if card != nil {
			out = append(out, *card)
		}
	}
	return out, nil
}

func (s *Selector) previousSummaries(ctx context.Context, req Request) (Tiers, error) {
	all, err := s.summaries.ListSummaries(ctx, req.ProjectID)
	if err != nil {
		return Tiers{}, errors.Wrap(err, "list summaries")
	}
	tiers, ok := SelectTiered(req.ChapterID, all, s.cfg)
	if !ok {
		var recent []models.ChapterSummary
		if recent, err = s.summaries.RecentSummaries(ctx, req.ProjectID, fallbackSummaries); err != nil {
			return Tiers{}, errors.Wrap(err, "recent summaries")
		}
		tiers = Tiers{}
		for _, summary := range recent {
			if summary.Chapter == req.ChapterID {
				continue
			}
			tiers.Mid = append(tiers.Mid, MidBlock(summary))
		}
	}
	return TrimSummaryBlocks(tiers, s.cfg.MaxSummaryChars), nil
}
