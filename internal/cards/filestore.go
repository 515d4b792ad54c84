package cards

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/myrjola/inkwell/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	styleFile     = "style.yaml"
	rulesFile     = "rules.yaml"
	charactersDir = "characters"
	worldDir      = "world"
	cardExt       = ".yaml"
)

// FileStore reads and writes cards below a root directory. Missing cards are reported as nil without an error.
type FileStore struct {
	root   string
	logger *slog.Logger
}

func NewFileStore(root string, logger *slog.Logger) *FileStore {
	return &FileStore{
		root:   root,
		logger: logger.With("source", "FileStore"),
	}
}

func (s *FileStore) GetStyleCard(ctx context.Context, projectID string) (*StyleCard, error) {
	return getCard[StyleCard](ctx, s, projectID, styleFile)
}

func (s *FileStore) GetRulesCard(ctx context.Context, projectID string) (*RulesCard, error) {
	return getCard[RulesCard](ctx, s, projectID, rulesFile)
}

func (s *FileStore) GetCharacterCard(ctx context.Context, projectID, name string) (*CharacterCard, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return getCard[CharacterCard](ctx, s, projectID, filepath.Join(charactersDir, name+cardExt))
}

func (s *FileStore) GetWorldCard(ctx context.Context, projectID, name string) (*WorldCard, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return getCard[WorldCard](ctx, s, projectID, filepath.Join(worldDir, name+cardExt))
}

// ListCharacterCards returns the sorted names of the project's character cards.
func (s *FileStore) ListCharacterCards(ctx context.Context, projectID string) ([]string, error) {
	return s.list(ctx, projectID, charactersDir)
}

// ListWorldCards returns the sorted names of the project's world cards.
func (s *FileStore) ListWorldCards(ctx context.Context, projectID string) ([]string, error) {
	return s.list(ctx, projectID, worldDir)
}

func (s *FileStore) SaveStyleCard(ctx context.Context, projectID string, card StyleCard) error {
	return s.save(ctx, projectID, styleFile, card)
}

func (s *FileStore) SaveRulesCard(ctx context.Context, projectID string, card RulesCard) error {
	return s.save(ctx, projectID, rulesFile, card)
}

func (s *FileStore) SaveCharacterCard(ctx context.Context, projectID string, card CharacterCard) error {
	if err := validateName(card.Name); err != nil {
		return err
	}
	return s.save(ctx, projectID, filepath.Join(charactersDir, card.Name+cardExt), card)
}

func (s *FileStore) SaveWorldCard(ctx context.Context, projectID string, card WorldCard) error {
	if err := validateName(card.Name); err != nil {
		return err
	}
	return s.save(ctx, projectID, filepath.Join(worldDir, card.Name+cardExt), card)
}

// DeleteCharacterCard removes the card and reports whether it existed.
func (s *FileStore) DeleteCharacterCard(ctx context.Context, projectID, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	return s.remove(ctx, projectID, filepath.Join(charactersDir, name+cardExt))
}

// DeleteWorldCard removes the card and reports whether it existed.
func (s *FileStore) DeleteWorldCard(ctx context.Context, projectID, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	return s.remove(ctx, projectID, filepath.Join(worldDir, name+cardExt))
}

func (s *FileStore) projectDir(projectID string) (string, error) {
	if err := validateName(projectID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, projectID, "cards"), nil
}

func getCard[T any](ctx context.Context, s *FileStore, projectID, rel string) (*T, error) {
	dir, err := s.projectDir(projectID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, rel)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // missing cards are optional
	}
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "read card", slog.String("path", path))
	}
	var card T
	if err = yaml.Unmarshal(b, &card); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "malformed card", slog.String("path", path))
		return nil, errors.Wrap(errors.Mark(err, errors.ErrValidation), "decode card", slog.String("path", path))
	}
	return &card, nil
}

func (s *FileStore) list(_ context.Context, projectID, sub string) ([]string, error) {
	dir, err := s.projectDir(projectID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, sub))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "list cards", slog.String("dir", sub))
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != cardExt {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), cardExt))
	}
	sort.Strings(names)
	return names, nil
}

// save writes the card to a temporary file and renames it into place so readers never see a partial card.
func (s *FileStore) save(ctx context.Context, projectID, rel string, card any) (err error) {
	dir, err := s.projectDir(projectID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, rel)
	b, err := yaml.Marshal(card)
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrValidation), "encode card")
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "create card directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".card-*.tmp")
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "create temporary card")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "write temporary card")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "close temporary card")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "rename card", slog.String("path", path))
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "saved card", slog.String("path", path))
	return nil
}

func (s *FileStore) remove(_ context.Context, projectID, rel string) (bool, error) {
	dir, err := s.projectDir(projectID)
	if err != nil {
		return false, err
	}
	err = os.Remove(filepath.Join(dir, rel))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.Mark(err, errors.ErrStorage), "remove card")
	}
	return true, nil
}

// validateName rejects names that would escape the project directory.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return errors.Wrap(errors.ErrValidation, "invalid card or project name", slog.String("name", name))
	}
	return nil
}
