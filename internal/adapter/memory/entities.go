package memory

import (
	"context"

	"github.com/google/uuid"

	"spritegen/internal/domain"
)

func (s *Store) CreateCharacter(_ context.Context, c domain.Character) (domain.Character, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = s.timestamp()
	s.characters[c.ID] = c
	return c, nil
}

func (s *Store) GetCharacter(_ context.Context, id string) (domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[id]
	if !ok {
		return domain.Character{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) SetCharacterCleanImage(_ context.Context, id, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.CleanImageKey = key
	s.characters[id] = c
	return nil
}

func (s *Store) SaveAnimations(_ context.Context, animations []domain.Animation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range animations {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = s.timestamp()
		s.animations = append(s.animations, a)
	}
	return nil
}

// Animations returns the animations saved for a character.
func (s *Store) Animations(characterID string) []domain.Animation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Animation
	for _, a := range s.animations {
		if a.CharacterID == characterID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) CreateScene(_ context.Context, sc domain.Scene) (domain.Scene, error) {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sc.CreatedAt = s.timestamp()
	s.scenes[sc.ID] = sc
	return sc, nil
}

func (s *Store) GetScene(_ context.Context, id string) (domain.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenes[id]
	if !ok {
		return domain.Scene{}, domain.ErrNotFound
	}
	sc.Layers = append([]domain.SceneLayer(nil), sc.Layers...)
	return sc, nil
}

func (s *Store) SetSceneLayers(_ context.Context, id string, layers []domain.SceneLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenes[id]
	if !ok {
		return domain.ErrNotFound
	}
	sc.Layers = append([]domain.SceneLayer(nil), layers...)
	s.scenes[id] = sc
	return nil
}

func (s *Store) SetScenePreview(_ context.Context, id, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenes[id]
	if !ok {
		return domain.ErrNotFound
	}
	sc.PreviewKey = key
	s.scenes[id] = sc
	return nil
}
