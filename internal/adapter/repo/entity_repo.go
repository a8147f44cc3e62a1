package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"spritegen/internal/domain"
	"spritegen/internal/infra"
	"spritegen/internal/sqlinline"
)

// EntityStorePG implements domain.EntityStore.
type EntityStorePG struct {
	db infra.TxExecutor
}

// NewEntityStore creates an entity store backed by PostgreSQL.
func NewEntityStore(db infra.TxExecutor) *EntityStorePG {
	return &EntityStorePG{db: db}
}

func (r *EntityStorePG) CreateCharacter(ctx context.Context, c domain.Character) (domain.Character, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.GameView == "" {
		c.GameView = domain.GameViewSideScroller
	}
	err := r.db.QueryRow(ctx, sqlinline.QInsertCharacter,
		c.ID, c.UserID, c.ProjectID, c.Name, c.Description, c.AnimalType, c.SourceImageKey, string(c.GameView), c.StylePack,
	).Scan(&c.CreatedAt)
	if err != nil {
		return domain.Character{}, fmt.Errorf("entities: insert character: %w", err)
	}
	return c, nil
}

func (r *EntityStorePG) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	var (
		c        domain.Character
		gameView string
	)
	err := r.db.QueryRow(ctx, sqlinline.QGetCharacter, id).Scan(
		&c.ID, &c.UserID, &c.ProjectID, &c.Name, &c.Description, &c.AnimalType,
		&c.SourceImageKey, &c.CleanImageKey, &gameView, &c.StylePack, &c.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Character{}, domain.ErrNotFound
		}
		return domain.Character{}, fmt.Errorf("entities: get character: %w", err)
	}
	c.GameView = domain.GameView(gameView)
	return c, nil
}

func (r *EntityStorePG) SetCharacterCleanImage(ctx context.Context, id, key string) error {
	return r.execOne(ctx, sqlinline.QSetCharacterCleanImage, "set clean image", id, key)
}

// SaveAnimations stores all sheets of one job atomically.
func (r *EntityStorePG) SaveAnimations(ctx context.Context, animations []domain.Animation) error {
	if len(animations) == 0 {
		return nil
	}
	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		for _, a := range animations {
			id := a.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.Exec(ctx, sqlinline.QInsertAnimation,
				id, a.CharacterID, a.JobID, a.Action, a.Direction, a.SheetKey, a.Width, a.Height, a.FPS, a.Upscaled,
			); err != nil {
				return fmt.Errorf("entities: insert animation: %w", err)
			}
		}
		return nil
	})
}

func (r *EntityStorePG) CreateScene(ctx context.Context, s domain.Scene) (domain.Scene, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, sqlinline.QInsertScene,
		s.ID, s.UserID, s.ProjectID, s.Name, s.Description, s.SourceImageKey, s.StylePack,
	).Scan(&s.CreatedAt)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("entities: insert scene: %w", err)
	}
	return s, nil
}

func (r *EntityStorePG) GetScene(ctx context.Context, id string) (domain.Scene, error) {
	var (
		s      domain.Scene
		layers []byte
	)
	err := r.db.QueryRow(ctx, sqlinline.QGetScene, id).Scan(
		&s.ID, &s.UserID, &s.ProjectID, &s.Name, &s.Description, &s.SourceImageKey, &s.StylePack, &layers, &s.PreviewKey, &s.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Scene{}, domain.ErrNotFound
		}
		return domain.Scene{}, fmt.Errorf("entities: get scene: %w", err)
	}
	if len(layers) > 0 {
		if err := json.Unmarshal(layers, &s.Layers); err != nil {
			return domain.Scene{}, fmt.Errorf("entities: decode scene layers: %w", err)
		}
	}
	return s, nil
}

func (r *EntityStorePG) SetSceneLayers(ctx context.Context, id string, layers []domain.SceneLayer) error {
	if layers == nil {
		layers = []domain.SceneLayer{}
	}
	payload, err := json.Marshal(layers)
	if err != nil {
		return fmt.Errorf("entities: encode scene layers: %w", err)
	}
	return r.execOne(ctx, sqlinline.QSetSceneLayers, "set scene layers", id, payload)
}

func (r *EntityStorePG) SetScenePreview(ctx context.Context, id, key string) error {
	return r.execOne(ctx, sqlinline.QSetScenePreview, "set scene preview", id, key)
}

func (r *EntityStorePG) execOne(ctx context.Context, query, op string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("entities: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.EntityStore = (*EntityStorePG)(nil)
