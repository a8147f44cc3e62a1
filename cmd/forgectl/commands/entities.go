package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"spritegen/internal/domain"
)

// CharacterAddAction registers a character for sprite generation.
func CharacterAddAction(ctx context.Context, cmd *cli.Command) error {
	view, err := parseGameView(cmd.String("view"))
	if err != nil {
		return err
	}
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	c, err := appCtx.Entities.CreateCharacter(ctx, domain.Character{
		UserID:         cmd.String("user"),
		Name:           cmd.String("name"),
		Description:    cmd.String("description"),
		AnimalType:     cmd.String("animal"),
		SourceImageKey: cmd.String("image"),
		GameView:       view,
		StylePack:      cmd.String("style"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "character %s created\n", c.ID)
	return nil
}

// SceneAddAction registers a scene for parallax or depth-split generation.
func SceneAddAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	s, err := appCtx.Entities.CreateScene(ctx, domain.Scene{
		UserID:         cmd.String("user"),
		Name:           cmd.String("name"),
		Description:    cmd.String("description"),
		SourceImageKey: cmd.String("image"),
		StylePack:      cmd.String("style"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "scene %s created\n", s.ID)
	return nil
}

func parseGameView(v string) (domain.GameView, error) {
	switch view := domain.GameView(strings.ToLower(strings.TrimSpace(v))); view {
	case "", domain.GameViewSideScroller:
		return domain.GameViewSideScroller, nil
	case domain.GameViewTopDown:
		return view, nil
	default:
		return "", fmt.Errorf("unknown game view %q", v)
	}
}
