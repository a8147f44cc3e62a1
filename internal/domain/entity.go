package domain

import "time"

// GameView controls the sprite style requested from the animation model.
type GameView string

const (
	GameViewSideScroller GameView = "side-scroller"
	GameViewTopDown      GameView = "top-down"
)

// Character is the subject of sprite generation.
type Character struct {
	ID             string
	UserID         string
	ProjectID      string
	Name           string
	Description    string
	AnimalType     string
	SourceImageKey string
	CleanImageKey  string
	GameView       GameView
	StylePack      string
	CreatedAt      time.Time
}

// Scene is the subject of parallax generation.
type Scene struct {
	ID             string
	UserID         string
	ProjectID      string
	Name           string
	Description    string
	SourceImageKey string
	StylePack      string
	Layers         []SceneLayer
	PreviewKey     string
	CreatedAt      time.Time
}

// SceneLayer is one depth slice of a scene.
type SceneLayer struct {
	Index    int     `json:"index"`
	Depth    float64 `json:"depth"`
	ImageKey string  `json:"imageKey"`
}

// Animation is a packed sprite sheet for one action and direction.
type Animation struct {
	ID          string
	CharacterID string
	JobID       string
	Action      string
	Direction   string
	SheetKey    string
	Width       int
	Height      int
	FPS         int
	Upscaled    bool
	CreatedAt   time.Time
}

// Actions and directions a sprite job may request.
var (
	SpriteActions    = []string{"idle", "walk", "run", "jump", "attack", "hurt", "death"}
	SpriteDirections = []string{"left", "right", "up", "down"}
)

// ValidAction reports whether a is a supported animation action.
func ValidAction(a string) bool { return contains(SpriteActions, a) }

// ValidDirection reports whether d is a supported facing direction.
func ValidDirection(d string) bool { return contains(SpriteDirections, d) }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
