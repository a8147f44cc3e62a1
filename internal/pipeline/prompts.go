package pipeline

import (
	"fmt"
	"strings"

	"spritegen/internal/domain"
	"spritegen/internal/providers/replicate"
)

var directionPhrases = map[string]string{
	"right": "facing right, side view",
	"left":  "facing left, side view",
	"up":    "facing away, back view",
	"down":  "facing forward, front view",
}

var stylePackPhrases = map[string]string{
	"cozy":         "warm soft pastel tones, gentle shading, cozy pixel art",
	"retro-pixel":  "16-bit pixel art, limited palette, crisp pixel edges",
	"realistic":    "detailed textures, natural colors, wildlife illustration",
	"dark-fantasy": "gothic dark fantasy, deep shadows, dramatic lighting",
	"chibi":        "chibi proportions, large head, tiny body, big eyes",
	"anime":        "anime cel shading, clean bold lines, vibrant colors",
	"painterly":    "painterly brush strokes, impressionist texture",
}

var layerDepthPhrases = []string{
	"far background sky layer",
	"distant mountains or hills layer",
	"mid background landscape layer",
	"midground trees or structures layer",
	"near midground details layer",
	"foreground ground and path layer",
	"close foreground elements layer",
	"very close foreground details layer",
}

func stylePhrase(pack string) string {
	if phrase, ok := stylePackPhrases[pack]; ok {
		return phrase
	}
	return "pixel art game style"
}

func subjectOf(c domain.Character) string {
	subject := strings.TrimSpace(c.AnimalType)
	if subject == "" {
		subject = strings.TrimSpace(c.Name)
	}
	if subject == "" {
		subject = "creature"
	}
	return subject
}

func spritePrompt(c domain.Character, action, direction string) string {
	dir := directionPhrases[direction]
	if dir == "" {
		dir = direction
	}
	parts := []string{
		fmt.Sprintf("a %s %s animation", subjectOf(c), action),
		dir,
		stylePhrase(c.StylePack),
		"game sprite sheet, single character, transparent background, no text",
	}
	return strings.Join(parts, ", ")
}

func styleTransferPrompt(c domain.Character) string {
	return fmt.Sprintf("%s, %s, game character portrait", subjectOf(c), stylePhrase(c.StylePack))
}

func layerPrompt(s domain.Scene, index, total int) string {
	label := layerDepthPhrases[min(index, len(layerDepthPhrases)-1)]
	parts := []string{strings.TrimSpace(s.Description), label, stylePhrase(s.StylePack), "parallax game background"}
	switch {
	case index == 0:
		parts = append(parts, "clean full coverage background")
	case index >= total-2:
		parts = append(parts, "isolated elements on transparent background")
	default:
		parts = append(parts, "transparent areas where appropriate")
	}
	parts = append(parts, "seamless horizontal tile", "no characters", "no text")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// spriteStyle picks the animation model style for a game view.
func spriteStyle(view domain.GameView) string {
	if view == domain.GameViewSideScroller || view == "" {
		return replicate.StyleWalkingAndIdle
	}
	return replicate.StyleFourAngleWalking
}

// baseSheetSize is the sheet size the animation model renders per style.
func baseSheetSize(style string) (int, int) {
	if style == replicate.StyleWalkingAndIdle {
		return 512, 256
	}
	return 512, 512
}

// aspectRatioFor maps a device resolution onto the ratios the scene model
// accepts.
func aspectRatioFor(width, height int) string {
	if width <= 0 || height <= 0 {
		width, height = 1080, 1920
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio > 1.4:
		return "16:9"
	case ratio > 1.1:
		return "4:3"
	case ratio > 0.9:
		return "1:1"
	case ratio > 0.7:
		return "3:4"
	default:
		return "9:16"
	}
}

// layerDepth spreads layers evenly over [0, 1].
func layerDepth(index, total int) float64 {
	if total <= 1 {
		return 0
	}
	return float64(index) / float64(total-1)
}
