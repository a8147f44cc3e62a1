package domain

// Layer count bounds for parallax and depth-split jobs.
const (
	MinLayers             = 1
	MaxLayers             = 8
	DefaultParallaxLayers = 5
	DefaultSplitLayers    = 3
)

// CreditsPerAnimation is charged for each action and direction pair.
const CreditsPerAnimation = 2

// DepthSplitCost is the flat price of a depth-split job.
const DepthSplitCost = 1

// SpriteCost prices a sprite job.
func SpriteCost(actions, directions int) int {
	return actions * directions * CreditsPerAnimation
}

// ParallaxCost prices a parallax job at one credit per layer.
func ParallaxCost(layers int) int {
	return layers
}
