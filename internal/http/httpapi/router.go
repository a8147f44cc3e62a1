package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"spritegen/internal/http/handlers"
	"spritegen/internal/infra"
	"spritegen/internal/middleware"
)

// RouterOptions carries the cross-cutting settings of the router.
type RouterOptions struct {
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	// provider callbacks authenticate with the shared token instead of a JWT
	r.Post("/v1/webhooks/replicate", app.ReplicateWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}

		r.Post("/v1/sprites", app.SpritesGenerate)

		r.Route("/v1/scenes", func(r chi.Router) {
			r.Post("/parallax/batch", app.ParallaxBatch)
			r.Post("/{sceneID}/parallax", app.ParallaxGenerate)
			r.Post("/{sceneID}/depth-split", app.DepthSplitGenerate)
		})

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", app.JobsList)
			r.Get("/{jobID}", app.JobStatus)
			r.Get("/{jobID}/detail", app.JobDetail)
			r.Get("/{jobID}/steps", app.JobSteps)
			r.Post("/{jobID}/cancel", app.JobCancel)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/", app.CreditsBalance)
			r.Get("/transactions", app.CreditsTransactions)
		})
	})

	return r
}
