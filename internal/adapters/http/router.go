package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupFacilityRoutes registers the facility backend: REST, GraphQL, docs,
// health and metrics.
func SetupFacilityRoutes(app *fiber.App, deps *Dependencies, specPath string) {
	useCommon(app)

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	app.Get("/facilities", timeout.NewWithContext(ListFacilitiesHandler(deps), requestTimeout))
	app.Get("/facilities/:id", timeout.NewWithContext(GetFacilityHandler(deps), requestTimeout))
	app.Get("/v1/stats", timeout.NewWithContext(FacilityCountHandler(deps), requestTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, specPath)
}

// SetupGatewayRoutes registers the discovery gateway: the /ws session
// endpoint plus health and metrics.
func SetupGatewayRoutes(app *fiber.App, deps *Dependencies, cfg SessionConfig) {
	useCommon(app)

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	app.Use("/ws", WebSocketUpgrade())
	app.Get("/ws", websocket.New(WebSocketHandler(deps.Sessions, cfg)))
}

func useCommon(app *fiber.App) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: errRateLimited,
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
}
