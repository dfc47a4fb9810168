package server

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/metrics"
)

// NewApp builds the fiber app every service starts from: tracing, per-IP
// rate limiting, /health and, when reg is set, /metrics.
func NewApp(name string, cfg config.Limiter, reg *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: name,
	})

	app.Use(otelfiber.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString(name + " is alive!")
	})

	if reg != nil {
		app.Get("/metrics", metrics.Handler(reg))
	}

	if cfg.RPC > 0 {
		expiration := cfg.TTL
		if expiration == 0 {
			expiration = 5 * time.Second
		}

		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RPC + cfg.Burst,
			Expiration: expiration,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	return app
}
