package handler

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/rl1809/book-lending/internal/config"
)

// NewApp builds the HTTP surface. Which routes require a session is decided by
// cfg.ProtectedRoutes.
func NewApp(cfg config.Config, h *HTTPHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
		// Request values outlive the handler in stores and logs.
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.CORSOrigins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Idempotency-Key",
		AllowCredentials: true,
	}))

	auth := RequireSession(h.sessions)
	route := func(name string, handler fiber.Handler) []fiber.Handler {
		if cfg.ProtectedRoutes[name] {
			return []fiber.Handler{auth, handler}
		}
		return []fiber.Handler{handler}
	}

	app.Get("/health", h.HealthCheck)
	app.Post("/jwt", tokenLimiter(), h.IssueToken)
	app.Post("/logout", h.Logout)

	api := app.Group("/api")
	api.Get("/books", route(config.RouteBooksList, h.ListBooks)...)
	api.Get("/books/:id", route(config.RouteBooksGet, h.GetBook)...)
	api.Put("/books/:bookId", route(config.RouteBooksUpdate, h.UpdateBook)...)
	api.Post("/books", route(config.RouteBooksCreate, h.CreateBook)...)
	api.Post("/borrow/:id", route(config.RouteBorrow, h.Borrow)...)
	api.Get("/borrowed-books", route(config.RouteBorrowedList, h.BorrowedBooks)...)
	api.Post("/return-book/:id", route(config.RouteReturn, h.ReturnBook)...)

	return app
}

func tokenLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Error: "too many requests"})
		},
	})
}
