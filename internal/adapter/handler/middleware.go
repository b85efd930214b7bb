package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/book-lending/internal/core/service"
	"github.com/rl1809/book-lending/internal/logger"
)

const (
	sessionCookie = "token"
	localUser     = "user"
)

// RequestLogger attaches a request-scoped logger to the user context and logs
// the outcome of every request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		entry := logrus.WithFields(logrus.Fields{
			"request_id": utils.CopyString(c.GetRespHeader(fiber.HeaderXRequestID)),
			"method":     utils.CopyString(c.Method()),
			"path":       utils.CopyString(c.Path()),
		})
		c.SetUserContext(logger.WithLogger(c.UserContext(), entry))

		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		entry.WithFields(logrus.Fields{
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start).String(),
		}).Info("request completed")
		return nil
	}
}

// RequireSession admits requests carrying a valid session cookie. A missing
// cookie is forbidden, a bad or revoked token is unauthorized.
func RequireSession(sessions *service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := sessions.Authenticate(c.UserContext(), c.Cookies(sessionCookie))
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "invalid token"})
			}
			return writeError(c, err)
		}

		c.Locals(localUser, claims.User)
		c.SetUserContext(logger.WithLogger(c.UserContext(),
			logger.GetLogger(c.UserContext()).WithField("user", claims.User)))
		return c.Next()
	}
}

// sessionUser returns the authenticated user, or "" on unprotected routes.
func sessionUser(c *fiber.Ctx) string {
	user, _ := c.Locals(localUser).(string)
	return user
}
