package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/rl1809/book-lending/internal/config"
	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/core/service"
	"github.com/rl1809/book-lending/internal/logger"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	catalog  *service.CatalogService
	lending  *service.LendingService
	sessions *service.SessionService
	cfg      config.Config
}

func NewHTTPHandler(catalog *service.CatalogService, lending *service.LendingService, sessions *service.SessionService, cfg config.Config) *HTTPHandler {
	return &HTTPHandler{
		catalog:  catalog,
		lending:  lending,
		sessions: sessions,
		cfg:      cfg,
	}
}

// IssueToken signs a session for the posted user and sets it as the session cookie.
func (h *HTTPHandler) IssueToken(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, "invalid request", validationDetails(err))
	}

	session, err := h.sessions.Issue(req.User)
	if err != nil {
		return writeError(c, err)
	}

	c.Cookie(h.sessionCookie(session.Token, session.ExpiresAt))
	return c.JSON(SuccessResponse{Success: true})
}

// Logout revokes the presented token and clears the cookie.
func (h *HTTPHandler) Logout(c *fiber.Ctx) error {
	if err := h.sessions.Revoke(c.UserContext(), c.Cookies(sessionCookie)); err != nil {
		logger.GetLogger(c.UserContext()).WithError(err).Warn("token revocation failed")
	}

	cookie := h.sessionCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	c.Cookie(cookie)
	return c.JSON(SuccessResponse{Success: true})
}

func (h *HTTPHandler) sessionCookie(value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cfg.CookieSecure(),
		SameSite: h.cfg.CookieSameSite(),
	}
}

func (h *HTTPHandler) ListBooks(c *fiber.Ctx) error {
	books, err := h.catalog.ListBooks(c.UserContext(), c.Query("email"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(lo.Map(books, func(b domain.Book, _ int) BookResponse {
		return toBookResponse(b)
	}))
}

func (h *HTTPHandler) GetBook(c *fiber.Ctx) error {
	book, err := h.catalog.GetBook(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBookResponse(*book))
}

func (h *HTTPHandler) UpdateBook(c *fiber.Ctx) error {
	var req UpdateBookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, "invalid request", validationDetails(err))
	}

	if err := h.catalog.UpdateBook(c.UserContext(), c.Params("bookId"), req.toPatch()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(SuccessResponse{Success: true})
}

// CreateBook stores a new book. The owner defaults to the session user.
func (h *HTTPHandler) CreateBook(c *fiber.Ctx) error {
	var req CreateBookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, "invalid request", validationDetails(err))
	}

	book := req.toDomain()
	if book.OwnerEmail == "" {
		book.OwnerEmail = sessionUser(c)
	}

	id, err := h.catalog.CreateBook(c.UserContext(), book)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(InsertedResponse{InsertedID: id})
}

// Borrow lends one copy of :id. userId falls back to the session user.
func (h *HTTPHandler) Borrow(c *fiber.Ctx) error {
	var req BorrowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, "invalid request", validationDetails(err))
	}

	returnDate, err := parseReturnDate(req.ReturnDate)
	if err != nil {
		return badRequest(c, "invalid request", err.Error())
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = sessionUser(c)
	}

	loanID, err := h.lending.Borrow(c.UserContext(), service.BorrowRequest{
		BookID:         c.Params("id"),
		UserID:         userID,
		ReturnDate:     returnDate,
		IdempotencyKey: strings.TrimSpace(c.Get(idempotencyHeader)),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(InsertedResponse{InsertedID: loanID})
}

func (h *HTTPHandler) BorrowedBooks(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return badRequest(c, "email is required", nil)
	}

	rows, err := h.lending.BorrowedBooks(c.UserContext(), email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(lo.Map(rows, func(row domain.BorrowedBook, _ int) LoanResponse {
		return toLoanResponse(row)
	}))
}

// ReturnBook closes the loan :id and puts the copy back in stock.
func (h *HTTPHandler) ReturnBook(c *fiber.Ctx) error {
	if err := h.lending.Return(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(SuccessResponse{Success: true})
}

func (h *HTTPHandler) HealthCheck(c *fiber.Ctx) error {
	if err := h.catalog.Ping(c.UserContext()); err != nil {
		logger.GetLogger(c.UserContext()).WithError(err).Warn("health check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "unavailable"})
	}
	return c.JSON(HealthResponse{Status: "ok"})
}
