package handler

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rl1809/book-lending/internal/core/domain"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type TokenRequest struct {
	User string `json:"user" validate:"required"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type InsertedResponse struct {
	InsertedID string `json:"insertedId"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type BookResponse struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Image       string    `json:"image,omitempty"`
	Rating      float64   `json:"rating"`
	Quantity    int       `json:"quantity"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toBookResponse(b domain.Book) BookResponse {
	return BookResponse{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Category:    b.Category,
		Description: b.Description,
		Image:       b.Image,
		Rating:      b.Rating,
		Quantity:    b.Quantity,
		Email:       b.OwnerEmail,
		CreatedAt:   b.CreatedAt,
	}
}

type CreateBookRequest struct {
	Title       string  `json:"title" validate:"required"`
	Author      string  `json:"author"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Rating      float64 `json:"rating" validate:"gte=0,lte=5"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	Email       string  `json:"email" validate:"omitempty,email"`
}

func (r CreateBookRequest) toDomain() domain.Book {
	return domain.Book{
		Title:       strings.TrimSpace(r.Title),
		Author:      r.Author,
		Category:    r.Category,
		Description: r.Description,
		Image:       r.Image,
		Rating:      r.Rating,
		Quantity:    r.Quantity,
		OwnerEmail:  r.Email,
	}
}

// UpdateBookRequest is a partial book. An _id in the body is ignored.
type UpdateBookRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1"`
	Author      *string  `json:"author"`
	Category    *string  `json:"category"`
	Description *string  `json:"description"`
	Image       *string  `json:"image"`
	Rating      *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
	Quantity    *int     `json:"quantity" validate:"omitempty,gte=0"`
	Email       *string  `json:"email" validate:"omitempty,email"`
}

func (r UpdateBookRequest) toPatch() domain.BookPatch {
	return domain.BookPatch{
		Title:       r.Title,
		Author:      r.Author,
		Category:    r.Category,
		Description: r.Description,
		Image:       r.Image,
		Rating:      r.Rating,
		Quantity:    r.Quantity,
		OwnerEmail:  r.Email,
	}
}

type BorrowRequest struct {
	UserID     string `json:"userId"`
	ReturnDate string `json:"returnDate" validate:"required"`
}

type LoanResponse struct {
	ID         string        `json:"_id"`
	BookID     string        `json:"bookId"`
	UserID     string        `json:"userId"`
	ReturnDate time.Time     `json:"returnDate"`
	CreatedAt  time.Time     `json:"createdAt"`
	Book       *BookResponse `json:"book,omitempty"`
}

func toLoanResponse(row domain.BorrowedBook) LoanResponse {
	book := toBookResponse(row.Book)
	return LoanResponse{
		ID:         row.Loan.ID,
		BookID:     row.Loan.BookID,
		UserID:     row.Loan.UserID,
		ReturnDate: row.Loan.ReturnDate,
		CreatedAt:  row.Loan.CreatedAt,
		Book:       &book,
	}
}

var errBadReturnDate = errors.New("returnDate must be YYYY-MM-DD or RFC3339")

// parseReturnDate accepts a calendar date or a full RFC3339 timestamp.
func parseReturnDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, errBadReturnDate
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
