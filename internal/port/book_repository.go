package port

import (
	"context"
	"errors"

	"github.com/rl1809/book-lending/internal/core/domain"
)

// ErrUnavailable is wrapped by adapters when the store could not be reached or timed out.
var ErrUnavailable = errors.New("store unavailable")

type BookRepository interface {
	// CreateBook persists a new book and returns its store-assigned ID
	CreateBook(ctx context.Context, book domain.Book) (string, error)

	// GetBook returns nil without error when the book does not exist
	GetBook(ctx context.Context, id string) (*domain.Book, error)

	// ListBooks returns all books, or only those owned by ownerEmail when it is not empty
	ListBooks(ctx context.Context, ownerEmail string) ([]domain.Book, error)

	// UpdateBook applies a partial update. matched is false when the book does not exist,
	// modified is false when the stored document already had the given values
	UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (matched, modified bool, err error)

	// DecrementQuantity atomically decreases quantity by one only if it is above zero.
	// Returns false when no record matched (missing book or no stock left)
	DecrementQuantity(ctx context.Context, id string) (bool, error)

	// IncrementQuantity increases quantity by one, returns false if the book is missing
	IncrementQuantity(ctx context.Context, id string) (bool, error)

	// Ping checks the store is reachable
	Ping(ctx context.Context) error
}
