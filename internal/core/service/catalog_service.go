package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/logger"
	"github.com/rl1809/book-lending/internal/port"
)

// CatalogService handles book records outside of the borrow/return workflow.
type CatalogService struct {
	books   port.BookRepository
	timeout time.Duration
	now     func() time.Time
}

func NewCatalogService(books port.BookRepository, timeout time.Duration) *CatalogService {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &CatalogService{books: books, timeout: timeout, now: time.Now}
}

func (s *CatalogService) ListBooks(ctx context.Context, ownerEmail string) ([]domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	books, err := s.books.ListBooks(ctx, strings.TrimSpace(ownerEmail))
	if err != nil {
		return nil, storeError("list books", err)
	}
	return books, nil
}

func (s *CatalogService) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	book, err := s.books.GetBook(ctx, id)
	if err != nil {
		return nil, storeError("get book", err)
	}
	if book == nil {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return book, nil
}

// CreateBook stores a new catalog entry; the ID and creation time are assigned here.
func (s *CatalogService) CreateBook(ctx context.Context, book domain.Book) (string, error) {
	if strings.TrimSpace(book.Title) == "" {
		return "", validationError("title is required")
	}
	if book.Quantity < 0 {
		return "", validationError("quantity must not be negative")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	book.ID = ""
	book.CreatedAt = s.now()

	id, err := s.books.CreateBook(ctx, book)
	if err != nil {
		return "", storeError("create book", err)
	}

	logger.GetLogger(ctx).WithField("book_id", id).Info("book created")
	return id, nil
}

// UpdateBook applies a partial edit. ErrNotModified is returned when the stored
// book already held every given value.
func (s *CatalogService) UpdateBook(ctx context.Context, id string, patch domain.BookPatch) error {
	if patch.IsEmpty() {
		return validationError("no fields to update")
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		return validationError("quantity must not be negative")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return validationError("title must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	matched, modified, err := s.books.UpdateBook(ctx, id, patch)
	if err != nil {
		return storeError("update book", err)
	}
	if !matched {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if !modified {
		return ErrNotModified
	}
	return nil
}

// Ping checks the backing store within the service deadline.
func (s *CatalogService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.books.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}
