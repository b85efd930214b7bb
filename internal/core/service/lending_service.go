package service

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/logger"
	"github.com/rl1809/book-lending/internal/port"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	idempotencyKeyPrefix = "borrow:"
)

type BorrowRequest struct {
	BookID         string
	UserID         string
	ReturnDate     time.Time
	IdempotencyKey string
}

// LendingService moves stock between books and loans. A book's quantity plus its open
// loans always equals its stock; every mutation is a single conditional store write.
type LendingService struct {
	books   port.BookRepository
	loans   port.LoanRepository
	idem    port.IdempotencyStore
	timeout time.Duration
	now     func() time.Time
}

type Option func(*LendingService)

// WithStoreTimeout bounds each workflow call against the store.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *LendingService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LendingService) {
		s.now = now
	}
}

func NewLendingService(books port.BookRepository, loans port.LoanRepository, idem port.IdempotencyStore, opts ...Option) *LendingService {
	s := &LendingService{
		books:   books,
		loans:   loans,
		idem:    idem,
		timeout: defaultStoreTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Borrow turns one available copy of a book into a loan and returns the loan ID.
// The book is decremented before the loan is written, so a crash in between loses a
// decrement instead of leaving a loan without one.
func (s *LendingService) Borrow(ctx context.Context, req BorrowRequest) (string, error) {
	if req.BookID == "" {
		return "", validationError("book id is required")
	}
	if req.UserID == "" {
		return "", validationError("userId is required")
	}
	if req.ReturnDate.IsZero() {
		return "", validationError("returnDate is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := logger.GetLogger(ctx).WithFields(logrus.Fields{"book_id": req.BookID, "user_id": req.UserID})

	key := idempotencyKey(req)
	if key != "" {
		ok, err := s.idem.SetIdempotency(ctx, key)
		if err != nil {
			return "", storeError("idempotency check", err)
		}
		if !ok {
			return "", ErrDuplicateRequest
		}
	}

	// No loan exists yet, so every failure up to the loan write frees the key.
	ok, err := s.books.DecrementQuantity(ctx, req.BookID)
	if err != nil {
		s.releaseKey(ctx, key, log)
		return "", storeError("decrement quantity", err)
	}
	if !ok {
		s.releaseKey(ctx, key, log)
		return "", s.explainMissedDecrement(ctx, req.BookID)
	}

	loanID, err := s.loans.CreateLoan(ctx, domain.Loan{
		BookID:     req.BookID,
		UserID:     req.UserID,
		ReturnDate: req.ReturnDate,
		CreatedAt:  s.now(),
	})
	if err != nil {
		if isUnavailable(err) {
			// The insert may have landed; restoring stock here could over-lend.
			log.WithError(err).Error("loan write outcome unknown after decrement, reconcile required")
			return "", storeError("create loan", err)
		}

		log.WithError(err).Warn("loan write failed, restoring stock")
		if _, rbErr := s.books.IncrementQuantity(ctx, req.BookID); rbErr != nil {
			log.WithError(rbErr).Error("CRITICAL: stock rollback failed after loan write failure")
		} else {
			s.releaseKey(ctx, key, log)
		}
		return "", fmt.Errorf("create loan: %w: %w", ErrUpdateFailed, err)
	}

	log.WithField("loan_id", loanID).Info("book borrowed")
	return loanID, nil
}

// idempotencyKey scopes a client key to the user and book it was sent for.
func idempotencyKey(req BorrowRequest) string {
	if req.IdempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("%s%s:%s:%s", idempotencyKeyPrefix, req.UserID, req.BookID, req.IdempotencyKey)
}

// releaseKey frees the idempotency key of a borrow that left no loan behind so
// the client can retry with it.
func (s *LendingService) releaseKey(ctx context.Context, key string, log *logrus.Entry) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.idem.ReleaseIdempotency(ctx, key); err != nil {
		log.WithError(err).Warn("failed to release idempotency key")
	}
}

// explainMissedDecrement classifies a conditional decrement that matched nothing.
func (s *LendingService) explainMissedDecrement(ctx context.Context, bookID string) error {
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return storeError("get book", err)
	}
	if book == nil {
		return fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}
	if book.Quantity <= 0 {
		return fmt.Errorf("book %s: %w", bookID, ErrOutOfStock)
	}
	return fmt.Errorf("book %s: %w", bookID, ErrUpdateFailed)
}

// Return reverses a borrow: the book is incremented, then the loan is deleted.
func (s *LendingService) Return(ctx context.Context, loanID string) error {
	if loanID == "" {
		return validationError("loan id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	loan, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return storeError("get loan", err)
	}
	if loan == nil {
		return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}

	log := logger.GetLogger(ctx).WithFields(logrus.Fields{"loan_id": loan.ID, "book_id": loan.BookID})

	ok, err := s.books.IncrementQuantity(ctx, loan.BookID)
	if err != nil {
		return storeError("increment quantity", err)
	}
	if !ok {
		log.Warn("return refused, book no longer exists")
		return fmt.Errorf("loan %s: %w", loanID, ErrBookMissing)
	}

	deleted, err := s.loans.DeleteLoan(ctx, loan.ID)
	if err != nil {
		if isUnavailable(err) {
			log.WithError(err).Error("loan delete outcome unknown after increment, reconcile required")
			return storeError("delete loan", err)
		}
		s.undoIncrement(ctx, log, loan.BookID)
		return fmt.Errorf("delete loan: %w: %w", ErrUpdateFailed, err)
	}
	if !deleted {
		// A concurrent return removed the loan first and already restored the stock.
		s.undoIncrement(ctx, log, loan.BookID)
		return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}

	log.Info("book returned")
	return nil
}

func (s *LendingService) undoIncrement(ctx context.Context, log *logrus.Entry, bookID string) {
	ok, err := s.books.DecrementQuantity(ctx, bookID)
	if err != nil || !ok {
		log.WithError(err).Error("CRITICAL: stock rollback failed after loan delete failure")
	}
}

// BorrowedBooks lists the open loans of a borrower joined with current book data.
func (s *LendingService) BorrowedBooks(ctx context.Context, userID string) ([]domain.BorrowedBook, error) {
	if userID == "" {
		return nil, validationError("email is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.loans.ListBorrowedBooks(ctx, userID)
	if err != nil {
		return nil, storeError("list borrowed books", err)
	}

	// Loans whose book was deleted are dropped rather than reported.
	return lo.Filter(rows, func(row domain.BorrowedBook, _ int) bool {
		return row.Book.ID != ""
	}), nil
}
