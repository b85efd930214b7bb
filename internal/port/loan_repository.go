package port

import (
	"context"

	"github.com/rl1809/book-lending/internal/core/domain"
)

type LoanRepository interface {
	// CreateLoan persists a new loan and returns its store-assigned ID
	CreateLoan(ctx context.Context, loan domain.Loan) (string, error)

	// GetLoan returns nil without error when the loan does not exist
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)

	// DeleteLoan removes the loan, returns false if nothing was deleted
	DeleteLoan(ctx context.Context, id string) (bool, error)

	// ListBorrowedBooks returns the open loans of userID joined with their books.
	// Loans whose book no longer exists are left out
	ListBorrowedBooks(ctx context.Context, userID string) ([]domain.BorrowedBook, error)

	// ListLoans returns every open loan
	ListLoans(ctx context.Context) ([]domain.Loan, error)
}
