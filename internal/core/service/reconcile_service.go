package service

import (
	"context"

	"github.com/samber/lo"

	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/port"
)

// ReconcileService compares open loans against the catalog. It never writes;
// repairs are left to the operator.
type ReconcileService struct {
	books port.BookRepository
	loans port.LoanRepository
}

func NewReconcileService(books port.BookRepository, loans port.LoanRepository) *ReconcileService {
	return &ReconcileService{books: books, loans: loans}
}

func (s *ReconcileService) Run(ctx context.Context) (domain.ReconcileReport, error) {
	books, err := s.books.ListBooks(ctx, "")
	if err != nil {
		return domain.ReconcileReport{}, storeError("list books", err)
	}
	loans, err := s.loans.ListLoans(ctx)
	if err != nil {
		return domain.ReconcileReport{}, storeError("list loans", err)
	}

	byID := lo.KeyBy(books, func(b domain.Book) string { return b.ID })
	grouped := lo.GroupBy(loans, func(l domain.Loan) string { return l.BookID })

	report := domain.ReconcileReport{
		Books:     len(books),
		Loans:     len(loans),
		OpenLoans: make(map[string]int, len(grouped)),
		OrphanLoans: lo.Filter(loans, func(l domain.Loan, _ int) bool {
			_, ok := byID[l.BookID]
			return !ok
		}),
		NegativeStock: lo.Filter(books, func(b domain.Book, _ int) bool {
			return b.Quantity < 0
		}),
	}
	for bookID, open := range grouped {
		report.OpenLoans[bookID] = len(open)
	}
	return report, nil
}
