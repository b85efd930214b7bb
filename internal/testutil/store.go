// Package testutil provides in-memory port implementations for tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rl1809/book-lending/internal/core/domain"
)

// Store implements port.BookRepository and port.LoanRepository in memory with the
// same conditional-update semantics as the real adapters.
type Store struct {
	mu     sync.Mutex
	seq    int
	books  map[string]domain.Book
	loans  map[string]domain.Loan
	errors map[string]error
}

func NewStore() *Store {
	return &Store{
		books:  make(map[string]domain.Book),
		loans:  make(map[string]domain.Loan),
		errors: make(map[string]error),
	}
}

// FailOn makes the named method return err until cleared with a nil error.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errors, method)
		return
	}
	s.errors[method] = err
}

// AddBook inserts a book directly and returns its ID.
func (s *Store) AddBook(book domain.Book) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	book.ID = s.nextID("book")
	s.books[book.ID] = book
	return book.ID
}

// AddLoan inserts a loan directly without touching stock.
func (s *Store) AddLoan(loan domain.Loan) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan.ID = s.nextID("loan")
	s.loans[loan.ID] = loan
	return loan.ID
}

func (s *Store) RemoveBook(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
}

// RemoveLoan deletes a loan behind the caller's back, as a concurrent request would.
func (s *Store) RemoveLoan(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loans, id)
}

func (s *Store) Quantity(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books[id].Quantity
}

func (s *Store) LoanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loans)
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Store) fail(method string) error {
	return s.errors[method]
}

func (s *Store) CreateBook(ctx context.Context, book domain.Book) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateBook"); err != nil {
		return "", err
	}
	book.ID = s.nextID("book")
	s.books[book.ID] = book
	return book.ID, nil
}

func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetBook"); err != nil {
		return nil, err
	}
	book, ok := s.books[id]
	if !ok {
		return nil, nil
	}
	return &book, nil
}

func (s *Store) ListBooks(ctx context.Context, ownerEmail string) ([]domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListBooks"); err != nil {
		return nil, err
	}
	out := make([]domain.Book, 0, len(s.books))
	for _, book := range s.books {
		if ownerEmail == "" || book.OwnerEmail == ownerEmail {
			out = append(out, book)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateBook"); err != nil {
		return false, false, err
	}
	book, ok := s.books[id]
	if !ok {
		return false, false, nil
	}
	updated := patch.Apply(book)
	if updated == book {
		return true, false, nil
	}
	s.books[id] = updated
	return true, true, nil
}

func (s *Store) DecrementQuantity(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DecrementQuantity"); err != nil {
		return false, err
	}
	book, ok := s.books[id]
	if !ok || book.Quantity <= 0 {
		return false, nil
	}
	book.Quantity--
	s.books[id] = book
	return true, nil
}

func (s *Store) IncrementQuantity(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("IncrementQuantity"); err != nil {
		return false, err
	}
	book, ok := s.books[id]
	if !ok {
		return false, nil
	}
	book.Quantity++
	s.books[id] = book
	return true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("Ping")
}

func (s *Store) CreateLoan(ctx context.Context, loan domain.Loan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateLoan"); err != nil {
		return "", err
	}
	loan.ID = s.nextID("loan")
	s.loans[loan.ID] = loan
	return loan.ID, nil
}

func (s *Store) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetLoan"); err != nil {
		return nil, err
	}
	loan, ok := s.loans[id]
	if !ok {
		return nil, nil
	}
	return &loan, nil
}

func (s *Store) DeleteLoan(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteLoan"); err != nil {
		return false, err
	}
	if _, ok := s.loans[id]; !ok {
		return false, nil
	}
	delete(s.loans, id)
	return true, nil
}

func (s *Store) ListBorrowedBooks(ctx context.Context, userID string) ([]domain.BorrowedBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListBorrowedBooks"); err != nil {
		return nil, err
	}
	var out []domain.BorrowedBook
	for _, loan := range s.loans {
		if loan.UserID != userID {
			continue
		}
		book, ok := s.books[loan.BookID]
		if !ok {
			continue
		}
		out = append(out, domain.BorrowedBook{Loan: loan, Book: book})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Loan.ID < out[j].Loan.ID })
	return out, nil
}

func (s *Store) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListLoans"); err != nil {
		return nil, err
	}
	out := make([]domain.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		out = append(out, loan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
