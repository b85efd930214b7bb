package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/book-lending/internal/adapter/storage"
	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/port"
	"github.com/rl1809/book-lending/internal/testutil"
)

var returnDate = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

func newLendingService(t *testing.T) (*LendingService, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	svc := NewLendingService(store, store, storage.NewMemoryAdapter(), WithStoreTimeout(time.Second))
	return svc, store
}

func borrow(svc *LendingService, bookID, userID string) (string, error) {
	return svc.Borrow(context.Background(), BorrowRequest{BookID: bookID, UserID: userID, ReturnDate: returnDate})
}

func TestBorrow_Success(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 3})

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, loanID)
	assert.Equal(t, 2, store.Quantity(bookID))

	loan, err := store.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	require.NotNil(t, loan)
	assert.Equal(t, bookID, loan.BookID)
	assert.Equal(t, "u1", loan.UserID)
	assert.True(t, returnDate.Equal(loan.ReturnDate))
	assert.False(t, loan.CreatedAt.IsZero())
}

func TestBorrow_OutOfStock(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 0})

	_, err := borrow(svc, bookID, "u1")
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 0, store.Quantity(bookID))
	assert.Equal(t, 0, store.LoanCount())
}

func TestBorrow_NotFound(t *testing.T) {
	svc, store := newLendingService(t)

	_, err := borrow(svc, "missing", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.LoanCount())
}

func TestBorrow_Validation(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	tests := []struct {
		name string
		req  BorrowRequest
	}{
		{"missing book", BorrowRequest{UserID: "u1", ReturnDate: returnDate}},
		{"missing user", BorrowRequest{BookID: bookID, ReturnDate: returnDate}},
		{"missing return date", BorrowRequest{BookID: bookID, UserID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Borrow(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Equal(t, 1, store.Quantity(bookID))
}

func TestBorrow_ConcurrentNeverOverLends(t *testing.T) {
	svc, store := newLendingService(t)

	initialStock := 10
	totalRequests := 100
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: initialStock})

	var successCount, outOfStockCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := borrow(svc, bookID, "u1")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, ErrOutOfStock):
				outOfStockCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, int32(totalRequests-initialStock), outOfStockCount.Load())
	assert.Equal(t, 0, store.Quantity(bookID))
	assert.Equal(t, initialStock, store.LoanCount())
}

func TestBorrow_LoanWriteFailureRestoresStock(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})
	store.FailOn("CreateLoan", errors.New("duplicate key"))

	_, err := borrow(svc, bookID, "u1")
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.Equal(t, 1, store.Quantity(bookID))
	assert.Equal(t, 0, store.LoanCount())
}

func TestBorrow_LoanWriteUnavailableKeepsDecrement(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})
	store.FailOn("CreateLoan", port.ErrUnavailable)

	_, err := borrow(svc, bookID, "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrUpdateFailed)
	assert.Equal(t, 0, store.Quantity(bookID), "an unknown outcome must not be compensated")
}

func TestBorrow_StoreUnavailable(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})
	store.FailOn("DecrementQuantity", context.DeadlineExceeded)

	_, err := borrow(svc, bookID, "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 0, store.LoanCount())
}

func TestBorrow_IdempotencyKey(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 5})

	req := BorrowRequest{BookID: bookID, UserID: "u1", ReturnDate: returnDate, IdempotencyKey: "req-1"}
	_, err := svc.Borrow(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Borrow(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, 4, store.Quantity(bookID))
	assert.Equal(t, 1, store.LoanCount())

	req.IdempotencyKey = "req-2"
	_, err = svc.Borrow(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Quantity(bookID))
}

func TestBorrow_FailedBorrowReleasesKey(t *testing.T) {
	ctx := context.Background()
	errConflict := errors.New("write conflict")

	tests := []struct {
		name    string
		qty     int
		failOn  string
		failErr error
		want    error
	}{
		{name: "out of stock", qty: 0, want: ErrOutOfStock},
		{name: "decrement unavailable", qty: 1, failOn: "DecrementQuantity", failErr: context.DeadlineExceeded, want: ErrUnavailable},
		{name: "decrement failed", qty: 1, failOn: "DecrementQuantity", failErr: errConflict, want: errConflict},
		{name: "loan write rolled back", qty: 1, failOn: "CreateLoan", failErr: errors.New("duplicate key"), want: ErrUpdateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newLendingService(t)
			bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: tt.qty})
			if tt.failOn != "" {
				store.FailOn(tt.failOn, tt.failErr)
			}

			req := BorrowRequest{BookID: bookID, UserID: "u1", ReturnDate: returnDate, IdempotencyKey: "k1"}
			_, err := svc.Borrow(ctx, req)
			require.ErrorIs(t, err, tt.want)

			store.FailOn(tt.failOn, nil)
			if tt.qty == 0 {
				_, err := store.IncrementQuantity(ctx, bookID)
				require.NoError(t, err)
			}

			_, err = svc.Borrow(ctx, req)
			require.NoError(t, err, "retry with the same key must go through")
			assert.Equal(t, 0, store.Quantity(bookID))
			assert.Equal(t, 1, store.LoanCount())

			_, err = svc.Borrow(ctx, req)
			assert.ErrorIs(t, err, ErrDuplicateRequest)
		})
	}
}

func TestBorrow_UnknownLoanOutcomeKeepsKey(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 2})
	store.FailOn("CreateLoan", port.ErrUnavailable)

	req := BorrowRequest{BookID: bookID, UserID: "u1", ReturnDate: returnDate, IdempotencyKey: "k1"}
	_, err := svc.Borrow(context.Background(), req)
	require.ErrorIs(t, err, ErrUnavailable)

	store.FailOn("CreateLoan", nil)
	_, err = svc.Borrow(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateRequest, "the loan may exist, so the key must hold")
	assert.Equal(t, 1, store.Quantity(bookID))
}

func TestBorrow_IdempotencyKeyScope(t *testing.T) {
	svc, store := newLendingService(t)
	dune := store.AddBook(domain.Book{Title: "Dune", Quantity: 5})
	emma := store.AddBook(domain.Book{Title: "Emma", Quantity: 5})

	for _, req := range []BorrowRequest{
		{BookID: dune, UserID: "u1"},
		{BookID: dune, UserID: "u2"},
		{BookID: emma, UserID: "u1"},
	} {
		req.ReturnDate = returnDate
		req.IdempotencyKey = "shared"
		_, err := svc.Borrow(context.Background(), req)
		require.NoError(t, err, "%s/%s", req.UserID, req.BookID)
	}
	assert.Equal(t, 3, store.Quantity(dune))
	assert.Equal(t, 4, store.Quantity(emma))
}

func TestBorrow_StampsCreatedAtFromClock(t *testing.T) {
	store := testutil.NewStore()
	borrowedAt := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	svc := NewLendingService(store, store, storage.NewMemoryAdapter(),
		WithClock(func() time.Time { return borrowedAt }))
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)

	loan, err := store.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	require.NotNil(t, loan)
	assert.True(t, borrowedAt.Equal(loan.CreatedAt), "got %v", loan.CreatedAt)
}

type failingIdempotency struct{ err error }

func (f failingIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	return false, f.err
}

func (f failingIdempotency) ReleaseIdempotency(ctx context.Context, key string) error {
	return f.err
}

func TestBorrow_IdempotencyStoreDown(t *testing.T) {
	store := testutil.NewStore()
	svc := NewLendingService(store, store, failingIdempotency{err: port.ErrUnavailable})
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	_, err := svc.Borrow(context.Background(), BorrowRequest{
		BookID: bookID, UserID: "u1", ReturnDate: returnDate, IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, store.Quantity(bookID))
}

func TestReturn_Success(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Return(context.Background(), loanID))
	assert.Equal(t, 1, store.Quantity(bookID))
	assert.Equal(t, 0, store.LoanCount())
}

func TestReturn_TwiceYieldsNotFound(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Return(context.Background(), loanID))
	err = svc.Return(context.Background(), loanID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.Quantity(bookID))
}

func TestReturn_UnknownLoan(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 2})

	err := svc.Return(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, store.Quantity(bookID))
}

func TestReturn_BookMissing(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)
	store.RemoveBook(bookID)

	err = svc.Return(context.Background(), loanID)
	assert.ErrorIs(t, err, ErrBookMissing)
	assert.Equal(t, 1, store.LoanCount(), "loan is kept for reconciliation")
}

// deleteRace removes the loan between the increment and the delete, the way a
// concurrent return would.
type deleteRace struct {
	*testutil.Store
	once sync.Once
}

func (r *deleteRace) IncrementQuantity(ctx context.Context, id string) (bool, error) {
	ok, err := r.Store.IncrementQuantity(ctx, id)
	r.once.Do(func() {
		loans, _ := r.Store.ListLoans(ctx)
		for _, l := range loans {
			r.Store.RemoveLoan(l.ID)
		}
	})
	return ok, err
}

func TestReturn_LostDeleteRaceUndoesIncrement(t *testing.T) {
	store := testutil.NewStore()
	race := &deleteRace{Store: store}
	svc := NewLendingService(race, store, storage.NewMemoryAdapter())

	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 0})
	loanID := store.AddLoan(domain.Loan{BookID: bookID, UserID: "u1", ReturnDate: returnDate})

	err := svc.Return(context.Background(), loanID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Quantity(bookID))
}

func TestReturn_DeleteFailureUndoesIncrement(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)
	store.FailOn("DeleteLoan", errors.New("write conflict"))

	err = svc.Return(context.Background(), loanID)
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.Equal(t, 0, store.Quantity(bookID))
	assert.Equal(t, 1, store.LoanCount())
}

func TestReturn_DeleteUnavailableKeepsIncrement(t *testing.T) {
	svc, store := newLendingService(t)
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)
	store.FailOn("DeleteLoan", port.ErrUnavailable)

	err = svc.Return(context.Background(), loanID)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, store.Quantity(bookID))
}

func TestConcurrentBorrowAndReturnKeepStockConsistent(t *testing.T) {
	svc, store := newLendingService(t)
	stock := 5
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: stock})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loanID, err := borrow(svc, bookID, "u1")
			if err != nil {
				return
			}
			_ = svc.Return(context.Background(), loanID)
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, store.Quantity(bookID)+store.LoanCount())
	assert.GreaterOrEqual(t, store.Quantity(bookID), 0)
}

func TestBorrowedBooks(t *testing.T) {
	svc, store := newLendingService(t)
	dune := store.AddBook(domain.Book{Title: "Dune", Quantity: 2})
	gone := store.AddBook(domain.Book{Title: "Gone", Quantity: 2})

	_, err := borrow(svc, dune, "u1")
	require.NoError(t, err)
	_, err = borrow(svc, gone, "u1")
	require.NoError(t, err)
	_, err = borrow(svc, dune, "u2")
	require.NoError(t, err)
	store.RemoveBook(gone)

	rows, err := svc.BorrowedBooks(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Dune", rows[0].Book.Title)
	assert.Equal(t, "u1", rows[0].Loan.UserID)

	_, err = svc.BorrowedBooks(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLendingScenario(t *testing.T) {
	store := testutil.NewStore()
	catalog := NewCatalogService(store, time.Second)
	svc := NewLendingService(store, store, storage.NewMemoryAdapter())
	ctx := context.Background()

	bookID, err := catalog.CreateBook(ctx, domain.Book{Title: "X", Quantity: 1})
	require.NoError(t, err)

	loanID, err := borrow(svc, bookID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, store.Quantity(bookID))

	_, err = borrow(svc, bookID, "u2")
	assert.ErrorIs(t, err, ErrOutOfStock)

	require.NoError(t, svc.Return(ctx, loanID))
	assert.Equal(t, 1, store.Quantity(bookID))
}
