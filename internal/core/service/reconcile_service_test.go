package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/port"
	"github.com/rl1809/book-lending/internal/testutil"
)

func TestReconcile_Healthy(t *testing.T) {
	store := testutil.NewStore()
	bookID := store.AddBook(domain.Book{Title: "Dune", Quantity: 1})
	store.AddLoan(domain.Loan{BookID: bookID, UserID: "u1"})
	store.AddLoan(domain.Loan{BookID: bookID, UserID: "u2"})

	report, err := NewReconcileService(store, store).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, 1, report.Books)
	assert.Equal(t, 2, report.Loans)
	assert.Equal(t, 2, report.OpenLoans[bookID])
}

func TestReconcile_FindsAnomalies(t *testing.T) {
	store := testutil.NewStore()
	negative := store.AddBook(domain.Book{Title: "Broken", Quantity: -1})
	orphan := store.AddLoan(domain.Loan{BookID: "gone", UserID: "u1"})

	report, err := NewReconcileService(store, store).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	require.Len(t, report.OrphanLoans, 1)
	assert.Equal(t, orphan, report.OrphanLoans[0].ID)
	require.Len(t, report.NegativeStock, 1)
	assert.Equal(t, negative, report.NegativeStock[0].ID)
}

func TestReconcile_StoreDown(t *testing.T) {
	store := testutil.NewStore()
	store.FailOn("ListLoans", port.ErrUnavailable)

	_, err := NewReconcileService(store, store).Run(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
