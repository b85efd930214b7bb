package domain

import "time"

// Loan is an open borrow. It only references its Book by ID and is removed on return.
type Loan struct {
	ID         string
	BookID     string
	UserID     string
	ReturnDate time.Time
	CreatedAt  time.Time
}

// BorrowedBook is a Loan joined with the current state of the Book it references.
type BorrowedBook struct {
	Loan Loan
	Book Book
}

// ReconcileReport describes stock/loan anomalies found by a reconciliation sweep.
type ReconcileReport struct {
	Books         int
	Loans         int
	OpenLoans     map[string]int // book ID -> open loan count
	OrphanLoans   []Loan         // loans whose book no longer exists
	NegativeStock []Book
}

func (r ReconcileReport) Healthy() bool {
	return len(r.OrphanLoans) == 0 && len(r.NegativeStock) == 0
}
