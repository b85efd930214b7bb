package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/port"
)

// mysqlSchema mirrors the two Mongo collections. There is no foreign key
// from borrow to books: a book may be deleted out of band while loans on
// it are still open.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id          CHAR(36)      NOT NULL PRIMARY KEY,
		title       VARCHAR(255)  NOT NULL,
		author      VARCHAR(255)  NOT NULL DEFAULT '',
		category    VARCHAR(128)  NOT NULL DEFAULT '',
		description TEXT          NOT NULL,
		image       VARCHAR(1024) NOT NULL DEFAULT '',
		rating      DOUBLE        NOT NULL DEFAULT 0,
		quantity    INT           NOT NULL DEFAULT 0,
		email       VARCHAR(255)  NOT NULL DEFAULT '',
		created_at  DATETIME(3)   NOT NULL,
		INDEX idx_books_email (email)
	)`,
	`CREATE TABLE IF NOT EXISTS borrow (
		id          CHAR(36)     NOT NULL PRIMARY KEY,
		book_id     CHAR(36)     NOT NULL,
		user_id     VARCHAR(255) NOT NULL,
		return_date DATETIME(3)  NOT NULL,
		created_at  DATETIME(3)  NOT NULL,
		INDEX idx_borrow_user (user_id),
		INDEX idx_borrow_book (book_id)
	)`,
}

const bookColumns = `id, title, author, category, description, image, rating, quantity, email, created_at`

type bookRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Author      string    `db:"author"`
	Category    string    `db:"category"`
	Description string    `db:"description"`
	Image       string    `db:"image"`
	Rating      float64   `db:"rating"`
	Quantity    int       `db:"quantity"`
	Email       string    `db:"email"`
	CreatedAt   time.Time `db:"created_at"`
}

type loanRow struct {
	ID         string    `db:"id"`
	BookID     string    `db:"book_id"`
	UserID     string    `db:"user_id"`
	ReturnDate time.Time `db:"return_date"`
	CreatedAt  time.Time `db:"created_at"`
}

type borrowedRow struct {
	loanRow
	Book bookRow `db:"book"`
}

// MySQLAdapter is the relational alternative to MongoAdapter. The DSN must
// carry parseTime=true.
type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return mysqlError("ensure schema", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return mysqlError("ping", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateBook(ctx context.Context, book domain.Book) (string, error) {
	row := toBookRow(book)
	row.ID = uuid.NewString()

	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (:id, :title, :author, :category, :description, :image, :rating, :quantity, :email, :created_at)`,
		row,
	)
	if err != nil {
		return "", mysqlError("insert book", err)
	}
	return row.ID, nil
}

func (m *MySQLAdapter) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var row bookRow
	err := m.db.GetContext(ctx, &row, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mysqlError("query book", err)
	}

	book := row.toDomain()
	return &book, nil
}

func (m *MySQLAdapter) ListBooks(ctx context.Context, ownerEmail string) ([]domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	var args []any
	if ownerEmail != "" {
		query += ` WHERE email = ?`
		args = append(args, ownerEmail)
	}
	query += ` ORDER BY created_at`

	var rows []bookRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mysqlError("list books", err)
	}

	books := make([]domain.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.toDomain())
	}
	return books, nil
}

// UpdateBook relies on MySQL reporting changed rows, not matched rows, so a
// patch that writes identical values affects zero rows.
func (m *MySQLAdapter) UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (bool, bool, error) {
	cols, args := bookPatchColumns(patch)
	if len(cols) > 0 {
		args = append(args, id)
		result, err := m.db.ExecContext(ctx,
			`UPDATE books SET `+strings.Join(cols, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return false, false, mysqlError("update book", err)
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			return true, true, nil
		}
	}

	var exists bool
	if err := m.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE id = ?)`, id); err != nil {
		return false, false, mysqlError("check book", err)
	}
	return exists, false, nil
}

func (m *MySQLAdapter) DecrementQuantity(ctx context.Context, id string) (bool, error) {
	result, err := m.db.ExecContext(ctx,
		`UPDATE books SET quantity = quantity - 1 WHERE id = ? AND quantity > 0`, id)
	if err != nil {
		return false, mysqlError("decrement quantity", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (m *MySQLAdapter) IncrementQuantity(ctx context.Context, id string) (bool, error) {
	result, err := m.db.ExecContext(ctx,
		`UPDATE books SET quantity = quantity + 1 WHERE id = ?`, id)
	if err != nil {
		return false, mysqlError("increment quantity", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (m *MySQLAdapter) CreateLoan(ctx context.Context, loan domain.Loan) (string, error) {
	row := loanRow{
		ID:         uuid.NewString(),
		BookID:     loan.BookID,
		UserID:     loan.UserID,
		ReturnDate: loan.ReturnDate,
		CreatedAt:  loan.CreatedAt,
	}

	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO borrow (id, book_id, user_id, return_date, created_at)
		VALUES (:id, :book_id, :user_id, :return_date, :created_at)`,
		row,
	)
	if err != nil {
		return "", mysqlError("insert loan", err)
	}
	return row.ID, nil
}

func (m *MySQLAdapter) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	var row loanRow
	err := m.db.GetContext(ctx, &row,
		`SELECT id, book_id, user_id, return_date, created_at FROM borrow WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mysqlError("query loan", err)
	}

	loan := row.toDomain()
	return &loan, nil
}

func (m *MySQLAdapter) DeleteLoan(ctx context.Context, id string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM borrow WHERE id = ?`, id)
	if err != nil {
		return false, mysqlError("delete loan", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// ListBorrowedBooks inner-joins loans to books, so loans whose book is gone
// drop out.
func (m *MySQLAdapter) ListBorrowedBooks(ctx context.Context, userID string) ([]domain.BorrowedBook, error) {
	var rows []borrowedRow
	err := m.db.SelectContext(ctx, &rows, `
		SELECT l.id, l.book_id, l.user_id, l.return_date, l.created_at,
			b.id AS "book.id", b.title AS "book.title", b.author AS "book.author",
			b.category AS "book.category", b.description AS "book.description",
			b.image AS "book.image", b.rating AS "book.rating", b.quantity AS "book.quantity",
			b.email AS "book.email", b.created_at AS "book.created_at"
		FROM borrow l
		INNER JOIN books b ON b.id = l.book_id
		WHERE l.user_id = ?
		ORDER BY l.created_at`, userID)
	if err != nil {
		return nil, mysqlError("list borrowed books", err)
	}

	out := make([]domain.BorrowedBook, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.BorrowedBook{Loan: r.loanRow.toDomain(), Book: r.Book.toDomain()})
	}
	return out, nil
}

func (m *MySQLAdapter) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	var rows []loanRow
	err := m.db.SelectContext(ctx, &rows,
		`SELECT id, book_id, user_id, return_date, created_at FROM borrow ORDER BY created_at`)
	if err != nil {
		return nil, mysqlError("list loans", err)
	}

	loans := make([]domain.Loan, 0, len(rows))
	for _, r := range rows {
		loans = append(loans, r.toDomain())
	}
	return loans, nil
}

func toBookRow(b domain.Book) bookRow {
	return bookRow{
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

func (r bookRow) toDomain() domain.Book {
	return domain.Book{
		ID:          r.ID,
		Title:       r.Title,
		Author:      r.Author,
		Category:    r.Category,
		Description: r.Description,
		Image:       r.Image,
		Rating:      r.Rating,
		Quantity:    r.Quantity,
		OwnerEmail:  r.Email,
		CreatedAt:   r.CreatedAt,
	}
}

func (r loanRow) toDomain() domain.Loan {
	return domain.Loan{
		ID:         r.ID,
		BookID:     r.BookID,
		UserID:     r.UserID,
		ReturnDate: r.ReturnDate,
		CreatedAt:  r.CreatedAt,
	}
}

func bookPatchColumns(p domain.BookPatch) ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}

	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Author != nil {
		add("author", *p.Author)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Image != nil {
		add("image", *p.Image)
	}
	if p.Rating != nil {
		add("rating", *p.Rating)
	}
	if p.Quantity != nil {
		add("quantity", *p.Quantity)
	}
	if p.OwnerEmail != nil {
		add("email", *p.OwnerEmail)
	}
	return cols, args
}

func mysqlError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("mysql %s: %w: %w", op, port.ErrUnavailable, err)
	}
	return fmt.Errorf("mysql %s: %w", op, err)
}
