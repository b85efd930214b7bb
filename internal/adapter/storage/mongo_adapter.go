package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/port"
)

const (
	booksCollection = "books"
	loansCollection = "borrow"
)

type bookDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Author      string             `bson:"author"`
	Category    string             `bson:"category"`
	Description string             `bson:"description"`
	Image       string             `bson:"image,omitempty"`
	Rating      float64            `bson:"rating"`
	Quantity    int                `bson:"quantity"`
	Email       string             `bson:"email"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

type loanDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	BookID     primitive.ObjectID `bson:"bookId"`
	UserID     string             `bson:"userId"`
	ReturnDate time.Time          `bson:"returnDate"`
	CreatedAt  time.Time          `bson:"createdAt"`
}

// borrowedDocument is a loan with its book attached by $lookup.
type borrowedDocument struct {
	ID         primitive.ObjectID `bson:"_id"`
	BookID     primitive.ObjectID `bson:"bookId"`
	UserID     string             `bson:"userId"`
	ReturnDate time.Time          `bson:"returnDate"`
	CreatedAt  time.Time          `bson:"createdAt"`
	Book       bookDocument       `bson:"book"`
}

// MongoAdapter stores books and loans in two collections of one database.
// Every stock change is a single-document conditional update.
type MongoAdapter struct {
	db    *mongo.Database
	books *mongo.Collection
	loans *mongo.Collection
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{
		db:    db,
		books: db.Collection(booksCollection),
		loans: db.Collection(loansCollection),
	}
}

// EnsureIndexes creates the lookup indexes used by the list queries.
func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	if _, err := m.books.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}}); err != nil {
		return mongoError("create books index", err)
	}
	_, err := m.loans.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "bookId", Value: 1}}},
	})
	if err != nil {
		return mongoError("create borrow indexes", err)
	}
	return nil
}

func (m *MongoAdapter) Ping(ctx context.Context) error {
	if err := m.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return mongoError("ping", err)
	}
	return nil
}

func (m *MongoAdapter) CreateBook(ctx context.Context, book domain.Book) (string, error) {
	doc := toBookDocument(book)
	doc.ID = primitive.NewObjectID()

	if _, err := m.books.InsertOne(ctx, doc); err != nil {
		return "", mongoError("insert book", err)
	}
	return doc.ID.Hex(), nil
}

func (m *MongoAdapter) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return nil, nil
	}

	var doc bookDocument
	err := m.books.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, mongoError("find book", err)
	}

	book := doc.toDomain()
	return &book, nil
}

func (m *MongoAdapter) ListBooks(ctx context.Context, ownerEmail string) ([]domain.Book, error) {
	filter := bson.M{}
	if ownerEmail != "" {
		filter["email"] = ownerEmail
	}

	cursor, err := m.books.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, mongoError("find books", err)
	}

	var docs []bookDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mongoError("decode books", err)
	}

	books := make([]domain.Book, 0, len(docs))
	for _, doc := range docs {
		books = append(books, doc.toDomain())
	}
	return books, nil
}

func (m *MongoAdapter) UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (bool, bool, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return false, false, nil
	}

	set := bookPatchFields(patch)
	if len(set) == 0 {
		n, err := m.books.CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
			return false, false, mongoError("count book", err)
		}
		return n > 0, false, nil
	}

	res, err := m.books.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return false, false, mongoError("update book", err)
	}
	return res.MatchedCount > 0, res.ModifiedCount > 0, nil
}

func (m *MongoAdapter) DecrementQuantity(ctx context.Context, id string) (bool, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return false, nil
	}

	res, err := m.books.UpdateOne(ctx,
		bson.M{"_id": oid, "quantity": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"quantity": -1}},
	)
	if err != nil {
		return false, mongoError("decrement quantity", err)
	}
	return res.MatchedCount == 1, nil
}

func (m *MongoAdapter) IncrementQuantity(ctx context.Context, id string) (bool, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return false, nil
	}

	res, err := m.books.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$inc": bson.M{"quantity": 1}})
	if err != nil {
		return false, mongoError("increment quantity", err)
	}
	return res.MatchedCount == 1, nil
}

func (m *MongoAdapter) CreateLoan(ctx context.Context, loan domain.Loan) (string, error) {
	bookID, ok := parseObjectID(loan.BookID)
	if !ok {
		return "", fmt.Errorf("insert loan: invalid book id %q", loan.BookID)
	}

	doc := loanDocument{
		ID:         primitive.NewObjectID(),
		BookID:     bookID,
		UserID:     loan.UserID,
		ReturnDate: loan.ReturnDate,
		CreatedAt:  loan.CreatedAt,
	}
	if _, err := m.loans.InsertOne(ctx, doc); err != nil {
		return "", mongoError("insert loan", err)
	}
	return doc.ID.Hex(), nil
}

func (m *MongoAdapter) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return nil, nil
	}

	var doc loanDocument
	err := m.loans.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, mongoError("find loan", err)
	}

	loan := doc.toDomain()
	return &loan, nil
}

func (m *MongoAdapter) DeleteLoan(ctx context.Context, id string) (bool, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return false, nil
	}

	res, err := m.loans.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, mongoError("delete loan", err)
	}
	return res.DeletedCount == 1, nil
}

// ListBorrowedBooks joins loans to books server-side. $unwind drops loans whose book is gone.
func (m *MongoAdapter) ListBorrowedBooks(ctx context.Context, userID string) ([]domain.BorrowedBook, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "userId", Value: userID}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: booksCollection},
			{Key: "localField", Value: "bookId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "book"},
		}}},
		{{Key: "$unwind", Value: "$book"}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}

	cursor, err := m.loans.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mongoError("aggregate borrowed books", err)
	}

	var docs []borrowedDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mongoError("decode borrowed books", err)
	}

	out := make([]domain.BorrowedBook, 0, len(docs))
	for _, doc := range docs {
		loan := loanDocument{
			ID:         doc.ID,
			BookID:     doc.BookID,
			UserID:     doc.UserID,
			ReturnDate: doc.ReturnDate,
			CreatedAt:  doc.CreatedAt,
		}
		out = append(out, domain.BorrowedBook{Loan: loan.toDomain(), Book: doc.Book.toDomain()})
	}
	return out, nil
}

func (m *MongoAdapter) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	cursor, err := m.loans.Find(ctx, bson.M{})
	if err != nil {
		return nil, mongoError("find loans", err)
	}

	var docs []loanDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mongoError("decode loans", err)
	}

	loans := make([]domain.Loan, 0, len(docs))
	for _, doc := range docs {
		loans = append(loans, doc.toDomain())
	}
	return loans, nil
}

func toBookDocument(b domain.Book) bookDocument {
	return bookDocument{
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

func (d bookDocument) toDomain() domain.Book {
	return domain.Book{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Author:      d.Author,
		Category:    d.Category,
		Description: d.Description,
		Image:       d.Image,
		Rating:      d.Rating,
		Quantity:    d.Quantity,
		OwnerEmail:  d.Email,
		CreatedAt:   d.CreatedAt,
	}
}

func (d loanDocument) toDomain() domain.Loan {
	return domain.Loan{
		ID:         d.ID.Hex(),
		BookID:     d.BookID.Hex(),
		UserID:     d.UserID,
		ReturnDate: d.ReturnDate,
		CreatedAt:  d.CreatedAt,
	}
}

func bookPatchFields(p domain.BookPatch) bson.M {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Author != nil {
		set["author"] = *p.Author
	}
	if p.Category != nil {
		set["category"] = *p.Category
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Image != nil {
		set["image"] = *p.Image
	}
	if p.Rating != nil {
		set["rating"] = *p.Rating
	}
	if p.Quantity != nil {
		set["quantity"] = *p.Quantity
	}
	if p.OwnerEmail != nil {
		set["email"] = *p.OwnerEmail
	}
	return set
}

func parseObjectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func mongoError(op string, err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("mongo %s: %w: %w", op, port.ErrUnavailable, err)
	}
	return fmt.Errorf("mongo %s: %w", op, err)
}
